package participant

import (
	"context"
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/emulator"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/localsigner"
	"github.com/f3rmion/frostguard/session"
)

var digest = codec.Digest{
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
}

type fixture struct {
	f      *frost.FROST
	shares []codec.KeyShare
	device *Device
	emu    *emulator.Device
	locals []*Local
}

func setup(t *testing.T, n int) *fixture {
	t.Helper()
	f, err := frost.NewWithHasher(&bjj.BJJ{}, 2, n, frost.NewBlake2bHasher())
	require.NoError(t, err)
	results, err := session.RunDKG(f, rand.Reader)
	require.NoError(t, err)

	fx := &fixture{f: f}
	for _, r := range results {
		fx.shares = append(fx.shares, frost.KeyShareToWire(r.KeyShare))
	}

	fx.emu, err = emulator.New(emulator.Config{})
	require.NoError(t, err)
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = fx.emu.ServeConn(ctx, server) }()
	conn := apdu.NewConn(client)
	t.Cleanup(func() {
		conn.Close()
		cancel()
	})

	fx.device = NewDevice(conn, fx.shares[0].ID, DeviceOptions{})
	engine := localsigner.NewEngine()
	for _, s := range fx.shares[1:] {
		fx.locals = append(fx.locals, NewLocal(engine, s))
	}
	return fx
}

func (fx *fixture) load(t *testing.T) {
	t.Helper()
	share := fx.shares[0]
	require.NoError(t, fx.device.LoadKeys(context.Background(), &share))
}

func (fx *fixture) aggregate(t *testing.T, set codec.CommitmentSet, partials []codec.PartialSignature) bool {
	t.Helper()
	comms, err := fx.f.CommitmentsFromSet(set)
	require.NoError(t, err)
	shares := make([]*frost.SignatureShare, len(partials))
	for i, p := range partials {
		shares[i], err = fx.f.ShareFromWire(p)
		require.NoError(t, err)
	}
	sig, err := fx.f.Aggregate(digest[:], comms, shares)
	require.NoError(t, err)
	groupKey, err := fx.f.PointFromWire(fx.shares[0].GroupKey)
	require.NoError(t, err)
	return fx.f.Verify(digest[:], sig, groupKey)
}

func sign(t *testing.T, signers []Participant, groupKey codec.Point) (codec.CommitmentSet, []codec.PartialSignature) {
	t.Helper()
	ctx := context.Background()
	var set codec.CommitmentSet
	for _, p := range signers {
		c, err := p.Commit(ctx)
		require.NoError(t, err)
		set = append(set, codec.Entry{ID: p.ID(), Hiding: c.Hiding, Binding: c.Binding})
	}
	var partials []codec.PartialSignature
	for i, p := range signers {
		z, err := p.Sign(ctx, SigningContext{Message: digest, GroupKey: groupKey, Commitments: set, Index: i})
		require.NoError(t, err)
		assert.Equal(t, p.ID(), z.ID)
		partials = append(partials, z)
	}
	return set, partials
}

func TestDeviceInfo(t *testing.T) {
	fx := setup(t, 3)
	ctx := context.Background()

	v, err := fx.device.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	_, err = fx.device.GroupKey(ctx)
	require.ErrorIs(t, err, fault.ErrWrongState)
	assert.Equal(t, fault.KindProtocol, fault.KindOf(err))

	fx.load(t)
	key, err := fx.device.GroupKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, fx.shares[0].GroupKey, key)
}

func TestDeviceLoadKeysWrongShare(t *testing.T) {
	fx := setup(t, 3)
	other := fx.shares[1]
	err := fx.device.LoadKeys(context.Background(), &other)
	require.ErrorIs(t, err, fault.ErrParticipantSetMismatch)
	assert.Equal(t, fault.KindCryptographic, fault.KindOf(err))
}

func TestMixedSigning(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		signers func(fx *fixture) []Participant
	}{
		{"device and local", 3, func(fx *fixture) []Participant {
			return []Participant{fx.device, fx.locals[0]}
		}},
		{"local first", 3, func(fx *fixture) []Participant {
			return []Participant{fx.locals[1], fx.device}
		}},
		{"chunked set", 4, func(fx *fixture) []Participant {
			return []Participant{fx.device, fx.locals[0], fx.locals[1], fx.locals[2]}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setup(t, tt.n)
			fx.load(t)
			set, partials := sign(t, tt.signers(fx), fx.shares[0].GroupKey)
			assert.True(t, fx.aggregate(t, set, partials))
			assert.Equal(t, session.StateSigned, fx.emu.State())
		})
	}
}

func TestCommitTwiceInvalidatesFirst(t *testing.T) {
	fx := setup(t, 3)
	fx.load(t)
	ctx := context.Background()

	for _, p := range []Participant{fx.device, fx.locals[0]} {
		t.Run(p.ID().String()[60:], func(t *testing.T) {
			first, err := p.Commit(ctx)
			require.NoError(t, err)
			_, err = p.Commit(ctx)
			require.NoError(t, err)

			other, err := fx.locals[1].Commit(ctx)
			require.NoError(t, err)
			set := codec.CommitmentSet{
				{ID: p.ID(), Hiding: first.Hiding, Binding: first.Binding},
				{ID: fx.locals[1].ID(), Hiding: other.Hiding, Binding: other.Binding},
			}
			_, err = p.Sign(ctx, SigningContext{Message: digest, GroupKey: fx.shares[0].GroupKey, Commitments: set})
			require.ErrorIs(t, err, fault.ErrNoPendingCommitment)
			assert.Equal(t, fault.KindCryptographic, fault.KindOf(err))
		})
	}
}

func TestSignConsumesCommitment(t *testing.T) {
	fx := setup(t, 3)
	ctx := context.Background()
	local := fx.locals[0]

	c1, err := local.Commit(ctx)
	require.NoError(t, err)
	c2, err := fx.locals[1].Commit(ctx)
	require.NoError(t, err)
	sc := SigningContext{
		Message:  digest,
		GroupKey: fx.shares[0].GroupKey,
		Commitments: codec.CommitmentSet{
			{ID: local.ID(), Hiding: c1.Hiding, Binding: c1.Binding},
			{ID: fx.locals[1].ID(), Hiding: c2.Hiding, Binding: c2.Binding},
		},
	}
	_, err = local.Sign(ctx, sc)
	require.NoError(t, err)

	sc.Message[0] ^= 0xFF
	_, err = local.Sign(ctx, sc)
	require.ErrorIs(t, err, fault.ErrNoPendingCommitment)
}

func TestSignRequiresOwnEntry(t *testing.T) {
	fx := setup(t, 3)
	ctx := context.Background()

	c, err := fx.locals[0].Commit(ctx)
	require.NoError(t, err)
	set := codec.CommitmentSet{{ID: fx.locals[0].ID(), Hiding: c.Hiding, Binding: c.Binding}}

	_, err = fx.locals[1].Sign(ctx, SigningContext{Message: digest, Commitments: set})
	require.ErrorIs(t, err, fault.ErrParticipantSetMismatch)
	_, err = fx.locals[0].Sign(ctx, SigningContext{Message: digest, Commitments: set, Index: 3})
	require.ErrorIs(t, err, fault.ErrParticipantSetMismatch)
}

func TestDeviceInjectedContextMustMatch(t *testing.T) {
	fx := setup(t, 3)
	fx.load(t)
	ctx := context.Background()

	mine, err := fx.device.Commit(ctx)
	require.NoError(t, err)
	other, err := fx.locals[0].Commit(ctx)
	require.NoError(t, err)
	set := codec.CommitmentSet{
		{ID: fx.device.ID(), Hiding: mine.Hiding, Binding: mine.Binding},
		{ID: fx.locals[0].ID(), Hiding: other.Hiding, Binding: other.Binding},
	}

	var wrong codec.Digest
	require.NoError(t, fx.device.InjectMessage(ctx, wrong))
	_, err = fx.device.Sign(ctx, SigningContext{Message: digest, GroupKey: fx.shares[0].GroupKey, Commitments: set})
	require.ErrorIs(t, err, fault.ErrParticipantSetMismatch)
	assert.Equal(t, session.StateMessageSet, fx.emu.State())
}

func TestDeviceChallengeOverride(t *testing.T) {
	fx := setup(t, 3)
	fx.load(t)
	ctx := context.Background()
	signers := []Participant{fx.device, fx.locals[0]}

	var set codec.CommitmentSet
	for _, p := range signers {
		c, err := p.Commit(ctx)
		require.NoError(t, err)
		set = append(set, codec.Entry{ID: p.ID(), Hiding: c.Hiding, Binding: c.Binding})
	}
	comms, err := fx.f.CommitmentsFromSet(set)
	require.NoError(t, err)
	groupKey, err := fx.f.PointFromWire(fx.shares[0].GroupKey)
	require.NoError(t, err)
	c, err := fx.f.ChallengeFor(frost.MiMCChallenge, digest[:], comms, groupKey)
	require.NoError(t, err)
	challenge := frost.ScalarToWire(c)

	shares := make([]*frost.SignatureShare, len(signers))
	for i, p := range signers {
		z, err := p.Sign(ctx, SigningContext{
			Message:     digest,
			GroupKey:    fx.shares[0].GroupKey,
			Commitments: set,
			Index:       i,
			Challenge:   &challenge,
		})
		require.NoError(t, err)
		shares[i], err = fx.f.ShareFromWire(z)
		require.NoError(t, err)
	}
	sig, err := fx.f.Aggregate(digest[:], comms, shares)
	require.NoError(t, err)
	assert.True(t, fx.f.VerifyWithChallenge(sig, groupKey, c))
	assert.False(t, fx.f.Verify(digest[:], sig, groupKey))
}

func TestDeviceReset(t *testing.T) {
	fx := setup(t, 3)
	fx.load(t)
	ctx := context.Background()

	mine, err := fx.device.Commit(ctx)
	require.NoError(t, err)
	other, err := fx.locals[0].Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.device.Reset(ctx))
	assert.Equal(t, session.StateReset, fx.emu.State())

	set := codec.CommitmentSet{
		{ID: fx.device.ID(), Hiding: mine.Hiding, Binding: mine.Binding},
		{ID: fx.locals[0].ID(), Hiding: other.Hiding, Binding: other.Binding},
	}
	_, err = fx.device.Sign(ctx, SigningContext{Message: digest, GroupKey: fx.shares[0].GroupKey, Commitments: set})
	require.ErrorIs(t, err, fault.ErrNoPendingCommitment)

	_, err = fx.device.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateCommitted, fx.emu.State())
}
