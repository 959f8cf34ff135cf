package emulator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/session"
)

func suite(t *testing.T) *frost.FROST {
	t.Helper()
	f, err := frost.NewWithHasher(&bjj.BJJ{}, 2, 3, frost.NewBlake2bHasher())
	require.NoError(t, err)
	return f
}

func shares(t *testing.T, f *frost.FROST) []codec.KeyShare {
	t.Helper()
	results, err := session.RunDKG(f, rand.Reader)
	require.NoError(t, err)
	out := make([]codec.KeyShare, len(results))
	for i, r := range results {
		out[i] = frost.KeyShareToWire(r.KeyShare)
	}
	return out
}

func seeded(seed byte) *mrand.ChaCha8 {
	var s [32]byte
	s[0] = seed
	return mrand.NewChaCha8(s)
}

func send(t *testing.T, d *Device, ins apdu.Ins, p1 byte, data []byte) apdu.Response {
	t.Helper()
	return d.Handle(apdu.NewCommand(ins, p1, 0, data))
}

func mustOK(t *testing.T, resp apdu.Response) []byte {
	t.Helper()
	require.Equal(t, apdu.StatusOK, resp.Status)
	return resp.Data
}

func loaded(t *testing.T, cfg Config, share codec.KeyShare) *Device {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)
	raw, err := share.MarshalBinary()
	require.NoError(t, err)
	mustOK(t, send(t, d, apdu.InsLoadKeys, apdu.CurveBabyJubjub, raw))
	return d
}

// peer commits with a host-side share and returns its entry.
func peer(t *testing.T, f *frost.FROST, share codec.KeyShare) (*frost.SigningNonce, codec.Entry) {
	t.Helper()
	ks, err := f.KeyShareFromWire(share)
	require.NoError(t, err)
	nonce, comm, err := f.SignRound1(rand.Reader, ks)
	require.NoError(t, err)
	return nonce, frost.EntryToWire(comm)
}

func commit(t *testing.T, d *Device, id codec.ID) codec.Entry {
	t.Helper()
	var c codec.Commitment
	require.NoError(t, c.UnmarshalBinary(mustOK(t, send(t, d, apdu.InsCommit, 0, nil))))
	return codec.Entry{ID: id, Hiding: c.Hiding, Binding: c.Binding}
}

func TestOutOfOrderCommands(t *testing.T) {
	d, err := New(Config{})
	require.NoError(t, err)

	for _, ins := range []apdu.Ins{
		apdu.InsGetPublicKey,
		apdu.InsCommit,
		apdu.InsInjectMessage,
		apdu.InsInjectCommitments,
		apdu.InsInjectCommitmentsCont,
		apdu.InsInjectChallenge,
		apdu.InsPartialSign,
	} {
		t.Run(ins.String(), func(t *testing.T) {
			assert.Equal(t, apdu.StatusWrongState, send(t, d, ins, 2, make([]byte, 32)).Status)
		})
	}
	assert.Equal(t, Version[:], mustOK(t, send(t, d, apdu.InsGetVersion, 0, nil)))
	mustOK(t, send(t, d, apdu.InsReset, 0, nil))
}

func TestUnknownCommands(t *testing.T) {
	d, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, apdu.StatusInsNotSupported, send(t, d, 0x42, 0, nil).Status)
	cmd := apdu.NewCommand(apdu.InsGetVersion, 0, 0, nil)
	cmd.Class = 0x80
	assert.Equal(t, apdu.StatusClaNotSupported, d.Handle(cmd).Status)
}

func TestLoadKeysValidation(t *testing.T) {
	f := suite(t)
	share := shares(t, f)[0]
	raw, err := share.MarshalBinary()
	require.NoError(t, err)

	zeroID := share
	zeroID.ID = codec.ID{}
	rawZero, err := zeroID.MarshalBinary()
	require.NoError(t, err)

	var order codec.ID
	o := (&bjj.BJJ{}).Order()
	copy(order[len(order)-len(o):], o)
	orderID := share
	orderID.ID = order
	rawOrder, err := orderID.MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		p1   byte
		data []byte
		want apdu.Status
	}{
		{"ed25519", apdu.CurveEd25519, raw, apdu.StatusWrongP1P2},
		{"id equal to group order", apdu.CurveBabyJubjub, rawOrder, apdu.StatusInvalidData},
		{"short", apdu.CurveBabyJubjub, raw[:95], apdu.StatusWrongLength},
		{"zero id", apdu.CurveBabyJubjub, rawZero, apdu.StatusInvalidData},
		{"ok", apdu.CurveBabyJubjub, raw, apdu.StatusOK},
	}
	d, err := New(Config{})
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, send(t, d, apdu.InsLoadKeys, tt.p1, tt.data).Status)
		})
	}
	assert.Equal(t, share.GroupKey[:], mustOK(t, send(t, d, apdu.InsGetPublicKey, 0, nil)))
}

func TestKeysSurviveReset(t *testing.T) {
	f := suite(t)
	share := shares(t, f)[0]
	d := loaded(t, Config{}, share)

	commit(t, d, share.ID)
	mustOK(t, send(t, d, apdu.InsReset, 0, nil))
	assert.Equal(t, session.StateReset, d.State())
	commit(t, d, share.ID)
	assert.Equal(t, session.StateCommitted, d.State())

	d.Wipe()
	assert.Equal(t, apdu.StatusWrongState, send(t, d, apdu.InsCommit, 0, nil).Status)
	assert.Equal(t, apdu.StatusWrongState, send(t, d, apdu.InsGetPublicKey, 0, nil).Status)
}

func TestChunkedCommitments(t *testing.T) {
	f := suite(t)
	all := shares(t, f)
	d := loaded(t, Config{}, all[0])

	mine := commit(t, d, all[0].ID)
	_, e2 := peer(t, f, all[1])
	_, e3 := peer(t, f, all[2])
	set := codec.CommitmentSet{mine, e2, e3}
	payload, err := set.MarshalBinary()
	require.NoError(t, err)

	mustOK(t, send(t, d, apdu.InsInjectMessage, 0, make([]byte, 32)))

	t.Run("rejects single participant", func(t *testing.T) {
		assert.Equal(t, apdu.StatusInvalidData, send(t, d, apdu.InsInjectCommitments, 1, payload[:96]).Status)
	})
	t.Run("rejects partial entries", func(t *testing.T) {
		assert.Equal(t, apdu.StatusWrongLength, send(t, d, apdu.InsInjectCommitments, 3, payload[:100]).Status)
	})

	ack := mustOK(t, send(t, d, apdu.InsInjectCommitments, 3, payload[:192]))
	assert.Equal(t, uint16(192), binary.BigEndian.Uint16(ack))
	assert.Equal(t, session.StateMessageSet, d.State())

	t.Run("rejects overflow", func(t *testing.T) {
		assert.Equal(t, apdu.StatusWrongLength, send(t, d, apdu.InsInjectCommitmentsCont, 0, payload[:192]).Status)
	})

	ack = mustOK(t, send(t, d, apdu.InsInjectCommitmentsCont, 0, payload[192:]))
	assert.Equal(t, uint16(288), binary.BigEndian.Uint16(ack))
	assert.Equal(t, session.StateCommitmentsSet, d.State())

	assert.Equal(t, apdu.StatusWrongState, send(t, d, apdu.InsInjectCommitmentsCont, 0, payload[:96]).Status)
}

func TestCommitmentsMustIncludeDevice(t *testing.T) {
	f := suite(t)
	all := shares(t, f)
	d := loaded(t, Config{}, all[0])

	commit(t, d, all[0].ID)
	_, e2 := peer(t, f, all[1])
	_, e3 := peer(t, f, all[2])
	payload, err := codec.CommitmentSet{e2, e3}.MarshalBinary()
	require.NoError(t, err)

	mustOK(t, send(t, d, apdu.InsInjectMessage, 0, make([]byte, 32)))
	assert.Equal(t, apdu.StatusInvalidData, send(t, d, apdu.InsInjectCommitments, 2, payload).Status)
	assert.Equal(t, session.StateMessageSet, d.State())
}

func TestSignWithStaleCommitment(t *testing.T) {
	f := suite(t)
	all := shares(t, f)
	d := loaded(t, Config{}, all[0])

	stale := commit(t, d, all[0].ID)
	commit(t, d, all[0].ID)
	_, e2 := peer(t, f, all[1])
	payload, err := codec.CommitmentSet{stale, e2}.MarshalBinary()
	require.NoError(t, err)

	mustOK(t, send(t, d, apdu.InsInjectMessage, 0, make([]byte, 32)))
	mustOK(t, send(t, d, apdu.InsInjectCommitments, 2, payload))
	assert.Equal(t, apdu.StatusInvalidData, send(t, d, apdu.InsPartialSign, 0, nil).Status)
	assert.Equal(t, session.StateReset, d.State())
}

func TestSignAndVerify(t *testing.T) {
	f := suite(t)
	all := shares(t, f)
	msg := make([]byte, 32)
	copy(msg, "device emulator")

	for _, tt := range []struct {
		name   string
		legacy bool
	}{
		{"per-participant binding", false},
		{"legacy binding", true},
	} {
		legacy := tt.legacy
		t.Run(tt.name, func(t *testing.T) {
			d := loaded(t, Config{LegacyBinding: legacy}, all[0])
			mine := commit(t, d, all[0].ID)
			nonce, e2 := peer(t, f, all[1])
			set := codec.CommitmentSet{mine, e2}
			payload, err := set.MarshalBinary()
			require.NoError(t, err)

			mustOK(t, send(t, d, apdu.InsInjectMessage, 0, msg))
			mustOK(t, send(t, d, apdu.InsInjectCommitments, 2, payload))
			z1 := mustOK(t, send(t, d, apdu.InsPartialSign, 0, nil))
			assert.Equal(t, session.StateSigned, d.State())
			assert.Equal(t, apdu.StatusWrongState, send(t, d, apdu.InsPartialSign, 0, nil).Status)

			comms, err := f.CommitmentsFromSet(set)
			require.NoError(t, err)
			ks, err := f.KeyShareFromWire(all[1])
			require.NoError(t, err)
			s2, err := f.SignRound2(ks, nonce, msg, comms)
			require.NoError(t, err)

			var z codec.Scalar
			copy(z[:], z1)
			s1, err := f.ShareFromWire(codec.PartialSignature{ID: all[0].ID, Z: z})
			require.NoError(t, err)
			sig, err := f.Aggregate(msg, comms, []*frost.SignatureShare{s1, s2})
			require.NoError(t, err)
			assert.Equal(t, !legacy, f.Verify(msg, sig, ks.GroupKey))
		})
	}
}

func TestChallengeOverrideChangesPartial(t *testing.T) {
	f := suite(t)
	all := shares(t, f)
	_, e2 := peer(t, f, all[1])

	partial := func(challenge []byte) []byte {
		d := loaded(t, Config{Rand: seeded(7)}, all[0])
		mine := commit(t, d, all[0].ID)
		payload, err := codec.CommitmentSet{mine, e2}.MarshalBinary()
		require.NoError(t, err)
		mustOK(t, send(t, d, apdu.InsInjectMessage, 0, make([]byte, 32)))
		mustOK(t, send(t, d, apdu.InsInjectCommitments, 2, payload))
		if challenge != nil {
			mustOK(t, send(t, d, apdu.InsInjectChallenge, 0, challenge))
			assert.Equal(t, session.StateChallengeOverridden, d.State())
		}
		return mustOK(t, send(t, d, apdu.InsPartialSign, 0, nil))
	}

	internal := partial(nil)
	assert.Equal(t, internal, partial(nil))

	c := make([]byte, 32)
	c[31] = 5
	overridden := partial(c)
	assert.NotEqual(t, internal, overridden)
	assert.Equal(t, overridden, partial(c))
}

func TestServeConn(t *testing.T) {
	d, err := New(Config{})
	require.NoError(t, err)

	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.ServeConn(ctx, server) }()

	conn := apdu.NewConn(client)
	version, err := conn.Send(ctx, apdu.InsGetVersion, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Version[:], version)

	// A length byte that disagrees with the payload.
	require.NoError(t, apdu.WriteFrame(client, []byte{0xE0, 0x1B, 0, 0, 32, 1, 2, 3}))
	resp, err := apdu.ReadResponse(client)
	require.NoError(t, err)
	assert.Equal(t, apdu.StatusWrongLength, resp.Status)

	_, err = conn.Send(ctx, apdu.InsCommit, 0, 0, nil)
	require.ErrorIs(t, err, fault.ErrWrongState)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestServe(t *testing.T) {
	d, err := New(Config{})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	conn, err := apdu.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	version, err := conn.Send(ctx, apdu.InsGetVersion, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Version[:], version)
	require.NoError(t, conn.Close())

	cancel()
	require.NoError(t, <-done)
}
