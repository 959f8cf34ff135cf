package localsigner

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/group"
	"github.com/f3rmion/frostguard/session"
)

var (
	errSignerIndex   = errors.New("signer index outside participant list")
	errMissingSecret = errors.New("signer record lacks secret share or nonces")
	errNonceMismatch = errors.New("nonces do not match the signer's commitment")
)

// Engine computes the capability records in-process.
type Engine struct {
	group   group.Group
	hasher  frost.Hasher
	binding frost.BindingMode
	rand    io.Reader
}

var _ Capability = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRand sets the randomness source for nonces and key generation.
func WithRand(r io.Reader) EngineOption {
	return func(e *Engine) { e.rand = r }
}

// WithHasher replaces the Blake2b device hasher.
func WithHasher(h frost.Hasher) EngineOption {
	return func(e *Engine) { e.hasher = h }
}

// WithBinding selects the binding factor derivation.
func WithBinding(m frost.BindingMode) EngineOption {
	return func(e *Engine) { e.binding = m }
}

// NewEngine returns an Engine over Baby Jubjub with the device hasher and
// per-participant binding factors.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		group:  &bjj.BJJ{},
		hasher: frost.NewBlake2bHasher(),
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// suite returns a FROST instance for a ceremony of n participants. The
// threshold does not enter signing or aggregation.
func (e *Engine) suite(t, n int) (*frost.FROST, error) {
	if n < 2 {
		n = 2
	}
	if t < 2 {
		t = 2
	}
	f, err := frost.NewWithHasher(e.group, t, n, e.hasher)
	if err != nil {
		return nil, err
	}
	return f.WithBinding(e.binding), nil
}

// Commit draws a nonce pair.
func (e *Engine) Commit(ctx context.Context) (*CommitResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := e.group.RandomScalar(e.rand)
	if err != nil {
		return nil, fmt.Errorf("hiding nonce: %w", err)
	}
	b, err := e.group.RandomScalar(e.rand)
	if err != nil {
		return nil, fmt.Errorf("binding nonce: %w", err)
	}
	gen := e.group.Generator()
	return &CommitResponse{
		HidingNonce:   frost.ScalarToWire(d),
		BindingNonce:  frost.ScalarToWire(b),
		HidingCommit:  frost.PointToWire(e.group.NewPoint().ScalarMult(d, gen)),
		BindingCommit: frost.PointToWire(e.group.NewPoint().ScalarMult(b, gen)),
	}, nil
}

// Sign computes the partial signature of req.Participants[req.SignerIndex].
func (e *Engine) Sign(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SignerIndex < 0 || req.SignerIndex >= len(req.Participants) {
		return nil, fault.E(fault.KindCryptographic, "sign",
			fmt.Errorf("%w: %d of %d", errSignerIndex, req.SignerIndex, len(req.Participants)))
	}
	me := req.Participants[req.SignerIndex]
	if me.SecretShare == nil || me.HidingNonce == nil || me.BindingNonce == nil {
		return nil, fault.E(fault.KindCryptographic, "sign", errMissingSecret)
	}

	f, err := e.suite(2, len(req.Participants))
	if err != nil {
		return nil, err
	}
	commitments, err := f.CommitmentsFromSet(SetFromRecords(req.Participants))
	if err != nil {
		return nil, err
	}
	share, err := f.KeyShareFromWire(codec.KeyShare{GroupKey: req.GroupKey, ID: me.ID, Secret: *me.SecretShare})
	if err != nil {
		return nil, err
	}
	d, err := f.ScalarFromWire(*me.HidingNonce)
	if err != nil {
		return nil, err
	}
	b, err := f.ScalarFromWire(*me.BindingNonce)
	if err != nil {
		return nil, err
	}
	nonce := &frost.SigningNonce{ID: share.ID, D: d, E: b}
	defer nonce.Zero(e.group)
	defer share.SecretKey.Set(e.group.NewScalar())

	if frost.CommitmentToWire(f.CommitmentFor(nonce)) != me.Entry().Commitment() {
		return nil, fault.E(fault.KindCryptographic, "sign", errNonceMismatch)
	}

	var z *frost.SignatureShare
	if req.Challenge != nil {
		c, err := f.ScalarFromWire(*req.Challenge)
		if err != nil {
			return nil, err
		}
		z, err = f.SignRound2WithChallenge(share, nonce, req.MessageHash[:], commitments, c)
		if err != nil {
			return nil, err
		}
	} else {
		z, err = f.SignRound2(share, nonce, req.MessageHash[:], commitments)
		if err != nil {
			return nil, err
		}
	}
	return &SignResponse{PartialSig: frost.ScalarToWire(z.Z)}, nil
}

// Aggregate sums the partial signatures and verifies the result, with
// the named external challenge scheme when one is given.
func (e *Engine) Aggregate(ctx context.Context, req *AggregateRequest) (*AggregateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scheme, err := frost.ChallengeByName(req.ChallengeScheme)
	if err != nil {
		return nil, fault.E(fault.KindCryptographic, "aggregate", err)
	}

	f, err := e.suite(2, len(req.Participants))
	if err != nil {
		return nil, err
	}
	commitments, err := f.CommitmentsFromSet(SetFromRecords(req.Participants))
	if err != nil {
		return nil, err
	}
	shares := make([]*frost.SignatureShare, len(req.PartialSigs))
	for i, p := range req.PartialSigs {
		shares[i], err = f.ShareFromWire(codec.PartialSignature{ID: p.ID, Z: p.PartialSig})
		if err != nil {
			return nil, err
		}
	}
	groupKey, err := f.PointFromWire(req.GroupKey)
	if err != nil {
		return nil, err
	}

	sig, err := f.Aggregate(req.MessageHash[:], commitments, shares)
	if err != nil {
		return nil, err
	}

	var valid bool
	if scheme == nil {
		valid = f.Verify(req.MessageHash[:], sig, groupKey)
	} else {
		c, err := scheme(e.group, sig.R.Bytes(), groupKey.Bytes(), req.MessageHash[:])
		if err != nil {
			return nil, fault.E(fault.KindCryptographic, "aggregate", err)
		}
		valid = f.VerifyWithChallenge(sig, groupKey, c)
	}

	wire := frost.SignatureToWire(sig)
	return &AggregateResponse{R: wire.R, Z: wire.Z, Valid: valid}, nil
}

// Keygen runs a dealer-free key generation for all participants.
func (e *Engine) Keygen(ctx context.Context, req *KeygenRequest) (*KeygenResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := frost.NewWithHasher(e.group, req.Threshold, req.Total, e.hasher)
	if err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}
	results, err := session.RunDKG(f, e.rand)
	if err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}

	resp := &KeygenResponse{Threshold: req.Threshold, Total: req.Total}
	for i, res := range results {
		ks := res.KeyShare
		resp.Shares = append(resp.Shares, ShareRecord{
			Participant: i + 1,
			GroupKey:    frost.PointToWire(ks.GroupKey),
			ID:          frost.IDToWire(ks.ID),
			SecretShare: frost.ScalarToWire(ks.SecretKey),
			PublicShare: frost.PointToWire(ks.PublicKey),
		})
	}
	return resp, nil
}
