package participant

import (
	"context"
	"sync"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/localsigner"
	"github.com/f3rmion/frostguard/session"
)

// Local is a participant backed by a local signing capability. It owns
// its key share and the nonces of its pending commitment; neither is
// exposed.
type Local struct {
	signer localsigner.Signer

	mu    sync.Mutex
	share codec.KeyShare
	slot  session.NonceSlot
}

var _ Participant = (*Local)(nil)

// NewLocal returns a participant signing with share through signer. The
// caller should wipe its own copy of share.
func NewLocal(signer localsigner.Signer, share codec.KeyShare) *Local {
	return &Local{signer: signer, share: share}
}

// ID implements [Participant].
func (l *Local) ID() codec.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.share.ID
}

// Commit implements [Participant]. A pending commitment is discarded.
func (l *Local) Commit(ctx context.Context) (codec.Commitment, error) {
	resp, err := l.signer.Commit(ctx)
	if err != nil {
		return codec.Commitment{}, fault.Wrap("local commit", err)
	}
	defer resp.Wipe()

	c := resp.Commitment()
	l.slot.Store(session.Nonces{
		Hiding:     resp.HidingNonce,
		Binding:    resp.BindingNonce,
		Commitment: c,
	})
	return c, nil
}

// Sign implements [Participant]. The pending nonces are consumed before
// the signer is called, so a failed call cannot be retried with them.
func (l *Local) Sign(ctx context.Context, sc SigningContext) (codec.PartialSignature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := checkEntry(l.share.ID, sc)
	if err != nil {
		return codec.PartialSignature{}, err
	}
	nonces, err := l.slot.Take(e.Commitment())
	if err != nil {
		return codec.PartialSignature{}, err
	}
	defer nonces.Wipe()

	secret := l.share.Secret
	req := &localsigner.SignRequest{
		MessageHash:  sc.Message,
		GroupKey:     sc.GroupKey,
		Participants: localsigner.RecordsFromSet(sc.Commitments),
		SignerIndex:  sc.Index,
		Challenge:    sc.Challenge,
	}
	me := &req.Participants[sc.Index]
	me.SecretShare = &secret
	me.HidingNonce = &nonces.Hiding
	me.BindingNonce = &nonces.Binding
	defer req.Wipe()

	resp, err := l.signer.Sign(ctx, req)
	if err != nil {
		return codec.PartialSignature{}, fault.Wrap("local sign", err)
	}
	return codec.PartialSignature{ID: l.share.ID, Z: resp.PartialSig}, nil
}

// Reset implements [Resetter] by dropping the pending nonces.
func (l *Local) Reset(context.Context) error {
	l.slot.Clear()
	return nil
}

// Close wipes the key share and pending nonces.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slot.Clear()
	l.share.Wipe()
	return nil
}
