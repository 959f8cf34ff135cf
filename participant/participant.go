// Package participant drives heterogeneous signers through one protocol.
//
// Every signer implements [Participant]. The device-backed [Device] talks
// to the secure element over an apdu.Transport; [Local] calls a
// localsigner.Signer. Both keep exactly one pending commitment: a second
// Commit invalidates the first, and Sign consumes it.
package participant

import (
	"context"
	"fmt"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

// SigningContext is everything a signer needs to produce its share.
type SigningContext struct {
	Message     codec.Digest
	GroupKey    codec.Point
	Commitments codec.CommitmentSet
	// Index is the position of this signer's entry in Commitments.
	Index int
	// Challenge, when set, replaces the internally derived challenge.
	Challenge *codec.Scalar
}

// Entry returns the signer's own commitment set entry.
func (sc SigningContext) Entry() (codec.Entry, error) {
	if sc.Index < 0 || sc.Index >= len(sc.Commitments) {
		return codec.Entry{}, fault.E(fault.KindCryptographic, "signing context",
			fmt.Errorf("%w: index %d of %d entries", fault.ErrParticipantSetMismatch, sc.Index, len(sc.Commitments)))
	}
	return sc.Commitments[sc.Index], nil
}

// Participant is one signer.
type Participant interface {
	// ID returns the signer's participant identifier.
	ID() codec.ID
	// Commit produces a fresh commitment and retains its nonces.
	Commit(ctx context.Context) (codec.Commitment, error)
	// Sign consumes the pending nonces and returns the partial signature.
	Sign(ctx context.Context, sc SigningContext) (codec.PartialSignature, error)
}

// KeyLoader is a signer whose key share is installed from outside.
type KeyLoader interface {
	LoadKeys(ctx context.Context, share *codec.KeyShare) error
}

// Resetter is a signer with session state that can be cleared.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Injector is a signer that receives the message, commitment set, and
// optional challenge as separate steps before signing.
type Injector interface {
	InjectMessage(ctx context.Context, d codec.Digest) error
	InjectCommitments(ctx context.Context, set codec.CommitmentSet) error
	InjectChallenge(ctx context.Context, c codec.Scalar) error
}

// checkEntry verifies that the context's entry belongs to id.
func checkEntry(id codec.ID, sc SigningContext) (codec.Entry, error) {
	e, err := sc.Entry()
	if err != nil {
		return codec.Entry{}, err
	}
	if e.ID != id {
		return codec.Entry{}, fault.E(fault.KindCryptographic, "signing context",
			fmt.Errorf("%w: entry %d is %s, signer is %s", fault.ErrParticipantSetMismatch, sc.Index, e.ID, id))
	}
	return e, nil
}
