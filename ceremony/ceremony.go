// Package ceremony drives a set of heterogeneous participants through one
// threshold signing ceremony and hands the result to an aggregator.
package ceremony

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/localsigner"
	"github.com/f3rmion/frostguard/participant"
	"github.com/f3rmion/frostguard/session"
)

var errNoGroupKey = errors.New("no group key")

// Config configures a Coordinator.
type Config struct {
	// Observer receives an event after every step. Optional.
	Observer Observer
}

// Coordinator runs ceremonies one at a time. It remembers every
// commitment it has seen and refuses to use one twice.
type Coordinator struct {
	f   *frost.FROST
	agg localsigner.Aggregator
	obs Observer

	mu       sync.Mutex
	consumed map[codec.Commitment]struct{}
}

// New returns a coordinator for f's threshold, group, and challenge
// derivation, aggregating through agg.
func New(f *frost.FROST, agg localsigner.Aggregator, cfg Config) *Coordinator {
	return &Coordinator{
		f:        f,
		agg:      agg,
		obs:      cfg.Observer,
		consumed: make(map[codec.Commitment]struct{}),
	}
}

// Request describes one ceremony.
type Request struct {
	Message codec.Digest
	Signers []participant.Participant
	// Keys are installed into signers implementing participant.KeyLoader
	// and wiped once Run returns.
	Keys map[codec.ID]*codec.KeyShare
	// GroupKey is required when Keys is empty.
	GroupKey codec.Point
	// ChallengeScheme names an external challenge to inject into every
	// signer. Empty lets signers derive the challenge themselves.
	ChallengeScheme string
}

// Result is the outcome of a ceremony that reached aggregation.
type Result struct {
	Commitments codec.CommitmentSet
	Partials    []codec.PartialSignature
	Challenge   *codec.Scalar
	Signature   codec.GroupSignature
	Valid       bool
	Transcript  *Transcript
}

func (c *Coordinator) emit(step Step, id codec.ID, err error) error {
	if c.obs != nil {
		c.obs.Observe(Event{Step: step, Participant: id, Err: err})
	}
	return err
}

// Run executes reset, key loading, commitment, message and commitment set
// injection, the optional challenge override, signing, and aggregation,
// in that order. Any failure ends the attempt; the session can be reused
// by calling Run again.
//
// A ceremony that completes with a signature that does not verify
// returns its Result together with fault.ErrInvalidSignature.
func (c *Coordinator) Run(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer wipe(req.Keys)

	scheme, err := frost.ChallengeByName(req.ChallengeScheme)
	if err != nil {
		return nil, fault.E(fault.KindCryptographic, "challenge scheme", err)
	}
	if err := c.checkQuorum(req.Signers); err != nil {
		return nil, err
	}

	if err := c.reset(ctx, sess, req.Signers); err != nil {
		return nil, err
	}
	if err := c.loadKeys(ctx, sess, req); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, sess, req.Signers); err != nil {
		return nil, err
	}

	if err := c.emit(StepInjectMessage, codec.ID{}, sess.SetMessage(req.Message)); err != nil {
		return nil, err
	}
	for _, inj := range injectors(req.Signers) {
		if err := c.emit(StepInjectMessage, inj.id, inj.InjectMessage(ctx, req.Message)); err != nil {
			return nil, err
		}
	}

	set, err := sess.Seal()
	if err != nil {
		return nil, c.emit(StepInjectCommitments, codec.ID{}, err)
	}
	if err := checkParticipants(set, req.Signers); err != nil {
		return nil, c.emit(StepInjectCommitments, codec.ID{}, err)
	}
	for _, inj := range injectors(req.Signers) {
		if err := c.emit(StepInjectCommitments, inj.id, inj.InjectCommitments(ctx, set)); err != nil {
			return nil, err
		}
	}

	if scheme != nil {
		if err := c.overrideChallenge(ctx, sess, scheme, req.Signers); err != nil {
			return nil, err
		}
	}

	in, err := sess.BeginSign()
	if err != nil {
		return nil, c.emit(StepSign, codec.ID{}, err)
	}
	partials, err := c.sign(ctx, in, req.Signers)
	if err != nil {
		return nil, err
	}
	if err := sess.Finish(); err != nil {
		return nil, c.emit(StepSign, codec.ID{}, err)
	}

	return c.aggregate(ctx, in, partials, req.ChallengeScheme)
}

func (c *Coordinator) checkQuorum(signers []participant.Participant) error {
	seen := make(map[codec.ID]struct{}, len(signers))
	for _, p := range signers {
		id := p.ID()
		if _, dup := seen[id]; dup {
			return fault.E(fault.KindEncoding, "quorum", fmt.Errorf("id %s: %w", id, fault.ErrDuplicateID))
		}
		seen[id] = struct{}{}
	}
	if len(seen) < c.f.Threshold() {
		return fault.E(fault.KindCryptographic, "quorum",
			fmt.Errorf("%w: %d signers, threshold %d", fault.ErrBelowThreshold, len(seen), c.f.Threshold()))
	}
	if len(seen) > codec.MaxEntries {
		return fault.E(fault.KindEncoding, "quorum", fault.ErrPayloadTooLarge)
	}
	return nil
}

func (c *Coordinator) reset(ctx context.Context, sess *session.Session, signers []participant.Participant) error {
	sess.Reset()
	for _, p := range signers {
		r, ok := p.(participant.Resetter)
		if !ok {
			continue
		}
		if err := c.emit(StepReset, p.ID(), r.Reset(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) loadKeys(ctx context.Context, sess *session.Session, req Request) error {
	groupKey := req.GroupKey
	loaded := 0
	for _, p := range req.Signers {
		share, ok := req.Keys[p.ID()]
		if !ok {
			continue
		}
		kl, ok := p.(participant.KeyLoader)
		if !ok {
			return c.emit(StepLoadKeys, p.ID(), fault.E(fault.KindCryptographic, "load keys",
				fmt.Errorf("%w: signer %s does not accept key shares", fault.ErrParticipantSetMismatch, p.ID())))
		}
		if groupKey != (codec.Point{}) && groupKey != share.GroupKey {
			return c.emit(StepLoadKeys, p.ID(), fault.E(fault.KindCryptographic, "load keys",
				fmt.Errorf("%w: share %s belongs to another group", fault.ErrParticipantSetMismatch, p.ID())))
		}
		groupKey = share.GroupKey
		if err := c.emit(StepLoadKeys, p.ID(), kl.LoadKeys(ctx, share)); err != nil {
			return err
		}
		loaded++
	}
	if loaded != len(req.Keys) {
		return c.emit(StepLoadKeys, codec.ID{}, fault.E(fault.KindCryptographic, "load keys",
			fmt.Errorf("%w: %d key shares for non-signers", fault.ErrParticipantSetMismatch, len(req.Keys)-loaded)))
	}
	if groupKey == (codec.Point{}) {
		return c.emit(StepLoadKeys, codec.ID{}, fault.E(fault.KindCryptographic, "load keys", errNoGroupKey))
	}
	return c.emit(StepLoadKeys, codec.ID{}, sess.LoadKeys(groupKey))
}

// commit collects one commitment from every signer concurrently and
// registers them in signer order. A failing signer does not cancel the
// others, since a device command cannot be interrupted once sent.
func (c *Coordinator) commit(ctx context.Context, sess *session.Session, signers []participant.Participant) error {
	commitments := make([]codec.Commitment, len(signers))
	var g errgroup.Group
	for i, p := range signers {
		g.Go(func() error {
			cm, err := p.Commit(ctx)
			if err := c.emit(StepCommit, p.ID(), err); err != nil {
				return err
			}
			commitments[i] = cm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fresh := make(map[codec.Commitment]struct{}, len(commitments))
	for i, cm := range commitments {
		_, used := c.consumed[cm]
		_, dup := fresh[cm]
		if used || dup {
			return c.emit(StepCommit, signers[i].ID(), fault.E(fault.KindCryptographic, "commit",
				fmt.Errorf("%w: signer %s", fault.ErrCommitmentReused, signers[i].ID())))
		}
		fresh[cm] = struct{}{}
	}
	for cm := range fresh {
		c.consumed[cm] = struct{}{}
	}

	for i, cm := range commitments {
		e := codec.Entry{ID: signers[i].ID(), Hiding: cm.Hiding, Binding: cm.Binding}
		if err := sess.Register(e); err != nil {
			return c.emit(StepCommit, e.ID, err)
		}
	}
	return nil
}

// checkParticipants verifies that every signer has exactly one entry in
// set and that set has no other entries.
func checkParticipants(set codec.CommitmentSet, signers []participant.Participant) error {
	if len(set) != len(signers) {
		return fault.E(fault.KindCryptographic, "commitment set",
			fmt.Errorf("%w: %d entries for %d signers", fault.ErrParticipantSetMismatch, len(set), len(signers)))
	}
	for _, p := range signers {
		if set.IndexOf(p.ID()) < 0 {
			return fault.E(fault.KindCryptographic, "commitment set",
				fmt.Errorf("%w: no entry for %s", fault.ErrParticipantSetMismatch, p.ID()))
		}
	}
	return nil
}

func (c *Coordinator) overrideChallenge(ctx context.Context, sess *session.Session, scheme frost.ChallengeFunc, signers []participant.Participant) error {
	comms, err := c.f.CommitmentsFromSet(sess.Commitments())
	if err != nil {
		return c.emit(StepInjectChallenge, codec.ID{}, err)
	}
	groupKey, err := c.f.PointFromWire(sess.GroupKey())
	if err != nil {
		return c.emit(StepInjectChallenge, codec.ID{}, err)
	}
	msg := sess.Message()
	ch, err := c.f.ChallengeFor(scheme, msg[:], comms, groupKey)
	if err != nil {
		return c.emit(StepInjectChallenge, codec.ID{}, fault.E(fault.KindCryptographic, "challenge", err))
	}
	wire := frost.ScalarToWire(ch)
	if err := c.emit(StepInjectChallenge, codec.ID{}, sess.OverrideChallenge(wire)); err != nil {
		return err
	}
	for _, inj := range injectors(signers) {
		if err := c.emit(StepInjectChallenge, inj.id, inj.InjectChallenge(ctx, wire)); err != nil {
			return err
		}
	}
	return nil
}

// sign collects partial signatures concurrently, ordered like the set.
func (c *Coordinator) sign(ctx context.Context, in session.SigningInputs, signers []participant.Participant) ([]codec.PartialSignature, error) {
	partials := make([]codec.PartialSignature, len(in.Commitments))
	var g errgroup.Group
	for _, p := range signers {
		idx := in.Commitments.IndexOf(p.ID())
		g.Go(func() error {
			z, err := p.Sign(ctx, participant.SigningContext{
				Message:     in.Message,
				GroupKey:    in.GroupKey,
				Commitments: in.Commitments,
				Index:       idx,
				Challenge:   in.Challenge,
			})
			if err == nil && z.ID != p.ID() {
				err = fault.E(fault.KindCryptographic, "sign",
					fmt.Errorf("%w: signer %s returned share for %s", fault.ErrParticipantSetMismatch, p.ID(), z.ID))
			}
			if err := c.emit(StepSign, p.ID(), err); err != nil {
				return err
			}
			partials[idx] = z
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}

func (c *Coordinator) aggregate(ctx context.Context, in session.SigningInputs, partials []codec.PartialSignature, scheme string) (*Result, error) {
	req := &localsigner.AggregateRequest{
		GroupKey:        in.GroupKey,
		MessageHash:     in.Message,
		Participants:    localsigner.RecordsFromSet(in.Commitments),
		ChallengeScheme: scheme,
	}
	for _, p := range partials {
		req.PartialSigs = append(req.PartialSigs, localsigner.PartialRecord{ID: p.ID, PartialSig: p.Z})
	}
	resp, err := c.agg.Aggregate(ctx, req)
	if err := c.emit(StepAggregate, codec.ID{}, err); err != nil {
		return nil, fault.Wrap("aggregate", err)
	}

	res := &Result{
		Commitments: in.Commitments,
		Partials:    partials,
		Challenge:   in.Challenge,
		Signature:   resp.Signature(),
		Valid:       resp.Valid,
	}
	res.Transcript = c.transcript(in, res, scheme)
	if !res.Valid {
		return res, c.emit(StepAggregate, codec.ID{}, fault.E(fault.KindCryptographic, "verify",
			fmt.Errorf("%w: signers disagree on the challenge derivation", fault.ErrInvalidSignature)))
	}
	return res, nil
}

func (c *Coordinator) transcript(in session.SigningInputs, res *Result, scheme string) *Transcript {
	t := &Transcript{
		Version:         TranscriptVersion,
		Threshold:       uint16(c.f.Threshold()),
		Message:         in.Message,
		GroupKey:        in.GroupKey,
		ChallengeScheme: scheme,
		R:               res.Signature.R,
		Z:               res.Signature.Z,
		Valid:           res.Valid,
	}
	if in.Challenge != nil {
		t.Overridden = true
		t.Challenge = *in.Challenge
	}
	for i, e := range in.Commitments {
		t.Signers = append(t.Signers, TranscriptSigner{
			ID:      e.ID,
			Hiding:  e.Hiding,
			Binding: e.Binding,
			Partial: res.Partials[i].Z,
		})
	}
	return t
}

type injector struct {
	participant.Injector
	id codec.ID
}

func injectors(signers []participant.Participant) []injector {
	var out []injector
	for _, p := range signers {
		if inj, ok := p.(participant.Injector); ok {
			out = append(out, injector{Injector: inj, id: p.ID()})
		}
	}
	return out
}

func wipe(keys map[codec.ID]*codec.KeyShare) {
	for _, k := range keys {
		k.Wipe()
	}
}
