package session

import (
	"errors"
	"fmt"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

var errZeroID = errors.New("zero participant id")

// Session is one ceremony as seen by the coordinator. It holds only
// public artifacts: the group key, the message, the registered
// commitments, and an optional injected challenge.
//
// A Session is owned by one coordinator and is not safe for concurrent
// use.
type Session struct {
	machine     Machine
	groupKey    codec.Point
	message     codec.Digest
	commitments codec.CommitmentSet
	challenge   *codec.Scalar
}

// New returns a session in RESET.
func New() *Session {
	return &Session{}
}

// State returns the current state.
func (s *Session) State() State { return s.machine.State() }

// Reset discards message, commitments, and challenge. The group key stays
// with the loaded keys.
func (s *Session) Reset() {
	_ = s.machine.Apply(OpReset)
	s.message = codec.Digest{}
	s.commitments = nil
	s.challenge = nil
}

// LoadKeys records the group key of the share installed in the device.
func (s *Session) LoadKeys(groupKey codec.Point) error {
	if err := s.machine.Apply(OpLoadKeys); err != nil {
		return err
	}
	s.groupKey = groupKey
	return nil
}

// Register adds one participant's commitment. Ids must be unique.
func (s *Session) Register(e codec.Entry) error {
	if err := s.machine.Check(OpCommit); err != nil {
		return err
	}
	if e.ID.IsZero() {
		return fault.E(fault.KindEncoding, "register", errZeroID)
	}
	if s.commitments.IndexOf(e.ID) >= 0 {
		return fault.E(fault.KindEncoding, "register",
			fmt.Errorf("id %s: %w", e.ID, fault.ErrDuplicateID))
	}
	if len(s.commitments) >= codec.MaxEntries {
		return fault.E(fault.KindEncoding, "register", fault.ErrPayloadTooLarge)
	}
	s.commitments = append(s.commitments, e)
	return s.machine.Apply(OpCommit)
}

// SetMessage records the 32-byte digest to sign.
func (s *Session) SetMessage(d codec.Digest) error {
	if err := s.machine.Apply(OpInjectMessage); err != nil {
		return err
	}
	s.message = d
	return nil
}

// Seal freezes the commitment set and returns it for injection.
func (s *Session) Seal() (codec.CommitmentSet, error) {
	if err := s.machine.Check(OpInjectCommitments); err != nil {
		return nil, err
	}
	if err := s.commitments.Validate(); err != nil {
		return nil, err
	}
	if err := s.machine.Apply(OpInjectCommitments); err != nil {
		return nil, err
	}
	return s.Commitments(), nil
}

// OverrideChallenge records an externally supplied challenge.
func (s *Session) OverrideChallenge(c codec.Scalar) error {
	if err := s.machine.Apply(OpInjectChallenge); err != nil {
		return err
	}
	s.challenge = &c
	return nil
}

// SigningInputs is what every signer needs for PARTIAL_SIGN.
type SigningInputs struct {
	Message     codec.Digest
	GroupKey    codec.Point
	Commitments codec.CommitmentSet
	Challenge   *codec.Scalar
}

// BeginSign checks that signing is permitted and returns its inputs.
func (s *Session) BeginSign() (SigningInputs, error) {
	if err := s.machine.Check(OpPartialSign); err != nil {
		return SigningInputs{}, err
	}
	in := SigningInputs{
		Message:     s.message,
		GroupKey:    s.groupKey,
		Commitments: s.Commitments(),
	}
	if s.challenge != nil {
		c := *s.challenge
		in.Challenge = &c
	}
	return in, nil
}

// Finish moves the session to SIGNED once every share was collected.
func (s *Session) Finish() error {
	return s.machine.Apply(OpPartialSign)
}

// GroupKey returns the loaded group key.
func (s *Session) GroupKey() codec.Point { return s.groupKey }

// Message returns the injected digest.
func (s *Session) Message() codec.Digest { return s.message }

// Commitments returns a copy of the registered commitments in order.
func (s *Session) Commitments() codec.CommitmentSet {
	return append(codec.CommitmentSet(nil), s.commitments...)
}

// Challenge returns the injected challenge, if any.
func (s *Session) Challenge() (codec.Scalar, bool) {
	if s.challenge == nil {
		return codec.Scalar{}, false
	}
	return *s.challenge, true
}
