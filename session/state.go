package session

import (
	"fmt"

	"github.com/f3rmion/frostguard/fault"
)

// State is a ceremony step.
type State int

const (
	StateReset State = iota
	StateKeysLoaded
	StateCommitted
	StateMessageSet
	StateCommitmentsSet
	StateChallengeOverridden
	StateSigned
)

// States lists every state in ceremony order.
var States = []State{
	StateReset,
	StateKeysLoaded,
	StateCommitted,
	StateMessageSet,
	StateCommitmentsSet,
	StateChallengeOverridden,
	StateSigned,
}

func (s State) String() string {
	switch s {
	case StateReset:
		return "RESET"
	case StateKeysLoaded:
		return "KEYS_LOADED"
	case StateCommitted:
		return "COMMITTED"
	case StateMessageSet:
		return "MESSAGE_SET"
	case StateCommitmentsSet:
		return "COMMITMENTS_SET"
	case StateChallengeOverridden:
		return "CHALLENGE_OVERRIDDEN"
	case StateSigned:
		return "SIGNED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Op is a state-changing command.
type Op int

const (
	OpReset Op = iota
	OpLoadKeys
	OpCommit
	OpInjectMessage
	OpInjectCommitments
	OpInjectChallenge
	OpPartialSign
)

// Ops lists every operation.
var Ops = []Op{
	OpReset,
	OpLoadKeys,
	OpCommit,
	OpInjectMessage,
	OpInjectCommitments,
	OpInjectChallenge,
	OpPartialSign,
}

func (o Op) String() string {
	switch o {
	case OpReset:
		return "RESET"
	case OpLoadKeys:
		return "LOAD_KEYS"
	case OpCommit:
		return "COMMIT"
	case OpInjectMessage:
		return "INJECT_MESSAGE"
	case OpInjectCommitments:
		return "INJECT_COMMITMENTS"
	case OpInjectChallenge:
		return "INJECT_CHALLENGE"
	case OpPartialSign:
		return "PARTIAL_SIGN"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Next returns the state op leads to from s, and whether op is permitted
// there. keyed reports whether key material is installed.
func Next(s State, keyed bool, op Op) (State, bool) {
	switch op {
	case OpReset:
		return StateReset, true
	case OpLoadKeys:
		if s == StateReset || s == StateKeysLoaded {
			return StateKeysLoaded, true
		}
	case OpCommit:
		// A second COMMIT replaces the pending nonces.
		if s == StateKeysLoaded || s == StateCommitted || (s == StateReset && keyed) {
			return StateCommitted, true
		}
	case OpInjectMessage:
		if s == StateCommitted {
			return StateMessageSet, true
		}
	case OpInjectCommitments:
		if s == StateMessageSet {
			return StateCommitmentsSet, true
		}
	case OpInjectChallenge:
		if s == StateCommitmentsSet {
			return StateChallengeOverridden, true
		}
	case OpPartialSign:
		if s == StateCommitmentsSet || s == StateChallengeOverridden {
			return StateSigned, true
		}
	}
	return s, false
}

// Machine enforces the ceremony order. The zero value is in RESET with no
// keys. Machine is not safe for concurrent use.
type Machine struct {
	state State
	keyed bool
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Keyed reports whether keys were loaded. Keys survive RESET.
func (m *Machine) Keyed() bool { return m.keyed }

// Check reports whether op is permitted without changing state.
func (m *Machine) Check(op Op) error {
	if _, ok := Next(m.state, m.keyed, op); !ok {
		return fault.E(fault.KindProtocol, op.String(),
			fmt.Errorf("%w: in %s", fault.ErrWrongState, m.state))
	}
	return nil
}

// Apply performs the transition for op or fails with fault.ErrWrongState.
func (m *Machine) Apply(op Op) error {
	next, ok := Next(m.state, m.keyed, op)
	if !ok {
		return m.Check(op)
	}
	if op == OpLoadKeys {
		m.keyed = true
	}
	m.state = next
	return nil
}

// Forget drops the keyed flag, for signers that clear key material.
func (m *Machine) Forget() {
	m.keyed = false
	m.state = StateReset
}
