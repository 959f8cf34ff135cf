package session

import (
	"fmt"
	"sync"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

// Nonces is a pending nonce pair and the commitment it produced.
type Nonces struct {
	Hiding     codec.Scalar
	Binding    codec.Scalar
	Commitment codec.Commitment
}

// Wipe zeroes both nonces.
func (n *Nonces) Wipe() {
	n.Hiding.Wipe()
	n.Binding.Wipe()
}

// NonceSlot holds at most one pending nonce pair, like the device's
// single nonce slot. Storing a new pair destroys the previous one, and a
// pair can be taken once.
type NonceSlot struct {
	mu      sync.Mutex
	pending *Nonces
}

// Store replaces the pending pair with n.
func (s *NonceSlot) Store(n Nonces) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.pending = &n
}

// Take returns and clears the pending pair if its commitment equals c.
// It fails with fault.ErrNoPendingCommitment when the slot is empty or
// holds a different commitment; in the latter case the pending pair stays.
func (s *NonceSlot) Take(c codec.Commitment) (Nonces, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Nonces{}, fault.E(fault.KindCryptographic, "take nonces", fault.ErrNoPendingCommitment)
	}
	if s.pending.Commitment != c {
		return Nonces{}, fault.E(fault.KindCryptographic, "take nonces",
			fmt.Errorf("%w: commitment %s is not the pending one", fault.ErrNoPendingCommitment, c.Hiding))
	}
	n := *s.pending
	s.clearLocked()
	return n, nil
}

// Pending returns the commitment of the pending pair.
func (s *NonceSlot) Pending() (codec.Commitment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return codec.Commitment{}, false
	}
	return s.pending.Commitment, true
}

// Clear destroys the pending pair.
func (s *NonceSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *NonceSlot) clearLocked() {
	if s.pending == nil {
		return
	}
	s.pending.Wipe()
	s.pending = nil
}
