package frost

import (
	"errors"
	"fmt"

	"github.com/f3rmion/frostguard/group"
)

// MaxParticipants is the largest participant count an identifier encoding
// or a device commitment set can carry.
const MaxParticipants = 255

// BindingMode selects how binding factors are derived from the
// commitment list.
type BindingMode int

const (
	// BindingPerParticipant derives rho_i = H1(m, B, id_i) for every signer.
	BindingPerParticipant BindingMode = iota
	// BindingShared derives a single rho = H1(m, B, "") used by all
	// signers. Older device firmware computes it this way; signatures
	// mixing the two modes do not verify.
	BindingShared
)

func (m BindingMode) String() string {
	switch m {
	case BindingPerParticipant:
		return "per-participant"
	case BindingShared:
		return "shared"
	default:
		return fmt.Sprintf("BindingMode(%d)", int(m))
	}
}

// FROST holds the group, threshold parameters, and hash suite.
type FROST struct {
	group     group.Group
	hasher    Hasher
	binding   BindingMode
	threshold int // t - minimum signers needed
	total     int // n - total participants
}

// KeyShare represents a participant's share of the secret key.
type KeyShare struct {
	ID        group.Scalar // participant identifier
	SecretKey group.Scalar // secret key share
	PublicKey group.Point  // public key share
	GroupKey  group.Point  // combined group public key
}

// Signature is a Schnorr signature.
type Signature struct {
	R group.Point
	Z group.Scalar
}

// New creates a FROST instance hashing with [SHA256Hasher].
// threshold is the minimum number of signers required (t).
// total is the total number of participants (n).
func New(g group.Group, threshold, total int) (*FROST, error) {
	return NewWithHasher(g, threshold, total, &SHA256Hasher{})
}

// NewWithHasher creates a FROST instance using h for binding factors and
// challenges. Use [NewBlake2bHasher] to interoperate with the device.
func NewWithHasher(g group.Group, threshold, total int, h Hasher) (*FROST, error) {
	if g == nil {
		return nil, errors.New("group is required")
	}
	if h == nil {
		return nil, errors.New("hasher is required")
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if total < threshold {
		return nil, errors.New("total must be >= threshold")
	}
	if total > MaxParticipants {
		return nil, fmt.Errorf("total must be <= %d", MaxParticipants)
	}

	return &FROST{
		group:     g,
		hasher:    h,
		threshold: threshold,
		total:     total,
	}, nil
}

// WithBinding returns a copy of f deriving binding factors in mode m.
func (f *FROST) WithBinding(m BindingMode) *FROST {
	c := *f
	c.binding = m
	return &c
}

// Group returns the group f operates in.
func (f *FROST) Group() group.Group { return f.group }

// Hasher returns the hash suite.
func (f *FROST) Hasher() Hasher { return f.hasher }

// Binding returns the binding factor mode.
func (f *FROST) Binding() BindingMode { return f.binding }

// Threshold returns t.
func (f *FROST) Threshold() int { return f.threshold }

// Total returns n.
func (f *FROST) Total() int { return f.total }

// Identifier returns the scalar identifier of participant n (1-based).
func (f *FROST) Identifier(n int) group.Scalar {
	return f.scalarFromInt(n)
}

func (f *FROST) scalarFromInt(n int) group.Scalar {
	s := f.group.NewScalar()
	buf := make([]byte, 32)
	// big-endian, matching the device's 16-bit identifiers
	buf[30] = byte(n >> 8)
	buf[31] = byte(n)
	s.SetBytes(buf)
	return s
}

func (f *FROST) evalPolynomial(coeffs []group.Scalar, x group.Scalar) group.Scalar {
	result := f.group.NewScalar().Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = f.group.NewScalar().Mul(result, x)
		result = f.group.NewScalar().Add(result, coeffs[i])
	}
	return result
}
