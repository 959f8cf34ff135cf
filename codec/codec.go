package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/f3rmion/frostguard/fault"
)

const (
	// Size is the width of every id, scalar, and point encoding.
	Size = 32

	CommitmentSize = 2 * Size
	EntrySize      = 3 * Size
	KeyShareSize   = 3 * Size
	SignatureSize  = 2 * Size

	// MaxEntries is the largest commitment set whose count fits the
	// parameter byte.
	MaxEntries = 255
)

// ID is a participant identifier in scalar encoding.
type ID [Size]byte

// Scalar is a fixed-width scalar encoding.
type Scalar [Size]byte

// Point is a fixed-width compressed curve point encoding.
type Point [Size]byte

// Digest is the 32-byte message digest being signed.
type Digest [Size]byte

// IDFromIndex returns the scalar encoding of a small participant index.
func IDFromIndex(i uint16) ID {
	var id ID
	binary.BigEndian.PutUint16(id[Size-2:], i)
	return id
}

// IsZero reports whether the id is all zero bytes.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) String() string { return hex.EncodeToString(id[:]) }

func (id ID) MarshalText() ([]byte, error) { return marshalHex(id[:]) }

func (id *ID) UnmarshalText(text []byte) error { return unmarshalHex(id[:], text) }

// IsZero reports whether the scalar is all zero bytes.
func (s Scalar) IsZero() bool { return s == Scalar{} }

func (s Scalar) String() string { return hex.EncodeToString(s[:]) }

func (s Scalar) MarshalText() ([]byte, error) { return marshalHex(s[:]) }

func (s *Scalar) UnmarshalText(text []byte) error { return unmarshalHex(s[:], text) }

// Wipe zeroes the scalar in place.
func (s *Scalar) Wipe() { *s = Scalar{} }

func (p Point) String() string { return hex.EncodeToString(p[:]) }

func (p Point) MarshalText() ([]byte, error) { return marshalHex(p[:]) }

func (p *Point) UnmarshalText(text []byte) error { return unmarshalHex(p[:], text) }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) MarshalText() ([]byte, error) { return marshalHex(d[:]) }

func (d *Digest) UnmarshalText(text []byte) error { return unmarshalHex(d[:], text) }

// ParseDigest decodes a hex message digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

func marshalHex(b []byte) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

func unmarshalHex(dst, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fault.E(fault.KindEncoding, "decode hex",
			fmt.Errorf("want %d bytes, got %d hex chars: %w", len(dst), len(text), fault.ErrWrongLength))
	}
	if _, err := hex.Decode(dst, text); err != nil {
		return fault.E(fault.KindEncoding, "decode hex", err)
	}
	return nil
}

// KeyShare is one participant's share of the group key.
type KeyShare struct {
	GroupKey Point
	ID       ID
	Secret   Scalar
}

// MarshalBinary returns group key ∥ id ∥ secret.
func (k KeyShare) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, KeyShareSize)
	out = append(out, k.GroupKey[:]...)
	out = append(out, k.ID[:]...)
	out = append(out, k.Secret[:]...)
	return out, nil
}

// UnmarshalBinary decodes a 96-byte key share.
func (k *KeyShare) UnmarshalBinary(data []byte) error {
	if len(data) != KeyShareSize {
		return fault.E(fault.KindEncoding, "decode key share",
			fmt.Errorf("%d bytes: %w", len(data), fault.ErrWrongLength))
	}
	copy(k.GroupKey[:], data[:Size])
	copy(k.ID[:], data[Size:2*Size])
	copy(k.Secret[:], data[2*Size:])
	return nil
}

// Wipe zeroes the secret share.
func (k *KeyShare) Wipe() { k.Secret.Wipe() }

// Commitment is a participant's public hiding/binding pair for one signing attempt.
type Commitment struct {
	Hiding  Point
	Binding Point
}

// MarshalBinary returns hiding ∥ binding.
func (c Commitment) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, CommitmentSize)
	out = append(out, c.Hiding[:]...)
	out = append(out, c.Binding[:]...)
	return out, nil
}

// UnmarshalBinary decodes a 64-byte commitment.
func (c *Commitment) UnmarshalBinary(data []byte) error {
	if len(data) != CommitmentSize {
		return fault.E(fault.KindEncoding, "decode commitment",
			fmt.Errorf("%d bytes: %w", len(data), fault.ErrWrongLength))
	}
	copy(c.Hiding[:], data[:Size])
	copy(c.Binding[:], data[Size:])
	return nil
}

// Entry is the public, attributable form of a commitment.
type Entry struct {
	ID      ID
	Hiding  Point
	Binding Point
}

// Commitment drops the identifier.
func (e Entry) Commitment() Commitment {
	return Commitment{Hiding: e.Hiding, Binding: e.Binding}
}

// MarshalBinary returns id ∥ hiding ∥ binding.
func (e Entry) MarshalBinary() ([]byte, error) {
	return e.appendTo(make([]byte, 0, EntrySize)), nil
}

func (e Entry) appendTo(out []byte) []byte {
	out = append(out, e.ID[:]...)
	out = append(out, e.Hiding[:]...)
	return append(out, e.Binding[:]...)
}

// UnmarshalBinary decodes a 96-byte entry.
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) != EntrySize {
		return fault.E(fault.KindEncoding, "decode entry",
			fmt.Errorf("%d bytes: %w", len(data), fault.ErrMalformedCommitmentSet))
	}
	copy(e.ID[:], data[:Size])
	copy(e.Hiding[:], data[Size:2*Size])
	copy(e.Binding[:], data[2*Size:])
	return nil
}

// CommitmentSet is the ordered list of entries injected into every signer.
type CommitmentSet []Entry

// Validate checks the entry count and id uniqueness.
func (s CommitmentSet) Validate() error {
	if len(s) == 0 {
		return fault.E(fault.KindEncoding, "validate commitment set",
			fmt.Errorf("empty set: %w", fault.ErrMalformedCommitmentSet))
	}
	if len(s) > MaxEntries {
		return fault.E(fault.KindEncoding, "validate commitment set",
			fmt.Errorf("%d entries: %w", len(s), fault.ErrPayloadTooLarge))
	}
	seen := make(map[ID]struct{}, len(s))
	for _, e := range s {
		if _, dup := seen[e.ID]; dup {
			return fault.E(fault.KindEncoding, "validate commitment set",
				fmt.Errorf("id %s: %w", e.ID, fault.ErrDuplicateID))
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Count returns the entry count as carried in the parameter byte.
// Call Validate first; Count truncates sets larger than MaxEntries.
func (s CommitmentSet) Count() byte {
	return byte(len(s))
}

// MarshalBinary encodes the set as N × 96 bytes after validating it.
func (s CommitmentSet) MarshalBinary() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(s)*EntrySize)
	for _, e := range s {
		out = e.appendTo(out)
	}
	return out, nil
}

// IndexOf returns the position of id in the set, or -1.
func (s CommitmentSet) IndexOf(id ID) int {
	for i, e := range s {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the identifiers in set order.
func (s CommitmentSet) IDs() []ID {
	ids := make([]ID, len(s))
	for i, e := range s {
		ids[i] = e.ID
	}
	return ids
}

// Equal reports whether both sets hold the same entries in the same order.
func (s CommitmentSet) Equal(o CommitmentSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// DecodeCommitmentSet decodes a payload against its out-of-band count.
func DecodeCommitmentSet(payload []byte, count int) (CommitmentSet, error) {
	if len(payload)%EntrySize != 0 {
		return nil, fault.E(fault.KindEncoding, "decode commitment set",
			fmt.Errorf("%d bytes is not a multiple of %d: %w", len(payload), EntrySize, fault.ErrMalformedCommitmentSet))
	}
	if n := len(payload) / EntrySize; n != count {
		return nil, fault.E(fault.KindEncoding, "decode commitment set",
			fmt.Errorf("declared %d entries, payload holds %d: %w", count, n, fault.ErrMalformedCommitmentSet))
	}
	if count > MaxEntries {
		return nil, fault.E(fault.KindEncoding, "decode commitment set",
			fmt.Errorf("%d entries: %w", count, fault.ErrPayloadTooLarge))
	}
	set := make(CommitmentSet, count)
	for i := range set {
		if err := set[i].UnmarshalBinary(payload[i*EntrySize : (i+1)*EntrySize]); err != nil {
			return nil, err
		}
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// PartialSignature is one participant's signature share.
type PartialSignature struct {
	ID ID
	Z  Scalar
}

// GroupSignature is the aggregated (R, z) pair.
type GroupSignature struct {
	R Point
	Z Scalar
}

// MarshalBinary returns R ∥ z.
func (g GroupSignature) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, SignatureSize)
	out = append(out, g.R[:]...)
	return append(out, g.Z[:]...), nil
}

// UnmarshalBinary decodes a 64-byte signature.
func (g *GroupSignature) UnmarshalBinary(data []byte) error {
	if len(data) != SignatureSize {
		return fault.E(fault.KindEncoding, "decode signature",
			fmt.Errorf("%d bytes: %w", len(data), fault.ErrWrongLength))
	}
	copy(g.R[:], data[:Size])
	copy(g.Z[:], data[Size:])
	return nil
}

// Chunks splits an encoded commitment set into whole-entry pieces of at
// most limit bytes. The pieces alias payload.
func Chunks(payload []byte, limit int) [][]byte {
	per := (limit / EntrySize) * EntrySize
	if per == 0 {
		per = limit
	}
	var out [][]byte
	for len(payload) > per {
		out = append(out, payload[:per])
		payload = payload[per:]
	}
	if len(payload) > 0 || len(out) == 0 {
		out = append(out, payload)
	}
	return out
}
