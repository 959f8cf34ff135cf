package frost

import (
	"bytes"
	"errors"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/group"
)

var errNonCanonical = errors.New("scalar not below the group order")

// ScalarFromWire decodes a 32-byte big-endian scalar. Encodings at or
// above the group order are rejected rather than reduced.
func (f *FROST) ScalarFromWire(s codec.Scalar) (group.Scalar, error) {
	out, err := f.group.NewScalar().SetBytes(s[:])
	if err != nil {
		return nil, fault.E(fault.KindEncoding, "decode scalar", err)
	}
	if !bytes.Equal(out.Bytes(), s[:]) {
		return nil, fault.E(fault.KindEncoding, "decode scalar", errNonCanonical)
	}
	return out, nil
}

// ScalarToWire encodes s in 32 bytes.
func ScalarToWire(s group.Scalar) codec.Scalar {
	var out codec.Scalar
	copy(out[:], s.Bytes())
	return out
}

// IDFromWire decodes a participant identifier. Zero and non-canonical
// encodings are rejected.
func (f *FROST) IDFromWire(id codec.ID) (group.Scalar, error) {
	if id.IsZero() {
		return nil, fault.E(fault.KindEncoding, "decode id", errZeroID)
	}
	return f.ScalarFromWire(codec.Scalar(id))
}

// IDToWire encodes a participant identifier.
func IDToWire(id group.Scalar) codec.ID {
	return codec.ID(ScalarToWire(id))
}

// PointFromWire decodes a compressed point, rejecting encodings that are
// not on the curve.
func (f *FROST) PointFromWire(p codec.Point) (group.Point, error) {
	out, err := f.group.NewPoint().SetBytes(p[:])
	if err != nil {
		return nil, fault.E(fault.KindEncoding, "decode point", err)
	}
	return out, nil
}

// PointToWire encodes p in 32 bytes.
func PointToWire(p group.Point) codec.Point {
	var out codec.Point
	copy(out[:], p.Bytes())
	return out
}

// KeyShareFromWire decodes a wire key share and derives its public share.
func (f *FROST) KeyShareFromWire(k codec.KeyShare) (*KeyShare, error) {
	if k.ID.IsZero() {
		return nil, fault.E(fault.KindEncoding, "decode key share", errZeroID)
	}
	groupKey, err := f.PointFromWire(k.GroupKey)
	if err != nil {
		return nil, err
	}
	id, err := f.IDFromWire(k.ID)
	if err != nil {
		return nil, err
	}
	secret, err := f.ScalarFromWire(k.Secret)
	if err != nil {
		return nil, err
	}
	return &KeyShare{
		ID:        id,
		SecretKey: secret,
		PublicKey: f.group.NewPoint().ScalarMult(secret, f.group.Generator()),
		GroupKey:  groupKey,
	}, nil
}

// KeyShareToWire encodes k as group key ∥ id ∥ secret.
func KeyShareToWire(k *KeyShare) codec.KeyShare {
	return codec.KeyShare{
		GroupKey: PointToWire(k.GroupKey),
		ID:       IDToWire(k.ID),
		Secret:   ScalarToWire(k.SecretKey),
	}
}

// CommitmentToWire encodes the hiding and binding points of c.
func CommitmentToWire(c *SigningCommitment) codec.Commitment {
	return codec.Commitment{
		Hiding:  PointToWire(c.HidingPoint),
		Binding: PointToWire(c.BindingPoint),
	}
}

// EntryToWire encodes c as a commitment set entry.
func EntryToWire(c *SigningCommitment) codec.Entry {
	return codec.Entry{
		ID:      IDToWire(c.ID),
		Hiding:  PointToWire(c.HidingPoint),
		Binding: PointToWire(c.BindingPoint),
	}
}

// CommitmentsToSet encodes commitments in order.
func CommitmentsToSet(commitments []*SigningCommitment) codec.CommitmentSet {
	set := make(codec.CommitmentSet, len(commitments))
	for i, c := range commitments {
		set[i] = EntryToWire(c)
	}
	return set
}

// CommitmentsFromSet decodes a commitment set, keeping its order.
func (f *FROST) CommitmentsFromSet(set codec.CommitmentSet) ([]*SigningCommitment, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	out := make([]*SigningCommitment, len(set))
	for i, e := range set {
		id, err := f.IDFromWire(e.ID)
		if err != nil {
			return nil, err
		}
		hiding, err := f.PointFromWire(e.Hiding)
		if err != nil {
			return nil, err
		}
		binding, err := f.PointFromWire(e.Binding)
		if err != nil {
			return nil, err
		}
		out[i] = &SigningCommitment{ID: id, HidingPoint: hiding, BindingPoint: binding}
	}
	return out, nil
}

// SignatureToWire encodes sig as R ∥ z.
func SignatureToWire(sig *Signature) codec.GroupSignature {
	return codec.GroupSignature{R: PointToWire(sig.R), Z: ScalarToWire(sig.Z)}
}

// SignatureFromWire decodes R ∥ z.
func (f *FROST) SignatureFromWire(sig codec.GroupSignature) (*Signature, error) {
	R, err := f.PointFromWire(sig.R)
	if err != nil {
		return nil, err
	}
	z, err := f.ScalarFromWire(sig.Z)
	if err != nil {
		return nil, err
	}
	return &Signature{R: R, Z: z}, nil
}

// ShareFromWire decodes a partial signature.
func (f *FROST) ShareFromWire(p codec.PartialSignature) (*SignatureShare, error) {
	id, err := f.IDFromWire(p.ID)
	if err != nil {
		return nil, err
	}
	z, err := f.ScalarFromWire(p.Z)
	if err != nil {
		return nil, err
	}
	return &SignatureShare{ID: id, Z: z}, nil
}

// ShareToWire encodes a partial signature.
func ShareToWire(s *SignatureShare) codec.PartialSignature {
	return codec.PartialSignature{ID: IDToWire(s.ID), Z: ScalarToWire(s.Z)}
}
