package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/group"
)

var (
	errNoCommitments = errors.New("empty commitment list")
	errSignerMissing = errors.New("signer has no entry in the commitment list")
	errNonceOwner    = errors.New("nonce belongs to another participant")
	errIdentity      = errors.New("commitment is the identity point")
	errZeroID        = errors.New("zero participant id")
)

// SigningNonce holds a participant's nonce pair for signing.
type SigningNonce struct {
	ID group.Scalar
	D  group.Scalar // hiding nonce
	E  group.Scalar // binding nonce
}

// Zero overwrites both nonces with zero.
func (n *SigningNonce) Zero(g group.Group) {
	if n.D != nil {
		n.D.Set(g.NewScalar())
	}
	if n.E != nil {
		n.E.Set(g.NewScalar())
	}
}

// SigningCommitment is broadcast in round 1 of signing.
type SigningCommitment struct {
	ID           group.Scalar
	HidingPoint  group.Point // D * G
	BindingPoint group.Point // E * G
}

// SignatureShare is a participant's share of the signature.
type SignatureShare struct {
	ID group.Scalar
	Z  group.Scalar
}

// SignRound1 generates nonces and commitment for signing.
func (f *FROST) SignRound1(r io.Reader, share *KeyShare) (*SigningNonce, *SigningCommitment, error) {
	d, err := f.group.RandomScalar(r)
	if err != nil {
		return nil, nil, err
	}
	e, err := f.group.RandomScalar(r)
	if err != nil {
		return nil, nil, err
	}

	nonce := &SigningNonce{
		ID: share.ID,
		D:  d,
		E:  e,
	}

	return nonce, f.CommitmentFor(nonce), nil
}

// CommitmentFor recomputes the public commitment of nonce.
func (f *FROST) CommitmentFor(nonce *SigningNonce) *SigningCommitment {
	return &SigningCommitment{
		ID:           nonce.ID,
		HidingPoint:  f.group.NewPoint().ScalarMult(nonce.D, f.group.Generator()),
		BindingPoint: f.group.NewPoint().ScalarMult(nonce.E, f.group.Generator()),
	}
}

// EncodeCommitments returns id ∥ hiding ∥ binding for every entry, in
// list order. This is the B input of H1.
func EncodeCommitments(commitments []*SigningCommitment) []byte {
	out := make([]byte, 0, len(commitments)*96)
	for _, c := range commitments {
		out = append(out, c.ID.Bytes()...)
		out = append(out, c.HidingPoint.Bytes()...)
		out = append(out, c.BindingPoint.Bytes()...)
	}
	return out
}

func (f *FROST) checkCommitments(commitments []*SigningCommitment) error {
	if len(commitments) == 0 {
		return fault.E(fault.KindCryptographic, "commitments", errNoCommitments)
	}
	seen := make(map[string]struct{}, len(commitments))
	for _, c := range commitments {
		key := string(c.ID.Bytes())
		if _, dup := seen[key]; dup {
			return fault.E(fault.KindEncoding, "commitments",
				fmt.Errorf("id %x: %w", c.ID.Bytes(), fault.ErrDuplicateID))
		}
		seen[key] = struct{}{}
		if c.HidingPoint.IsIdentity() || c.BindingPoint.IsIdentity() {
			return fault.E(fault.KindCryptographic, "commitments",
				fmt.Errorf("id %x: %w", c.ID.Bytes(), errIdentity))
		}
	}
	return nil
}

// BindingFactors returns rho for every signer, keyed by the id bytes.
func (f *FROST) BindingFactors(message []byte, commitments []*SigningCommitment) map[string]group.Scalar {
	factors := make(map[string]group.Scalar, len(commitments))
	encoded := EncodeCommitments(commitments)

	if f.binding == BindingShared {
		rho := f.hasher.H1(f.group, message, encoded, nil)
		for _, c := range commitments {
			factors[string(c.ID.Bytes())] = rho
		}
		return factors
	}

	for _, c := range commitments {
		factors[string(c.ID.Bytes())] = f.hasher.H1(f.group, message, encoded, c.ID.Bytes())
	}
	return factors
}

// GroupCommitment computes R = sum(D_i + rho_i * E_i).
func (f *FROST) GroupCommitment(message []byte, commitments []*SigningCommitment) (group.Point, error) {
	if err := f.checkCommitments(commitments); err != nil {
		return nil, err
	}
	return f.groupCommitment(f.BindingFactors(message, commitments), commitments), nil
}

func (f *FROST) groupCommitment(factors map[string]group.Scalar, commitments []*SigningCommitment) group.Point {
	R := f.group.NewPoint()
	for _, comm := range commitments {
		rho := factors[string(comm.ID.Bytes())]
		rhoE := f.group.NewPoint().ScalarMult(rho, comm.BindingPoint)
		term := f.group.NewPoint().Add(comm.HidingPoint, rhoE)
		R = f.group.NewPoint().Add(R, term)
	}
	return R
}

// Challenge computes c = H2(R, Y, m).
func (f *FROST) Challenge(R, groupKey group.Point, message []byte) group.Scalar {
	return f.hasher.H2(f.group, R.Bytes(), groupKey.Bytes(), message)
}

// SignRound2 generates a signature share with the internally derived
// challenge.
func (f *FROST) SignRound2(
	share *KeyShare,
	nonce *SigningNonce,
	message []byte,
	commitments []*SigningCommitment,
) (*SignatureShare, error) {
	R, err := f.GroupCommitment(message, commitments)
	if err != nil {
		return nil, err
	}
	return f.SignRound2WithChallenge(share, nonce, message, commitments, f.Challenge(R, share.GroupKey, message))
}

// SignRound2WithChallenge generates a signature share using c verbatim
// instead of deriving it.
func (f *FROST) SignRound2WithChallenge(
	share *KeyShare,
	nonce *SigningNonce,
	message []byte,
	commitments []*SigningCommitment,
	c group.Scalar,
) (*SignatureShare, error) {
	if err := f.checkCommitments(commitments); err != nil {
		return nil, err
	}
	if !nonce.ID.Equal(share.ID) {
		return nil, fault.E(fault.KindCryptographic, "sign", errNonceOwner)
	}
	if !containsID(commitments, share.ID) {
		return nil, fault.E(fault.KindCryptographic, "sign",
			fmt.Errorf("%w: %v", fault.ErrParticipantSetMismatch, errSignerMissing))
	}

	factors := f.BindingFactors(message, commitments)

	// Compute Lagrange coefficient for this signer
	lambda, err := f.lagrangeCoefficient(share.ID, commitments)
	if err != nil {
		return nil, err
	}

	// z_i = d + rho * e + lambda * s * c
	myRho := factors[string(share.ID.Bytes())]

	z := f.group.NewScalar().Mul(myRho, nonce.E)
	z = f.group.NewScalar().Add(nonce.D, z)
	lambdaS := f.group.NewScalar().Mul(lambda, share.SecretKey)
	lambdaSC := f.group.NewScalar().Mul(lambdaS, c)
	z = f.group.NewScalar().Add(z, lambdaSC)

	return &SignatureShare{
		ID: share.ID,
		Z:  z,
	}, nil
}

// Aggregate combines signature shares into a final signature. Every
// commitment needs exactly one share.
func (f *FROST) Aggregate(
	message []byte,
	commitments []*SigningCommitment,
	shares []*SignatureShare,
) (*Signature, error) {
	R, err := f.GroupCommitment(message, commitments)
	if err != nil {
		return nil, err
	}
	if len(shares) != len(commitments) {
		return nil, fault.E(fault.KindCryptographic, "aggregate",
			fmt.Errorf("%d shares for %d commitments: %w", len(shares), len(commitments), fault.ErrParticipantSetMismatch))
	}

	seen := make(map[string]struct{}, len(shares))
	z := f.group.NewScalar()
	for _, s := range shares {
		key := string(s.ID.Bytes())
		if _, dup := seen[key]; dup || !containsID(commitments, s.ID) {
			return nil, fault.E(fault.KindCryptographic, "aggregate",
				fmt.Errorf("share %x: %w", s.ID.Bytes(), fault.ErrParticipantSetMismatch))
		}
		seen[key] = struct{}{}
		z = f.group.NewScalar().Add(z, s.Z)
	}

	return &Signature{R: R, Z: z}, nil
}

// Verify checks a FROST signature against the internally derived challenge.
func (f *FROST) Verify(message []byte, sig *Signature, groupKey group.Point) bool {
	return f.VerifyWithChallenge(sig, groupKey, f.Challenge(sig.R, groupKey, message))
}

// VerifyWithChallenge checks z*G == R + c*Y for a given challenge.
func (f *FROST) VerifyWithChallenge(sig *Signature, groupKey group.Point, c group.Scalar) bool {
	lhs := f.group.NewPoint().ScalarMult(sig.Z, f.group.Generator())
	cY := f.group.NewPoint().ScalarMult(c, groupKey)
	rhs := f.group.NewPoint().Add(sig.R, cY)
	return lhs.Equal(rhs)
}

func containsID(commitments []*SigningCommitment, id group.Scalar) bool {
	for _, c := range commitments {
		if c.ID.Equal(id) {
			return true
		}
	}
	return false
}

func (f *FROST) lagrangeCoefficient(id group.Scalar, commitments []*SigningCommitment) (group.Scalar, error) {
	num := f.scalarFromInt(1)
	den := f.scalarFromInt(1)

	for _, c := range commitments {
		if c.ID.Equal(id) {
			continue
		}
		num = f.group.NewScalar().Mul(num, c.ID)
		diff := f.group.NewScalar().Sub(c.ID, id)
		den = f.group.NewScalar().Mul(den, diff)
	}

	denInv, err := f.group.NewScalar().Invert(den)
	if err != nil {
		return nil, fmt.Errorf("lagrange coefficient: %w", err)
	}
	return f.group.NewScalar().Mul(num, denInv), nil
}
