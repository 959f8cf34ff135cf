package frost

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/f3rmion/frostguard/group"
)

// ChallengeFunc derives a challenge scalar outside the signers, for
// verifiers that need a different hash-to-scalar than the device.
type ChallengeFunc func(g group.Group, R, Y, msg []byte) (group.Scalar, error)

// Registered external challenge schemes.
const (
	SchemeMiMC     = "mimc"
	SchemePoseidon = "poseidon"
)

// ChallengeByName returns the external challenge scheme registered under
// name. The empty name returns nil, meaning signers derive the challenge
// with their own hasher.
func ChallengeByName(name string) (ChallengeFunc, error) {
	switch strings.ToLower(name) {
	case "":
		return nil, nil
	case SchemeMiMC:
		return MiMCChallenge, nil
	case SchemePoseidon:
		return PoseidonChallenge, nil
	default:
		return nil, fmt.Errorf("unknown challenge scheme %q", name)
	}
}

// MiMCChallenge hashes R ∥ Y ∥ m with MiMC over the BN254 scalar field and
// reduces the digest into the group's scalar field. Each 32-byte input is
// first reduced to a canonical field element.
func MiMCChallenge(g group.Group, R, Y, msg []byte) (group.Scalar, error) {
	h := mimc.NewMiMC()
	for _, in := range [][]byte{R, Y, msg} {
		var e fr.Element
		e.SetBytes(in)
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("mimc: %w", err)
		}
	}
	s := g.NewScalar()
	if _, err := s.SetBytes(h.Sum(nil)); err != nil {
		return nil, fmt.Errorf("mimc: %w", err)
	}
	return s, nil
}

// circomScale maps the x coordinate of the a = -1 Baby Jubjub form used
// by gnark-crypto onto circomlib's a = 168700 form: u = x * circomScale.
// The y coordinate is shared, and the gnark base point is circomlib's
// Base8.
var circomScale = func() fr.Element {
	var e fr.Element
	if _, err := e.SetString("1911982854305225074381251344103329931637610209014896889891168275855466657090"); err != nil {
		panic(err)
	}
	return e
}()

// CircomCoordinates returns the circomlib affine coordinates of a
// compressed Baby Jubjub point.
func CircomCoordinates(compressed []byte) (x, y *big.Int, err error) {
	var p twistededwards.PointAffine
	if err := p.Unmarshal(compressed); err != nil {
		return nil, nil, err
	}
	return circom(&p)
}

func circom(p *twistededwards.PointAffine) (x, y *big.Int, err error) {
	if !p.IsOnCurve() {
		return nil, nil, fmt.Errorf("point is not on the curve")
	}
	var u fr.Element
	u.Mul(&p.X, &circomScale)
	return u.BigInt(new(big.Int)), p.Y.BigInt(new(big.Int)), nil
}

// PoseidonChallenge computes c = poseidon(R.x, R.y, A.x, A.y, m) with
// circomlib's Poseidon and circomlib coordinates, where A = Y/8 is the
// public key as circomlib's verifyPoseidon sees it. Since that verifier
// checks S*Base8 = R + 8c*A = R + c*Y, the digest reduced into the
// group's scalar field is the FROST challenge. m is reduced modulo the
// BN254 scalar field first.
func PoseidonChallenge(g group.Group, R, Y, msg []byte) (group.Scalar, error) {
	var r, y, a twistededwards.PointAffine
	if err := r.Unmarshal(R); err != nil {
		return nil, fmt.Errorf("poseidon: R: %w", err)
	}
	if err := y.Unmarshal(Y); err != nil {
		return nil, fmt.Errorf("poseidon: group key: %w", err)
	}
	curve := twistededwards.GetEdwardsCurve()
	inv8 := new(big.Int).ModInverse(big.NewInt(8), &curve.Order)
	a.ScalarMultiplication(&y, inv8)

	rx, ry, err := circom(&r)
	if err != nil {
		return nil, fmt.Errorf("poseidon: R: %w", err)
	}
	ax, ay, err := circom(&a)
	if err != nil {
		return nil, fmt.Errorf("poseidon: group key: %w", err)
	}
	var m fr.Element
	m.SetBytes(msg)

	digest, err := poseidon.Hash([]*big.Int{rx, ry, ax, ay, m.BigInt(new(big.Int))})
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	s := g.NewScalar()
	if _, err := s.SetBytes(digest.Bytes()); err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return s, nil
}

// ChallengeFor computes R with f's binding factors and applies fn to it.
// It is what an override-mode coordinator injects into every signer.
func (f *FROST) ChallengeFor(fn ChallengeFunc, message []byte, commitments []*SigningCommitment, groupKey group.Point) (group.Scalar, error) {
	R, err := f.GroupCommitment(message, commitments)
	if err != nil {
		return nil, err
	}
	return fn(f.group, R.Bytes(), groupKey.Bytes(), message)
}
