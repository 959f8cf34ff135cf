// Package group defines the prime-order group abstraction FROST is
// written against. Arithmetic methods set the receiver to the result and
// return it, so expressions chain:
//
//	r := g.NewScalar().Mul(b, c)
//	r = g.NewScalar().Add(a, r)
//
// The bjj package provides the Baby Jubjub implementation used by the
// device signer.
package group

import "io"

// Scalar is an integer modulo the group order.
type Scalar interface {
	Add(a, b Scalar) Scalar
	Sub(a, b Scalar) Scalar
	Mul(a, b Scalar) Scalar
	Negate(a Scalar) Scalar
	// Invert sets the receiver to a^-1. It fails for zero.
	Invert(a Scalar) (Scalar, error)
	Set(a Scalar) Scalar
	// Bytes returns the fixed-width canonical encoding.
	Bytes() []byte
	// SetBytes decodes data, reducing it modulo the order.
	SetBytes(data []byte) (Scalar, error)
	Equal(b Scalar) bool
	IsZero() bool
}

// Point is a group element. The zero value produced by [Group.NewPoint]
// is the identity.
type Point interface {
	Add(a, b Point) Point
	Sub(a, b Point) Point
	Negate(a Point) Point
	ScalarMult(s Scalar, p Point) Point
	Set(a Point) Point
	// Bytes returns the fixed-width compressed encoding.
	Bytes() []byte
	// SetBytes decodes a compressed encoding and rejects invalid points.
	SetBytes(data []byte) (Point, error)
	Equal(b Point) bool
	IsIdentity() bool
}

// Group creates scalars and points of one curve.
type Group interface {
	NewScalar() Scalar
	NewPoint() Point
	Generator() Point
	// RandomScalar draws a uniformly distributed scalar from r.
	RandomScalar(r io.Reader) (Scalar, error)
	HashToScalar(data ...[]byte) (Scalar, error)
	// Order returns the group order, big-endian.
	Order() []byte
}
