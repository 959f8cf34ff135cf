// Package codec implements the fixed-width binary encodings shared by every
// signer backend.
//
// All values are 32 bytes wide: participant identifiers and scalars
// (secret shares, challenges, partial signatures, z) are big-endian field
// encodings, and points (group key, hiding and binding commitments, R) use
// the curve's compressed encoding. The codec never interprets the bytes; it
// only fixes their layout:
//
//	KeyShare        group key (32) ∥ id (32) ∥ secret share (32)
//	Commitment      hiding (32) ∥ binding (32)
//	Entry           id (32) ∥ hiding (32) ∥ binding (32)
//	CommitmentSet   Entry × N, N carried out of band (1..255)
//	GroupSignature  R (32) ∥ z (32)
//
// The 32-byte types implement [encoding.TextMarshaler] as lower-case hex so
// they can be embedded directly in JSON records.
package codec
