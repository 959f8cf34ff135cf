// Package bjj implements [group.Group] on Baby Jubjub, the twisted Edwards
// curve over the BN254 scalar field that the device signer uses.
//
// Arithmetic is delegated to gnark-crypto. Scalars encode as 32 bytes
// big-endian; points use gnark-crypto's 32-byte compressed form, which is
// also the device's wire encoding.
//
//	g := &bjj.BJJ{}
//	f, err := frost.NewWithHasher(g, 2, 3, frost.NewBlake2bHasher())
package bjj
