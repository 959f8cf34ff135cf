// Package frost implements FROST (Flexible Round-Optimized Schnorr
// Threshold) signatures over an arbitrary [group.Group].
//
// # Key generation
//
// Shares come from a dealer-free DKG:
//
//  1. Each participant samples a polynomial and broadcasts commitments to
//     its coefficients with [Participant.Round1Broadcast].
//  2. Each participant sends a private evaluation to every other
//     participant with [FROST.Round1PrivateSend].
//  3. Recipients check the evaluation against the sender's commitments
//     with [FROST.Round2ReceiveShare].
//  4. [FROST.Finalize] produces the participant's [KeyShare].
//
// # Signing
//
//  1. Each signer draws a nonce pair with [FROST.SignRound1].
//  2. Each signer computes a share with [FROST.SignRound2], or with
//     [FROST.SignRound2WithChallenge] when the challenge is supplied from
//     outside.
//  3. [FROST.Aggregate] sums the shares; [FROST.Verify] checks the result.
//
// The [Hasher] decides the binding factors and the challenge. The device
// signer uses [Blake2bHasher] with per-participant binding factors; every
// backend taking part in one ceremony must use the same hasher and
// [BindingMode], or the aggregate will not verify.
//
// Nonces from [FROST.SignRound1] must never be used for two messages.
//
// The wire helpers ([KeyShareToWire], [FROST.CommitmentsFromSet], ...)
// convert between group elements and the fixed-width encodings of the
// codec package.
package frost
