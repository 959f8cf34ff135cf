// Package session tracks the ceremony state of a threshold signing run.
//
// [Machine] is the transition table shared by the coordinator and the
// device emulator:
//
//	RESET → KEYS_LOADED → COMMITTED → MESSAGE_SET → COMMITMENTS_SET
//	      → [CHALLENGE_OVERRIDDEN] → SIGNED
//
// Every operation is checked against its precondition and fails with
// fault.ErrWrongState otherwise. RESET is accepted from any state; loaded
// keys survive it, so COMMIT is accepted from RESET once keys are in.
//
// [Session] is the coordinator's view of one ceremony. It records only
// public artifacts and hands them to signers through [Session.BeginSign].
//
// [NonceSlot] holds the nonces behind one pending commitment. A second
// Store silently destroys the first pair and [NonceSlot.Take] consumes
// the pair, so a commitment can back at most one partial signature.
//
// [Participant] and [RunDKG] wrap the dealer-free key generation of the
// frost package.
package session
