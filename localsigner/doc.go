// Package localsigner is the signing capability used for participants
// that are not the device.
//
// Requests and responses are self-contained JSON records with hex-encoded
// 32-byte fields, so the capability can live in another process: [Exec]
// runs `<tool> local <op>` with the request on stdin and reads the
// response from stdout, and [Serve] is the tool side of that exchange.
// [Engine] computes the same records in-process with Baby Jubjub and the
// device-compatible Blake2b hasher.
//
// The capability keeps no state between calls. Nonces returned by Commit
// travel back inside the Sign request; keeping them until then is the
// caller's job.
package localsigner
