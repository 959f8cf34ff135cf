// Package fault defines the closed set of error kinds a signing ceremony
// can fail with.
//
// Every error produced by this module is either one of the sentinel errors
// below or wraps one through [Error]. Callers classify a failure with
// [KindOf] and decide how to recover:
//
//   - [KindTransport]: the byte stream to the device failed. RESET and
//     restart the ceremony.
//   - [KindProtocol]: the device answered with a non-OK status word.
//     Fix the command sequence before retrying.
//   - [KindEncoding]: a payload was rejected locally before any I/O.
//   - [KindCryptographic]: the ceremony ran but its artifacts are
//     inconsistent (participant set mismatch, reused commitment, invalid
//     aggregate signature).
//
// No kind is retried automatically.
package fault
