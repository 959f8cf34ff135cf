// Package apdu frames commands for the device-resident signer.
//
// A command is a five-byte header {class, instruction, p1, p2, length}
// followed by at most 255 payload bytes. On the byte stream every command
// is prefixed with its 4-byte big-endian length; the device answers with a
// 4-byte big-endian length, that many payload bytes, and a 2-byte status
// word. This matches the TCP interface of the Speculos device emulator.
//
// [Conn] drives one stream. It allows a single in-flight exchange at a
// time and applies a per-exchange deadline; a timeout leaves the device in
// an unknown state that only a RESET clears.
package apdu
