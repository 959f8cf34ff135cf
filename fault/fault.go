package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is returned by [KindOf] for errors outside the taxonomy.
	KindUnknown Kind = iota
	KindTransport
	KindProtocol
	KindEncoding
	KindCryptographic
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindEncoding:
		return "encoding"
	case KindCryptographic:
		return "cryptographic"
	default:
		return "unknown"
	}
}

var (
	// ErrTransportClosed is returned when the stream ends before a full frame arrived.
	ErrTransportClosed = errors.New("transport closed")
	// ErrTransportTimeout is returned when a read or write exceeds its deadline.
	ErrTransportTimeout = errors.New("transport timeout")
	// ErrMalformedFrame is returned for impossible length prefixes.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrWrongState is the device's precondition failure (status 0x6985).
	ErrWrongState = errors.New("wrong state")
	// ErrWrongLength is the device's payload length failure (status 0x6700).
	ErrWrongLength = errors.New("wrong length")
	// ErrDeviceStatus is any other non-OK status word.
	ErrDeviceStatus = errors.New("device status")

	// ErrMalformedCommitmentSet is returned when a commitment-set payload
	// length disagrees with its declared entry count.
	ErrMalformedCommitmentSet = errors.New("malformed commitment set")
	// ErrPayloadTooLarge is returned for payloads over 255 bytes or sets
	// over 255 entries.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrDuplicateID is returned when a participant id appears twice.
	ErrDuplicateID = errors.New("duplicate participant id")

	// ErrParticipantSetMismatch is returned when the signers and the
	// commitment set do not correspond one-to-one.
	ErrParticipantSetMismatch = errors.New("participant set mismatch")
	// ErrNoPendingCommitment is returned by sign when no unconsumed
	// commitment matches the request.
	ErrNoPendingCommitment = errors.New("no pending commitment")
	// ErrCommitmentReused is returned when a commitment pair is presented
	// for a second signing attempt.
	ErrCommitmentReused = errors.New("commitment reused")
	// ErrBelowThreshold is returned when a quorum has fewer than t signers.
	ErrBelowThreshold = errors.New("signer quorum below threshold")
	// ErrInvalidSignature is returned when the aggregate signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

var sentinelKinds = map[error]Kind{
	ErrTransportClosed:        KindTransport,
	ErrTransportTimeout:       KindTransport,
	ErrMalformedFrame:         KindTransport,
	ErrWrongState:             KindProtocol,
	ErrWrongLength:            KindProtocol,
	ErrDeviceStatus:           KindProtocol,
	ErrMalformedCommitmentSet: KindEncoding,
	ErrPayloadTooLarge:        KindEncoding,
	ErrDuplicateID:            KindEncoding,
	ErrParticipantSetMismatch: KindCryptographic,
	ErrNoPendingCommitment:    KindCryptographic,
	ErrCommitmentReused:       KindCryptographic,
	ErrBelowThreshold:         KindCryptographic,
	ErrInvalidSignature:       KindCryptographic,
}

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation. It returns nil for a nil err.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap wraps err with op, deriving the kind from err itself.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind of err. The outermost [Error] wins; otherwise
// the first sentinel found in the chain decides.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindUnknown {
		return fe.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
