package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/frostguard/fault"
)

// Class is the instruction class of every signer command.
const Class byte = 0xE0

// MaxData is the largest command payload the length byte can describe.
const MaxData = 255

// MaxResponse bounds the response length prefix a reader accepts.
const MaxResponse = 1 << 16

const headerSize = 5

// Ins is an instruction code.
type Ins byte

const (
	InsGetVersion            Ins = 0x00
	InsGetPublicKey          Ins = 0x01
	InsLoadKeys              Ins = 0x19
	InsCommit                Ins = 0x1A
	InsInjectMessage         Ins = 0x1B
	InsInjectCommitments     Ins = 0x1C
	InsInjectCommitmentsCont Ins = 0x1D
	InsPartialSign           Ins = 0x1E
	InsReset                 Ins = 0x1F
	InsInjectChallenge       Ins = 0x20
)

var insNames = map[Ins]string{
	InsGetVersion:            "GET_VERSION",
	InsGetPublicKey:          "GET_PUBLIC_KEY",
	InsLoadKeys:              "LOAD_KEYS",
	InsCommit:                "COMMIT",
	InsInjectMessage:         "INJECT_MESSAGE",
	InsInjectCommitments:     "INJECT_COMMITMENTS",
	InsInjectCommitmentsCont: "INJECT_COMMITMENTS_CONT",
	InsPartialSign:           "PARTIAL_SIGN",
	InsReset:                 "RESET",
	InsInjectChallenge:       "INJECT_CHALLENGE",
}

func (i Ins) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS(0x%02X)", byte(i))
}

// Curve selectors passed in p1 of LOAD_KEYS.
const (
	CurveBabyJubjub byte = 0x00
	CurveEd25519    byte = 0x01
)

// Status is the 2-byte status word closing every response.
type Status uint16

const (
	StatusOK              Status = 0x9000
	StatusWrongLength     Status = 0x6700
	StatusWrongState      Status = 0x6985
	StatusInvalidData     Status = 0x6A80
	StatusWrongP1P2       Status = 0x6A86
	StatusInsNotSupported Status = 0x6D00
	StatusClaNotSupported Status = 0x6E00
	StatusInternal        Status = 0x6F00
)

func (s Status) String() string { return fmt.Sprintf("0x%04X", uint16(s)) }

// Err returns nil for StatusOK and a *StatusError otherwise.
func (s Status) Err(ins Ins) error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Ins: ins, Status: s}
}

// StatusError reports a non-OK status word together with the command that
// produced it.
type StatusError struct {
	Ins    Ins
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %s", e.Ins, e.Status)
}

// Unwrap maps the status word onto the fault taxonomy.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case StatusWrongState:
		return fault.ErrWrongState
	case StatusWrongLength:
		return fault.ErrWrongLength
	default:
		return fault.ErrDeviceStatus
	}
}

// Command is one request to the device.
type Command struct {
	Class byte
	Ins   Ins
	P1    byte
	P2    byte
	Data  []byte
}

// NewCommand returns a command in the signer class.
func NewCommand(ins Ins, p1, p2 byte, data []byte) Command {
	return Command{Class: Class, Ins: ins, P1: p1, P2: p2, Data: data}
}

// MarshalBinary returns the header followed by the payload.
func (c Command) MarshalBinary() ([]byte, error) {
	if len(c.Data) > MaxData {
		return nil, fault.E(fault.KindEncoding, "encode command",
			fmt.Errorf("%s payload of %d bytes: %w", c.Ins, len(c.Data), fault.ErrPayloadTooLarge))
	}
	out := make([]byte, 0, headerSize+len(c.Data))
	out = append(out, c.Class, byte(c.Ins), c.P1, c.P2, byte(len(c.Data)))
	return append(out, c.Data...), nil
}

// UnmarshalBinary parses a header and payload, checking the length byte.
func (c *Command) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fault.E(fault.KindTransport, "decode command",
			fmt.Errorf("%d byte header: %w", len(data), fault.ErrMalformedFrame))
	}
	if int(data[4]) != len(data)-headerSize {
		return fault.E(fault.KindProtocol, "decode command",
			fmt.Errorf("length byte %d, payload %d: %w", data[4], len(data)-headerSize, fault.ErrWrongLength))
	}
	c.Class, c.Ins, c.P1, c.P2 = data[0], Ins(data[1]), data[2], data[3]
	c.Data = append([]byte(nil), data[headerSize:]...)
	return nil
}

// Response is the device's answer to a command.
type Response struct {
	Data   []byte
	Status Status
}

// WriteFrame writes a length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads a length-prefixed frame of at most limit bytes. A stream
// that ends early yields fault.ErrTransportClosed; a partial frame is never
// returned.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	var prefix [4]byte
	if err := readFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if int64(n) > int64(limit) {
		return nil, fault.E(fault.KindTransport, "read frame",
			fmt.Errorf("length prefix %d exceeds %d: %w", n, limit, fault.ErrMalformedFrame))
	}
	payload := make([]byte, n)
	if err := readFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteCommand frames and writes a command.
func WriteCommand(w io.Writer, c Command) error {
	raw, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	return WriteFrame(w, raw)
}

// ReadCommand reads and parses one framed command.
func ReadCommand(r io.Reader) (Command, error) {
	raw, err := ReadFrame(r, headerSize+MaxData)
	if err != nil {
		return Command{}, err
	}
	var c Command
	if err := c.UnmarshalBinary(raw); err != nil {
		return Command{}, err
	}
	return c, nil
}

// WriteResponse writes length ∥ data ∥ status.
func WriteResponse(w io.Writer, resp Response) error {
	buf := make([]byte, 4+len(resp.Data)+2)
	binary.BigEndian.PutUint32(buf, uint32(len(resp.Data)))
	copy(buf[4:], resp.Data)
	binary.BigEndian.PutUint16(buf[4+len(resp.Data):], uint16(resp.Status))
	_, err := w.Write(buf)
	return err
}

// ReadResponse reads length ∥ data ∥ status.
func ReadResponse(r io.Reader) (Response, error) {
	data, err := ReadFrame(r, MaxResponse)
	if err != nil {
		return Response{}, err
	}
	var sw [2]byte
	if err := readFull(r, sw[:]); err != nil {
		return Response{}, err
	}
	return Response{Data: data, Status: Status(binary.BigEndian.Uint16(sw[:]))}, nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return classify("read", err)
	}
	return nil
}

type timeoutError interface {
	Timeout() bool
}

// classify maps I/O errors onto the transport kinds.
func classify(op string, err error) error {
	var te timeoutError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		return fault.E(fault.KindTransport, op, fmt.Errorf("%w: %v", fault.ErrTransportClosed, err))
	case errors.As(err, &te) && te.Timeout():
		return fault.E(fault.KindTransport, op, fmt.Errorf("%w: %v", fault.ErrTransportTimeout, err))
	default:
		return fault.E(fault.KindTransport, op, err)
	}
}
