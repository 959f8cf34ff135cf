package apdu

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/f3rmion/frostguard/fault"
)

// DefaultTimeout bounds a single exchange when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Transport carries commands to a device and returns its responses.
type Transport interface {
	Exchange(ctx context.Context, c Command) (Response, error)
	Close() error
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn is a [Transport] over a byte stream. Exchanges are serialized.
type Conn struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	timeout time.Duration
	logger  *slog.Logger
	closed  bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithTimeout sets the per-exchange deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) { c.timeout = d }
}

// WithLogger sets the logger used for per-exchange debug records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// NewConn wraps rw. Deadlines are applied only when rw supports them.
func NewConn(rw io.ReadWriter, opts ...Option) *Conn {
	c := &Conn{rw: rw, timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a TCP connection to a device at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify("dial "+addr, err)
	}
	return NewConn(nc, opts...), nil
}

// Exchange writes c and waits for the response. The earlier of the
// context deadline and the configured timeout applies. Cancelling ctx
// does not interrupt a command already sent.
//
// Once a command has been sent, any failure closes the Conn: later
// exchanges fail with fault.ErrTransportClosed and the caller must dial
// again before resetting the device.
func (c *Conn) Exchange(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, fault.E(fault.KindTransport, cmd.Ins.String(), fault.ErrTransportClosed)
	}
	if err := ctx.Err(); err != nil {
		return Response{}, fault.E(fault.KindTransport, cmd.Ins.String(), err)
	}

	if d, ok := c.rw.(deadliner); ok {
		deadline := time.Now().Add(c.timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := d.SetDeadline(deadline); err != nil {
			return Response{}, classify(cmd.Ins.String(), err)
		}
		defer d.SetDeadline(time.Time{})
	}

	start := time.Now()
	if err := WriteCommand(c.rw, cmd); err != nil {
		if fault.KindOf(err) == fault.KindEncoding {
			return Response{}, err
		}
		c.breakLocked()
		return Response{}, classify(cmd.Ins.String(), err)
	}
	resp, err := ReadResponse(c.rw)
	if err != nil {
		// A reply may still arrive and would be read as the answer to
		// the next command.
		c.breakLocked()
		return Response{}, fault.Wrap(cmd.Ins.String(), err)
	}

	c.logger.Debug("apdu exchange",
		"ins", cmd.Ins.String(),
		"p1", cmd.P1,
		"lc", len(cmd.Data),
		"sw", resp.Status.String(),
		"resp_len", len(resp.Data),
		"elapsed", time.Since(start),
	)
	return resp, nil
}

// Send exchanges a signer-class command and converts a non-OK status
// word into an error.
func (c *Conn) Send(ctx context.Context, ins Ins, p1, p2 byte, data []byte) ([]byte, error) {
	return Send(ctx, c, ins, p1, p2, data)
}

// Close closes the underlying stream when it is an io.Closer.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breakLocked()
}

func (c *Conn) breakLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Send exchanges a signer-class command over t.
func Send(ctx context.Context, t Transport, ins Ins, p1, p2 byte, data []byte) ([]byte, error) {
	resp, err := t.Exchange(ctx, NewCommand(ins, p1, p2, data))
	if err != nil {
		return nil, err
	}
	if err := resp.Status.Err(ins); err != nil {
		return resp.Data, fault.E(fault.KindProtocol, ins.String(), err)
	}
	return resp.Data, nil
}
