package localsigner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/f3rmion/frostguard/fault"
)

// Exec runs the capability as `<Path> <Args...> local <op>`, one process
// per call.
type Exec struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env    []string
	Logger *slog.Logger
}

var _ Capability = (*Exec)(nil)

// Commit implements [Signer].
func (e *Exec) Commit(ctx context.Context) (*CommitResponse, error) {
	var resp CommitResponse
	if err := e.run(ctx, OpCommit, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sign implements [Signer].
func (e *Exec) Sign(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	var resp SignResponse
	if err := e.run(ctx, OpSign, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Aggregate implements [Aggregator].
func (e *Exec) Aggregate(ctx context.Context, req *AggregateRequest) (*AggregateResponse, error) {
	var resp AggregateResponse
	if err := e.run(ctx, OpAggregate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Keygen implements [Dealer].
func (e *Exec) Keygen(ctx context.Context, req *KeygenRequest) (*KeygenResponse, error) {
	var resp KeygenResponse
	if err := e.run(ctx, OpKeygen, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (e *Exec) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Exec) run(ctx context.Context, op string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fault.E(fault.KindEncoding, "encode "+op+" request", err)
	}
	defer clear(payload)

	args := append(append([]string(nil), e.Args...), "local", op)
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	e.logger().Debug("local signer call", "op", op, "elapsed", time.Since(start), "ok", err == nil)
	if err != nil {
		// The process boundary is the transport to the local signer.
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return fault.E(fault.KindTransport, "local signer "+op, err)
	}

	defer clear(stdout.Bytes())
	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return fault.E(fault.KindEncoding, "decode "+op+" response", err)
	}
	return nil
}

var errUnknownOp = errors.New("unknown operation")

// Serve reads one request for op from in, runs it on c, and writes the
// response to out.
func Serve(ctx context.Context, op string, in io.Reader, out io.Writer, c Capability) error {
	dec := json.NewDecoder(in)
	var resp any

	switch op {
	case OpCommit:
		r, err := c.Commit(ctx)
		if err != nil {
			return err
		}
		resp = r
	case OpSign:
		var req SignRequest
		if err := dec.Decode(&req); err != nil {
			return fault.E(fault.KindEncoding, "decode sign request", err)
		}
		defer req.Wipe()
		r, err := c.Sign(ctx, &req)
		if err != nil {
			return err
		}
		resp = r
	case OpAggregate:
		var req AggregateRequest
		if err := dec.Decode(&req); err != nil {
			return fault.E(fault.KindEncoding, "decode aggregate request", err)
		}
		r, err := c.Aggregate(ctx, &req)
		if err != nil {
			return err
		}
		resp = r
	case OpKeygen:
		var req KeygenRequest
		if err := dec.Decode(&req); err != nil {
			return fault.E(fault.KindEncoding, "decode keygen request", err)
		}
		r, err := c.Keygen(ctx, &req)
		if err != nil {
			return err
		}
		resp = r
	default:
		return fmt.Errorf("%w %q", errUnknownOp, op)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
