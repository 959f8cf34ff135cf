package participant

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/logging"
)

// DeviceOptions configures a Device.
type DeviceOptions struct {
	// Curve is the LOAD_KEYS curve selector. Zero selects Baby Jubjub.
	Curve  byte
	Logger *slog.Logger
}

// Version is the device application version.
type Version struct {
	Major, Minor, Patch byte
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// Device is a participant whose key share lives in the secure element.
// It mirrors what it injected so that Sign can tell whether the device
// holds the context it is asked to sign.
//
// Device is not safe for concurrent use; the transport carries one
// command at a time.
type Device struct {
	t      apdu.Transport
	id     codec.ID
	curve  byte
	logger *slog.Logger

	pending   *codec.Commitment
	message   *codec.Digest
	set       codec.CommitmentSet
	challenge *codec.Scalar
}

var (
	_ Participant = (*Device)(nil)
	_ KeyLoader   = (*Device)(nil)
	_ Resetter    = (*Device)(nil)
	_ Injector    = (*Device)(nil)
)

// NewDevice returns a participant for the device holding (or about to
// hold) the share with identifier id.
func NewDevice(t apdu.Transport, id codec.ID, opts DeviceOptions) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{t: t, id: id, curve: opts.Curve, logger: logger}
}

// ID implements [Participant].
func (d *Device) ID() codec.ID { return d.id }

func (d *Device) send(ctx context.Context, ins apdu.Ins, p1 byte, data []byte) ([]byte, error) {
	return apdu.Send(ctx, d.t, ins, p1, 0, data)
}

func (d *Device) forget() {
	d.pending = nil
	d.message = nil
	d.set = nil
	d.challenge = nil
}

// Version queries GET_VERSION.
func (d *Device) Version(ctx context.Context) (Version, error) {
	resp, err := d.send(ctx, apdu.InsGetVersion, 0, nil)
	if err != nil {
		return Version{}, err
	}
	if len(resp) != 3 {
		return Version{}, responseLength(apdu.InsGetVersion, len(resp), 3)
	}
	return Version{resp[0], resp[1], resp[2]}, nil
}

// GroupKey queries GET_PUBLIC_KEY.
func (d *Device) GroupKey(ctx context.Context) (codec.Point, error) {
	resp, err := d.send(ctx, apdu.InsGetPublicKey, 0, nil)
	if err != nil {
		return codec.Point{}, err
	}
	var p codec.Point
	if len(resp) != len(p) {
		return p, responseLength(apdu.InsGetPublicKey, len(resp), len(p))
	}
	copy(p[:], resp)
	return p, nil
}

// Reset implements [Resetter]. Keys stay loaded on the device.
func (d *Device) Reset(ctx context.Context) error {
	d.forget()
	_, err := d.send(ctx, apdu.InsReset, 0, nil)
	return err
}

// LoadKeys implements [KeyLoader]. The share must carry this device's id.
func (d *Device) LoadKeys(ctx context.Context, share *codec.KeyShare) error {
	if share.ID != d.id {
		return fault.E(fault.KindCryptographic, "load keys",
			fmt.Errorf("%w: share %s for device %s", fault.ErrParticipantSetMismatch, share.ID, d.id))
	}
	payload, err := share.MarshalBinary()
	if err != nil {
		return err
	}
	defer clear(payload)

	d.forget()
	if _, err := d.send(ctx, apdu.InsLoadKeys, d.curve, payload); err != nil {
		return err
	}
	d.logger.Debug("key share loaded", "id", share.ID, "curve", d.curve, logging.Redacted("secret"))
	return nil
}

// Commit implements [Participant].
func (d *Device) Commit(ctx context.Context) (codec.Commitment, error) {
	d.pending = nil
	resp, err := d.send(ctx, apdu.InsCommit, 0, nil)
	if err != nil {
		return codec.Commitment{}, err
	}
	var c codec.Commitment
	if err := c.UnmarshalBinary(resp); err != nil {
		return codec.Commitment{}, fault.E(fault.KindProtocol, "COMMIT", err)
	}
	d.pending = &c
	d.message, d.set, d.challenge = nil, nil, nil
	return c, nil
}

// InjectMessage implements [Injector].
func (d *Device) InjectMessage(ctx context.Context, m codec.Digest) error {
	if _, err := d.send(ctx, apdu.InsInjectMessage, 0, m[:]); err != nil {
		return err
	}
	d.message = &m
	return nil
}

// InjectCommitments implements [Injector]. Sets larger than one command
// are sent as whole-entry chunks; the device acknowledges the running
// byte count after each.
func (d *Device) InjectCommitments(ctx context.Context, set codec.CommitmentSet) error {
	payload, err := set.MarshalBinary()
	if err != nil {
		return err
	}

	sent := 0
	for i, chunk := range codec.Chunks(payload, apdu.MaxData) {
		ins, p1 := apdu.InsInjectCommitmentsCont, byte(0)
		if i == 0 {
			ins, p1 = apdu.InsInjectCommitments, set.Count()
		}
		resp, err := d.send(ctx, ins, p1, chunk)
		if err != nil {
			return err
		}
		sent += len(chunk)
		if len(resp) != 2 {
			return responseLength(ins, len(resp), 2)
		}
		if got := int(binary.BigEndian.Uint16(resp)); got != sent {
			return fault.E(fault.KindProtocol, ins.String(),
				fmt.Errorf("%w: device acknowledged %d of %d bytes", fault.ErrWrongLength, got, sent))
		}
	}

	d.logger.Debug("commitments injected", "entries", len(set), "bytes", sent)
	d.set = append(codec.CommitmentSet(nil), set...)
	return nil
}

// InjectChallenge implements [Injector].
func (d *Device) InjectChallenge(ctx context.Context, c codec.Scalar) error {
	if _, err := d.send(ctx, apdu.InsInjectChallenge, 0, c[:]); err != nil {
		return err
	}
	d.challenge = &c
	return nil
}

// Sign implements [Participant]. Context parts not yet injected are
// injected first; parts already injected must match sc.
func (d *Device) Sign(ctx context.Context, sc SigningContext) (codec.PartialSignature, error) {
	e, err := checkEntry(d.id, sc)
	if err != nil {
		return codec.PartialSignature{}, err
	}
	if d.pending == nil || *d.pending != e.Commitment() {
		return codec.PartialSignature{}, fault.E(fault.KindCryptographic, "device sign", fault.ErrNoPendingCommitment)
	}
	if err := d.prepare(ctx, sc); err != nil {
		return codec.PartialSignature{}, err
	}

	d.pending = nil
	resp, err := d.send(ctx, apdu.InsPartialSign, 0, nil)
	if err != nil {
		return codec.PartialSignature{}, err
	}
	var z codec.Scalar
	if len(resp) != len(z) {
		return codec.PartialSignature{}, responseLength(apdu.InsPartialSign, len(resp), len(z))
	}
	copy(z[:], resp)
	return codec.PartialSignature{ID: d.id, Z: z}, nil
}

func (d *Device) prepare(ctx context.Context, sc SigningContext) error {
	mismatch := func(what string) error {
		return fault.E(fault.KindCryptographic, "device sign",
			fmt.Errorf("%w: injected %s differs from signing context", fault.ErrParticipantSetMismatch, what))
	}

	switch {
	case d.message == nil:
		if d.set != nil || d.challenge != nil {
			return mismatch("message")
		}
		if err := d.InjectMessage(ctx, sc.Message); err != nil {
			return err
		}
	case *d.message != sc.Message:
		return mismatch("message")
	}

	switch {
	case d.set == nil:
		if err := d.InjectCommitments(ctx, sc.Commitments); err != nil {
			return err
		}
	case !d.set.Equal(sc.Commitments):
		return mismatch("commitment set")
	}

	switch {
	case sc.Challenge == nil && d.challenge != nil:
		return mismatch("challenge")
	case sc.Challenge != nil && d.challenge == nil:
		return d.InjectChallenge(ctx, *sc.Challenge)
	case sc.Challenge != nil && *d.challenge != *sc.Challenge:
		return mismatch("challenge")
	}
	return nil
}

func responseLength(ins apdu.Ins, got, want int) error {
	return fault.E(fault.KindProtocol, ins.String(),
		fmt.Errorf("%w: response of %d bytes, want %d", fault.ErrWrongLength, got, want))
}
