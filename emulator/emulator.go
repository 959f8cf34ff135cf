// Package emulator implements the signing device's side of the command
// set in software. It is the counterpart the device participant is
// tested against, and it backs `frostguard emulate`.
package emulator

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/session"
)

// Version is reported by GET_VERSION.
var Version = [3]byte{1, 0, 0}

// MinParticipants is the smallest commitment set the device accepts.
const MinParticipants = 2

// Config configures a Device.
type Config struct {
	// Rand is the nonce source. Defaults to crypto/rand.
	Rand io.Reader
	// LegacyBinding derives a single binding factor shared by all
	// signers, reproducing firmware that disagrees with the host.
	LegacyBinding bool
	Logger        *slog.Logger
}

// Device is one emulated secure element. Commands are handled one at a
// time.
type Device struct {
	mu     sync.Mutex
	rand   io.Reader
	logger *slog.Logger
	suite  *frost.FROST

	machine session.Machine
	share   *frost.KeyShare
	wire    codec.KeyShare
	slot    session.NonceSlot

	message   codec.Digest
	count     int
	received  []byte
	set       codec.CommitmentSet
	challenge *codec.Scalar
}

// New returns a device with no keys loaded.
func New(cfg Config) (*Device, error) {
	f, err := frost.NewWithHasher(&bjj.BJJ{}, 2, frost.MaxParticipants, frost.NewBlake2bHasher())
	if err != nil {
		return nil, err
	}
	if cfg.LegacyBinding {
		f = f.WithBinding(frost.BindingShared)
	}
	d := &Device{rand: cfg.Rand, logger: cfg.Logger, suite: f}
	if d.rand == nil {
		d.rand = rand.Reader
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// State returns the ceremony state.
func (d *Device) State() session.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.State()
}

// Handle executes one command.
func (d *Device) Handle(cmd apdu.Command) apdu.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := d.handle(cmd)
	d.logger.Debug("command handled",
		"ins", cmd.Ins,
		"p1", cmd.P1,
		"in", len(cmd.Data),
		"out", len(resp.Data),
		"sw", resp.Status,
		"state", d.machine.State(),
	)
	return resp
}

func status(s apdu.Status) apdu.Response { return apdu.Response{Status: s} }

func ok(data []byte) apdu.Response { return apdu.Response{Data: data, Status: apdu.StatusOK} }

func (d *Device) handle(cmd apdu.Command) apdu.Response {
	if cmd.Class != apdu.Class {
		return status(apdu.StatusClaNotSupported)
	}
	switch cmd.Ins {
	case apdu.InsGetVersion:
		return ok(Version[:])
	case apdu.InsGetPublicKey:
		if !d.machine.Keyed() {
			return status(apdu.StatusWrongState)
		}
		return ok(append([]byte(nil), d.wire.GroupKey[:]...))
	case apdu.InsReset:
		d.reset()
		return ok(nil)
	case apdu.InsLoadKeys:
		return d.loadKeys(cmd)
	case apdu.InsCommit:
		return d.commit(cmd)
	case apdu.InsInjectMessage:
		return d.injectMessage(cmd)
	case apdu.InsInjectCommitments:
		return d.injectCommitments(cmd)
	case apdu.InsInjectCommitmentsCont:
		return d.continueCommitments(cmd)
	case apdu.InsInjectChallenge:
		return d.injectChallenge(cmd)
	case apdu.InsPartialSign:
		return d.partialSign()
	default:
		return status(apdu.StatusInsNotSupported)
	}
}

func (d *Device) reset() {
	_ = d.machine.Apply(session.OpReset)
	d.slot.Clear()
	d.clearSession()
}

func (d *Device) clearSession() {
	d.message = codec.Digest{}
	d.count = 0
	clear(d.received)
	d.received = nil
	d.set = nil
	d.challenge = nil
}

func (d *Device) wipeKeys() {
	if d.share != nil {
		d.share.SecretKey.Set(d.suite.Group().NewScalar())
		d.share = nil
	}
	d.wire.Wipe()
}

func (d *Device) loadKeys(cmd apdu.Command) apdu.Response {
	if d.machine.Check(session.OpLoadKeys) != nil {
		return status(apdu.StatusWrongState)
	}
	if cmd.P1 != apdu.CurveBabyJubjub {
		return status(apdu.StatusWrongP1P2)
	}
	if len(cmd.Data) != codec.KeyShareSize {
		return status(apdu.StatusWrongLength)
	}

	var wire codec.KeyShare
	if err := wire.UnmarshalBinary(cmd.Data); err != nil {
		return status(apdu.StatusWrongLength)
	}
	share, err := d.suite.KeyShareFromWire(wire)
	if err != nil {
		wire.Wipe()
		return status(apdu.StatusInvalidData)
	}

	d.wipeKeys()
	d.slot.Clear()
	d.share, d.wire = share, wire
	_ = d.machine.Apply(session.OpLoadKeys)
	return ok(nil)
}

func (d *Device) commit(cmd apdu.Command) apdu.Response {
	if d.machine.Check(session.OpCommit) != nil {
		return status(apdu.StatusWrongState)
	}
	if len(cmd.Data) != 0 {
		return status(apdu.StatusWrongLength)
	}

	nonce, commitment, err := d.suite.SignRound1(d.rand, d.share)
	if err != nil {
		return status(apdu.StatusInternal)
	}
	n := session.Nonces{
		Hiding:     frost.ScalarToWire(nonce.D),
		Binding:    frost.ScalarToWire(nonce.E),
		Commitment: frost.CommitmentToWire(commitment),
	}
	nonce.Zero(d.suite.Group())
	d.slot.Store(n)

	d.clearSession()
	_ = d.machine.Apply(session.OpCommit)
	out, _ := n.Commitment.MarshalBinary()
	return ok(out)
}

func (d *Device) injectMessage(cmd apdu.Command) apdu.Response {
	if d.machine.Check(session.OpInjectMessage) != nil {
		return status(apdu.StatusWrongState)
	}
	if len(cmd.Data) != len(d.message) {
		return status(apdu.StatusWrongLength)
	}
	copy(d.message[:], cmd.Data)
	_ = d.machine.Apply(session.OpInjectMessage)
	return ok(nil)
}

func (d *Device) injectCommitments(cmd apdu.Command) apdu.Response {
	if d.machine.Check(session.OpInjectCommitments) != nil {
		return status(apdu.StatusWrongState)
	}
	if cmd.P1 < MinParticipants {
		return status(apdu.StatusInvalidData)
	}
	d.count = int(cmd.P1)
	d.received = d.received[:0]
	return d.receive(cmd.Data)
}

func (d *Device) continueCommitments(cmd apdu.Command) apdu.Response {
	if d.machine.State() != session.StateMessageSet || d.count == 0 {
		return status(apdu.StatusWrongState)
	}
	return d.receive(cmd.Data)
}

// receive appends a chunk of the commitment set and decodes the set once
// all of it arrived.
func (d *Device) receive(chunk []byte) apdu.Response {
	want := d.count * codec.EntrySize
	if len(chunk) == 0 || len(chunk)%codec.EntrySize != 0 || len(d.received)+len(chunk) > want {
		return status(apdu.StatusWrongLength)
	}
	d.received = append(d.received, chunk...)

	ack := binary.BigEndian.AppendUint16(nil, uint16(len(d.received)))
	if len(d.received) < want {
		return ok(ack)
	}

	set, err := codec.DecodeCommitmentSet(d.received, d.count)
	if err != nil {
		return status(apdu.StatusInvalidData)
	}
	if set.IndexOf(d.wire.ID) < 0 {
		return status(apdu.StatusInvalidData)
	}
	d.set = set
	d.count = 0
	_ = d.machine.Apply(session.OpInjectCommitments)
	return ok(ack)
}

func (d *Device) injectChallenge(cmd apdu.Command) apdu.Response {
	if d.machine.Check(session.OpInjectChallenge) != nil {
		return status(apdu.StatusWrongState)
	}
	var c codec.Scalar
	if len(cmd.Data) != len(c) {
		return status(apdu.StatusWrongLength)
	}
	copy(c[:], cmd.Data)
	d.challenge = &c
	_ = d.machine.Apply(session.OpInjectChallenge)
	return ok(nil)
}

func (d *Device) partialSign() apdu.Response {
	if d.machine.Check(session.OpPartialSign) != nil {
		return status(apdu.StatusWrongState)
	}

	// The nonce slot is emptied whatever the outcome.
	mine := d.set[d.set.IndexOf(d.wire.ID)]
	nonces, err := d.slot.Take(mine.Commitment())
	d.slot.Clear()
	if err != nil {
		d.reset()
		return status(apdu.StatusInvalidData)
	}
	defer nonces.Wipe()

	z, err := d.sign(nonces)
	if err != nil {
		d.reset()
		return status(apdu.StatusInternal)
	}
	_ = d.machine.Apply(session.OpPartialSign)
	return ok(z[:])
}

func (d *Device) sign(n session.Nonces) (codec.Scalar, error) {
	f := d.suite
	commitments, err := f.CommitmentsFromSet(d.set)
	if err != nil {
		return codec.Scalar{}, err
	}
	hiding, err := f.ScalarFromWire(n.Hiding)
	if err != nil {
		return codec.Scalar{}, err
	}
	binding, err := f.ScalarFromWire(n.Binding)
	if err != nil {
		return codec.Scalar{}, err
	}
	nonce := &frost.SigningNonce{ID: d.share.ID, D: hiding, E: binding}
	defer nonce.Zero(f.Group())

	var share *frost.SignatureShare
	if d.challenge != nil {
		c, err := f.ScalarFromWire(*d.challenge)
		if err != nil {
			return codec.Scalar{}, err
		}
		share, err = f.SignRound2WithChallenge(d.share, nonce, d.message[:], commitments, c)
		if err != nil {
			return codec.Scalar{}, err
		}
	} else {
		share, err = f.SignRound2(d.share, nonce, d.message[:], commitments)
		if err != nil {
			return codec.Scalar{}, err
		}
	}
	return frost.ScalarToWire(share.Z), nil
}

// Wipe erases the key share and any pending nonces.
func (d *Device) Wipe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slot.Clear()
	d.clearSession()
	d.wipeKeys()
	d.machine.Forget()
}
