// Package keyfile stores one participant's key share on disk as CBOR.
package keyfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

// Version is the file layout version.
const Version = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// File is a key share with the parameters of the group it belongs to.
type File struct {
	Version   int            `cbor:"1,keyasint"`
	Threshold int            `cbor:"2,keyasint"`
	Total     int            `cbor:"3,keyasint"`
	Share     codec.KeyShare `cbor:"4,keyasint"`
	// PublicShare is the verification share of Share.
	PublicShare codec.Point `cbor:"5,keyasint"`
}

// fields has File's layout without its methods, so cbor encodes the
// struct as a map instead of calling back into MarshalBinary.
type fields File

var errVersion = errors.New("unsupported key file version")

// MarshalBinary encodes f in deterministic CBOR.
func (f *File) MarshalBinary() ([]byte, error) {
	out, err := encMode.Marshal((*fields)(f))
	if err != nil {
		return nil, fault.E(fault.KindEncoding, "encode key file", err)
	}
	return out, nil
}

// UnmarshalBinary decodes and checks a key file.
func (f *File) UnmarshalBinary(data []byte) error {
	var out File
	if err := decMode.Unmarshal(data, (*fields)(&out)); err != nil {
		return fault.E(fault.KindEncoding, "decode key file", err)
	}
	if out.Version != Version {
		return fault.E(fault.KindEncoding, "decode key file", fmt.Errorf("%w %d", errVersion, out.Version))
	}
	if out.Share.ID.IsZero() || out.Threshold < 2 || out.Total < out.Threshold {
		return fault.E(fault.KindEncoding, "decode key file",
			fmt.Errorf("invalid share parameters %d-of-%d", out.Threshold, out.Total))
	}
	*f = out
	return nil
}

// Wipe zeroes the secret share.
func (f *File) Wipe() { f.Share.Wipe() }

// Write stores f at path, readable by the owner only. An existing file
// is not replaced.
func Write(path string, f *File) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	defer clear(data)

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Read loads the key file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer clear(data)

	var f File
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}
