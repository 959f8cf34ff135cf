package ceremony

import (
	"fmt"

	"github.com/near/borsh-go"

	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

// TranscriptVersion is the layout version written by MarshalBinary.
const TranscriptVersion uint8 = 1

// TranscriptSigner is one signer's public contribution.
type TranscriptSigner struct {
	ID      codec.ID     `borsh:"id"`
	Hiding  codec.Point  `borsh:"hiding"`
	Binding codec.Point  `borsh:"binding"`
	Partial codec.Scalar `borsh:"partial"`
}

// Transcript is the archival record of a ceremony. It holds public
// artifacts only.
type Transcript struct {
	Version         uint8              `borsh:"version"`
	Threshold       uint16             `borsh:"threshold"`
	Message         codec.Digest       `borsh:"message"`
	GroupKey        codec.Point        `borsh:"group_key"`
	ChallengeScheme string             `borsh:"challenge_scheme"`
	Overridden      bool               `borsh:"overridden"`
	Challenge       codec.Scalar       `borsh:"challenge"`
	Signers         []TranscriptSigner `borsh:"signers"`
	R               codec.Point        `borsh:"r"`
	Z               codec.Scalar       `borsh:"z"`
	Valid           bool               `borsh:"valid"`
}

// MarshalBinary encodes the transcript with borsh.
func (t *Transcript) MarshalBinary() ([]byte, error) {
	out, err := borsh.Serialize(*t)
	if err != nil {
		return nil, fault.E(fault.KindEncoding, "encode transcript", err)
	}
	return out, nil
}

// UnmarshalBinary decodes a borsh transcript of a known version.
func (t *Transcript) UnmarshalBinary(data []byte) error {
	var out Transcript
	if err := borsh.Deserialize(&out, data); err != nil {
		return fault.E(fault.KindEncoding, "decode transcript", err)
	}
	if out.Version != TranscriptVersion {
		return fault.E(fault.KindEncoding, "decode transcript",
			fmt.Errorf("unsupported version %d", out.Version))
	}
	*t = out
	return nil
}

// Signature returns the recorded group signature.
func (t *Transcript) Signature() codec.GroupSignature {
	return codec.GroupSignature{R: t.R, Z: t.Z}
}

// Commitments returns the recorded commitment set.
func (t *Transcript) Commitments() codec.CommitmentSet {
	set := make(codec.CommitmentSet, len(t.Signers))
	for i, s := range t.Signers {
		set[i] = codec.Entry{ID: s.ID, Hiding: s.Hiding, Binding: s.Binding}
	}
	return set
}
