package localsigner

import (
	"context"

	"github.com/f3rmion/frostguard/codec"
)

// Operation names accepted by [Serve] and sent by [Exec].
const (
	OpCommit    = "commit"
	OpSign      = "sign"
	OpAggregate = "aggregate"
	OpKeygen    = "keygen"
)

// Signer produces commitments and partial signatures.
type Signer interface {
	Commit(ctx context.Context) (*CommitResponse, error)
	Sign(ctx context.Context, req *SignRequest) (*SignResponse, error)
}

// Aggregator combines partial signatures and verifies the result.
type Aggregator interface {
	Aggregate(ctx context.Context, req *AggregateRequest) (*AggregateResponse, error)
}

// Dealer generates a full set of key shares.
type Dealer interface {
	Keygen(ctx context.Context, req *KeygenRequest) (*KeygenResponse, error)
}

// Capability is everything the local tool offers.
type Capability interface {
	Signer
	Aggregator
	Dealer
}

// CommitResponse carries a fresh nonce pair and its commitment.
type CommitResponse struct {
	HidingNonce   codec.Scalar `json:"hiding_nonce"`
	BindingNonce  codec.Scalar `json:"binding_nonce"`
	HidingCommit  codec.Point  `json:"hiding_commit"`
	BindingCommit codec.Point  `json:"binding_commit"`
}

// Commitment returns the public half.
func (r *CommitResponse) Commitment() codec.Commitment {
	return codec.Commitment{Hiding: r.HidingCommit, Binding: r.BindingCommit}
}

// Wipe zeroes the nonces.
func (r *CommitResponse) Wipe() {
	r.HidingNonce.Wipe()
	r.BindingNonce.Wipe()
}

// ParticipantRecord is one commitment set entry. The signer's own record
// additionally carries its secret share and nonces.
type ParticipantRecord struct {
	ID            codec.ID      `json:"id"`
	SecretShare   *codec.Scalar `json:"secret_share,omitempty"`
	HidingNonce   *codec.Scalar `json:"hiding_nonce,omitempty"`
	BindingNonce  *codec.Scalar `json:"binding_nonce,omitempty"`
	HidingCommit  codec.Point   `json:"hiding_commit"`
	BindingCommit codec.Point   `json:"binding_commit"`
}

// Entry returns the public commitment set entry.
func (p ParticipantRecord) Entry() codec.Entry {
	return codec.Entry{ID: p.ID, Hiding: p.HidingCommit, Binding: p.BindingCommit}
}

// Wipe zeroes any secret fields.
func (p *ParticipantRecord) Wipe() {
	for _, s := range []*codec.Scalar{p.SecretShare, p.HidingNonce, p.BindingNonce} {
		if s != nil {
			s.Wipe()
		}
	}
}

// RecordsFromSet converts a commitment set into public records.
func RecordsFromSet(set codec.CommitmentSet) []ParticipantRecord {
	out := make([]ParticipantRecord, len(set))
	for i, e := range set {
		out[i] = ParticipantRecord{ID: e.ID, HidingCommit: e.Hiding, BindingCommit: e.Binding}
	}
	return out
}

// SetFromRecords converts records back into a commitment set.
func SetFromRecords(records []ParticipantRecord) codec.CommitmentSet {
	set := make(codec.CommitmentSet, len(records))
	for i, r := range records {
		set[i] = r.Entry()
	}
	return set
}

// SignRequest asks for the partial signature of Participants[SignerIndex].
// A non-nil Challenge is used verbatim.
type SignRequest struct {
	MessageHash  codec.Digest        `json:"message_hash"`
	GroupKey     codec.Point         `json:"group_key"`
	Participants []ParticipantRecord `json:"participants"`
	SignerIndex  int                 `json:"signer_index"`
	Challenge    *codec.Scalar       `json:"challenge,omitempty"`
}

// Wipe zeroes the secrets in every record.
func (r *SignRequest) Wipe() {
	for i := range r.Participants {
		r.Participants[i].Wipe()
	}
}

// SignResponse carries one partial signature.
type SignResponse struct {
	PartialSig codec.Scalar `json:"partial_sig"`
}

// PartialRecord is one participant's partial signature.
type PartialRecord struct {
	ID         codec.ID     `json:"id"`
	PartialSig codec.Scalar `json:"partial_sig"`
}

// AggregateRequest asks for the group signature. ChallengeScheme names
// the external challenge used in override mode; empty means the signers
// derived it themselves.
type AggregateRequest struct {
	GroupKey        codec.Point         `json:"group_key"`
	MessageHash     codec.Digest        `json:"message_hash"`
	Participants    []ParticipantRecord `json:"participants"`
	PartialSigs     []PartialRecord     `json:"partial_sigs"`
	ChallengeScheme string              `json:"challenge_scheme,omitempty"`
}

// AggregateResponse is the group signature and whether it verifies.
type AggregateResponse struct {
	R     codec.Point  `json:"R"`
	Z     codec.Scalar `json:"z"`
	Valid bool         `json:"valid"`
}

// Signature returns R ∥ z.
func (r *AggregateResponse) Signature() codec.GroupSignature {
	return codec.GroupSignature{R: r.R, Z: r.Z}
}

// KeygenRequest asks for a t-of-n share set.
type KeygenRequest struct {
	Threshold int `json:"threshold"`
	Total     int `json:"total"`
}

// ShareRecord is one generated share.
type ShareRecord struct {
	Participant int          `json:"participant"`
	GroupKey    codec.Point  `json:"group_key"`
	ID          codec.ID     `json:"id"`
	SecretShare codec.Scalar `json:"secret_share"`
	PublicShare codec.Point  `json:"public_share"`
}

// KeyShare returns the wire key share.
func (s ShareRecord) KeyShare() codec.KeyShare {
	return codec.KeyShare{GroupKey: s.GroupKey, ID: s.ID, Secret: s.SecretShare}
}

// KeygenResponse carries every share.
type KeygenResponse struct {
	Threshold int           `json:"threshold"`
	Total     int           `json:"total"`
	Shares    []ShareRecord `json:"shares"`
}
