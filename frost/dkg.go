package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/frostguard/group"
)

var (
	errShareRecipient = errors.New("share addressed to another participant")
	errInvalidShare   = errors.New("share does not match sender commitments")
	errMissingShares  = errors.New("missing shares")
)

// Round1Data is broadcast by each participant in round 1.
type Round1Data struct {
	ID          group.Scalar  // participant identifier
	Commitments []group.Point // commitments to polynomial coefficients
}

// Round1PrivateData is sent privately to each participant.
type Round1PrivateData struct {
	FromID group.Scalar
	ToID   group.Scalar
	Share  group.Scalar // sender's polynomial evaluated at ToID
}

// Participant holds one dealer-free key generation run.
type Participant struct {
	id             group.Scalar
	coefficients   []group.Scalar
	commitments    []group.Point
	receivedShares map[string]group.Scalar
}

// NewParticipant samples a degree t-1 polynomial for participant id
// (1-based).
func (f *FROST) NewParticipant(r io.Reader, id int) (*Participant, error) {
	if id < 1 || id > f.total {
		return nil, fmt.Errorf("participant id %d outside [1, %d]", id, f.total)
	}

	coeffs := make([]group.Scalar, f.threshold)
	for i := range coeffs {
		c, err := f.group.RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	commits := make([]group.Point, f.threshold)
	for i, c := range coeffs {
		commits[i] = f.group.NewPoint().ScalarMult(c, f.group.Generator())
	}

	return &Participant{
		id:             f.scalarFromInt(id),
		coefficients:   coeffs,
		commitments:    commits,
		receivedShares: make(map[string]group.Scalar),
	}, nil
}

// ID returns the participant's identifier scalar.
func (p *Participant) ID() group.Scalar { return p.id }

// Round1Broadcast returns the coefficient commitments.
func (p *Participant) Round1Broadcast() *Round1Data {
	return &Round1Data{
		ID:          p.id,
		Commitments: p.commitments,
	}
}

// Round1PrivateSend returns the share for recipientID.
func (f *FROST) Round1PrivateSend(p *Participant, recipientID int) *Round1PrivateData {
	toID := f.scalarFromInt(recipientID)
	return &Round1PrivateData{
		FromID: p.id,
		ToID:   toID,
		Share:  f.evalPolynomial(p.coefficients, toID),
	}
}

// Round2ReceiveShare checks share*G == sum(C_k * id^k) and stores it.
func (f *FROST) Round2ReceiveShare(p *Participant, data *Round1PrivateData, senderCommitments []group.Point) error {
	if !data.ToID.Equal(p.id) {
		return errShareRecipient
	}

	lhs := f.group.NewPoint().ScalarMult(data.Share, f.group.Generator())

	rhs := f.group.NewPoint()
	xPower := f.scalarFromInt(1)
	for _, commit := range senderCommitments {
		term := f.group.NewPoint().ScalarMult(xPower, commit)
		rhs = f.group.NewPoint().Add(rhs, term)
		xPower = f.group.NewScalar().Mul(xPower, data.ToID)
	}

	if !lhs.Equal(rhs) {
		return fmt.Errorf("from %x: %w", data.FromID.Bytes(), errInvalidShare)
	}

	p.receivedShares[string(data.FromID.Bytes())] = data.Share
	return nil
}

// Finalize sums the received shares into the participant's key share and
// clears the polynomial.
func (f *FROST) Finalize(p *Participant, allBroadcasts []*Round1Data) (*KeyShare, error) {
	if len(p.receivedShares) != len(allBroadcasts)-1 {
		return nil, fmt.Errorf("%w: have %d of %d", errMissingShares, len(p.receivedShares), len(allBroadcasts)-1)
	}

	secretKey := f.evalPolynomial(p.coefficients, p.id)
	for _, share := range p.receivedShares {
		secretKey = f.group.NewScalar().Add(secretKey, share)
	}

	groupKey := f.group.NewPoint()
	for _, broadcast := range allBroadcasts {
		groupKey = f.group.NewPoint().Add(groupKey, broadcast.Commitments[0])
	}

	zero := f.group.NewScalar()
	for _, c := range p.coefficients {
		c.Set(zero)
	}

	return &KeyShare{
		ID:        p.id,
		SecretKey: secretKey,
		PublicKey: f.group.NewPoint().ScalarMult(secretKey, f.group.Generator()),
		GroupKey:  groupKey,
	}, nil
}
