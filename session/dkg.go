package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/group"
)

// Participant is one party of a dealer-free key generation. Create it
// with [NewParticipant]; it runs exactly one DKG.
type Participant struct {
	id        int
	frost     *frost.FROST
	keyShare  *frost.KeyShare
	dkgState  *frost.Participant
	finalized bool
}

// DKGResult is the output of a completed key generation.
type DKGResult struct {
	KeyShare *frost.KeyShare
	GroupKey group.Point

	// PublicShares maps every participant id to its verification share
	// s_j*G, derived from the broadcast commitments.
	PublicShares map[int]group.Point
}

// Round1Output holds the messages a participant sends in round 1.
type Round1Output struct {
	// Broadcast goes to every participant.
	Broadcast *frost.Round1Data

	// PrivateShares maps recipient id to its share. Each must travel over
	// a confidential channel.
	PrivateShares map[int]*frost.Round1PrivateData
}

// Round1Input holds the messages a participant received in round 1.
type Round1Input struct {
	// Broadcasts from all participants, this one included.
	Broadcasts []*frost.Round1Data

	// PrivateShares addressed to this participant by the others.
	PrivateShares []*frost.Round1PrivateData
}

// NewParticipant creates participant id (1 to f.Total()).
func NewParticipant(f *frost.FROST, id int) (*Participant, error) {
	if id < 1 || id > f.Total() {
		return nil, fmt.Errorf("participant ID must be between 1 and %d, got %d", f.Total(), id)
	}
	return &Participant{id: id, frost: f}, nil
}

// ID returns this participant's identifier.
func (p *Participant) ID() int { return p.id }

// KeyShare returns the key share, or nil before the DKG completes.
func (p *Participant) KeyShare() *frost.KeyShare { return p.keyShare }

// GenerateRound1 samples the polynomial and produces the round 1
// messages for every id in allParticipantIDs other than p's.
func (p *Participant) GenerateRound1(rng io.Reader, allParticipantIDs []int) (*Round1Output, error) {
	if p.dkgState != nil || p.finalized {
		return nil, errors.New("round 1 already generated")
	}

	participant, err := p.frost.NewParticipant(rng, p.id)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	p.dkgState = participant

	privateShares := make(map[int]*frost.Round1PrivateData, len(allParticipantIDs))
	for _, recipientID := range allParticipantIDs {
		if recipientID == p.id {
			continue
		}
		privateShares[recipientID] = p.frost.Round1PrivateSend(participant, recipientID)
	}

	return &Round1Output{
		Broadcast:     participant.Round1Broadcast(),
		PrivateShares: privateShares,
	}, nil
}

// ProcessRound1 verifies the received shares and completes the DKG.
func (p *Participant) ProcessRound1(input *Round1Input) (*DKGResult, error) {
	if p.dkgState == nil {
		return nil, errors.New("must call GenerateRound1 before ProcessRound1")
	}
	if p.finalized {
		return nil, errors.New("DKG already finalized")
	}

	broadcastByID := make(map[string]*frost.Round1Data, len(input.Broadcasts))
	for _, b := range input.Broadcasts {
		key := string(b.ID.Bytes())
		if _, exists := broadcastByID[key]; exists {
			return nil, errors.New("duplicate broadcast from participant")
		}
		broadcastByID[key] = b
	}

	for _, share := range input.PrivateShares {
		senderBroadcast, ok := broadcastByID[string(share.FromID.Bytes())]
		if !ok {
			return nil, errors.New("missing broadcast from sender of private share")
		}
		if err := p.frost.Round2ReceiveShare(p.dkgState, share, senderBroadcast.Commitments); err != nil {
			return nil, fmt.Errorf("invalid share from participant: %w", err)
		}
	}

	keyShare, err := p.frost.Finalize(p.dkgState, input.Broadcasts)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize DKG: %w", err)
	}

	p.keyShare = keyShare
	p.finalized = true
	p.dkgState = nil

	publicShares := make(map[int]group.Point, len(input.Broadcasts))
	for _, b := range input.Broadcasts {
		j := scalarToInt(b.ID)
		publicShares[j] = verificationShare(p.frost, input.Broadcasts, b.ID)
	}

	return &DKGResult{
		KeyShare:     keyShare,
		GroupKey:     keyShare.GroupKey,
		PublicShares: publicShares,
	}, nil
}

// SetKeyShare restores a previously saved key share.
func (p *Participant) SetKeyShare(ks *frost.KeyShare) {
	p.keyShare = ks
	p.finalized = true
}

// verificationShare computes sum_i sum_k C_{i,k} * id^k.
func verificationShare(f *frost.FROST, broadcasts []*frost.Round1Data, id group.Scalar) group.Point {
	g := f.Group()
	out := g.NewPoint()
	for _, b := range broadcasts {
		xPower := f.Identifier(1)
		for _, c := range b.Commitments {
			out = g.NewPoint().Add(out, g.NewPoint().ScalarMult(xPower, c))
			xPower = g.NewScalar().Mul(xPower, id)
		}
	}
	return out
}

// scalarToInt reads a 16-bit participant id from the low bytes of s.
func scalarToInt(s group.Scalar) int {
	b := s.Bytes()
	if len(b) < 2 {
		return 0
	}
	return int(b[len(b)-2])<<8 | int(b[len(b)-1])
}

// RunDKG runs every participant of f in-process and returns the key
// shares in id order. It is meant for tooling and tests; real deployments
// run each participant on its own machine.
func RunDKG(f *frost.FROST, rng io.Reader) ([]*DKGResult, error) {
	n := f.Total()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}

	parts := make([]*Participant, n)
	outs := make([]*Round1Output, n)
	for i, id := range ids {
		p, err := NewParticipant(f, id)
		if err != nil {
			return nil, err
		}
		out, err := p.GenerateRound1(rng, ids)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", id, err)
		}
		parts[i], outs[i] = p, out
	}

	broadcasts := make([]*frost.Round1Data, n)
	for i, out := range outs {
		broadcasts[i] = out.Broadcast
	}

	results := make([]*DKGResult, n)
	for i, p := range parts {
		var shares []*frost.Round1PrivateData
		for j, out := range outs {
			if j != i {
				shares = append(shares, out.PrivateShares[p.ID()])
			}
		}
		res, err := p.ProcessRound1(&Round1Input{Broadcasts: broadcasts, PrivateShares: shares})
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", p.ID(), err)
		}
		results[i] = res
	}
	return results, nil
}
