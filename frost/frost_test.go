package frost

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
)

// runDKG runs a full dealer-free key generation and returns every share.
func runDKG(t *testing.T, f *FROST) []*KeyShare {
	t.Helper()

	participants := make([]*Participant, f.Total())
	for i := range participants {
		p, err := f.NewParticipant(rand.Reader, i+1)
		if err != nil {
			t.Fatalf("failed to create participant %d: %v", i+1, err)
		}
		participants[i] = p
	}

	broadcasts := make([]*Round1Data, len(participants))
	for i, p := range participants {
		broadcasts[i] = p.Round1Broadcast()
	}

	for i, sender := range participants {
		for j := range participants {
			if i == j {
				continue
			}
			privateData := f.Round1PrivateSend(sender, j+1)
			if err := f.Round2ReceiveShare(participants[j], privateData, broadcasts[i].Commitments); err != nil {
				t.Fatalf("participant %d failed to verify share from %d: %v", j+1, i+1, err)
			}
		}
	}

	keyShares := make([]*KeyShare, len(participants))
	for i, p := range participants {
		ks, err := f.Finalize(p, broadcasts)
		if err != nil {
			t.Fatalf("participant %d failed to finalize: %v", i+1, err)
		}
		keyShares[i] = ks
	}
	return keyShares
}

// signWith runs both signing rounds for signers and aggregates.
func signWith(t *testing.T, f *FROST, signers []*KeyShare, message []byte) (*Signature, []*SigningCommitment) {
	t.Helper()

	nonces := make([]*SigningNonce, len(signers))
	commitments := make([]*SigningCommitment, len(signers))
	for i, ks := range signers {
		n, c, err := f.SignRound1(rand.Reader, ks)
		if err != nil {
			t.Fatalf("signer %d failed round 1: %v", i+1, err)
		}
		nonces[i] = n
		commitments[i] = c
	}

	sigShares := make([]*SignatureShare, len(signers))
	for i, ks := range signers {
		ss, err := f.SignRound2(ks, nonces[i], message, commitments)
		if err != nil {
			t.Fatalf("signer %d failed round 2: %v", i+1, err)
		}
		sigShares[i] = ss
	}

	sig, err := f.Aggregate(message, commitments, sigShares)
	if err != nil {
		t.Fatalf("failed to aggregate signature: %v", err)
	}
	return sig, commitments
}

func TestDKGAndSign(t *testing.T) {
	g := &bjj.BJJ{}

	for _, name := range []string{"sha256", "blake2b"} {
		t.Run(name, func(t *testing.T) {
			h, err := HasherByName(name)
			if err != nil {
				t.Fatal(err)
			}
			f, err := NewWithHasher(g, 2, 3, h)
			if err != nil {
				t.Fatal(err)
			}

			keyShares := runDKG(t, f)
			for i := 1; i < len(keyShares); i++ {
				if !keyShares[i].GroupKey.Equal(keyShares[0].GroupKey) {
					t.Fatal("participants have different group keys")
				}
			}

			message := []byte("hello FROST")
			sig, _ := signWith(t, f, keyShares[:2], message)

			if !f.Verify(message, sig, keyShares[0].GroupKey) {
				t.Error("signature verification failed")
			}
			if f.Verify([]byte("wrong message"), sig, keyShares[0].GroupKey) {
				t.Error("signature should not verify with wrong message")
			}
		})
	}
}

func TestSigningWithDifferentSignerSubsets(t *testing.T) {
	g := &bjj.BJJ{}
	f, err := NewWithHasher(g, 2, 4, NewBlake2bHasher())
	if err != nil {
		t.Fatal(err)
	}
	keyShares := runDKG(t, f)
	message := []byte("test message")

	subsets := [][]int{
		{0, 1},
		{0, 3},
		{2, 1},
		{2, 3},
		{0, 1, 2},
		{3, 2, 1, 0},
	}

	for _, subset := range subsets {
		t.Run(subsetName(subset), func(t *testing.T) {
			signers := make([]*KeyShare, len(subset))
			for i, idx := range subset {
				signers[i] = keyShares[idx]
			}
			sig, _ := signWith(t, f, signers, message)
			if !f.Verify(message, sig, keyShares[0].GroupKey) {
				t.Errorf("signature verification failed for subset %v", subset)
			}
		})
	}
}

func subsetName(subset []int) string {
	name := "signers"
	for _, idx := range subset {
		name += fmt.Sprintf("_%d", idx+1)
	}
	return name
}

func TestSignatureVerificationFailures(t *testing.T) {
	g := &bjj.BJJ{}
	f, err := NewWithHasher(g, 2, 3, NewBlake2bHasher())
	if err != nil {
		t.Fatal(err)
	}
	keyShares := runDKG(t, f)
	message := []byte("original message")
	sig, _ := signWith(t, f, keyShares[:2], message)

	if !f.Verify(message, sig, keyShares[0].GroupKey) {
		t.Fatal("valid signature should verify")
	}

	t.Run("WrongGroupKey", func(t *testing.T) {
		other := runDKG(t, f)
		if f.Verify(message, sig, other[0].GroupKey) {
			t.Error("signature should not verify with wrong group key")
		}
	})

	t.Run("TamperedSignatureR", func(t *testing.T) {
		tampered := &Signature{R: g.NewPoint().Add(sig.R, g.Generator()), Z: sig.Z}
		if f.Verify(message, tampered, keyShares[0].GroupKey) {
			t.Error("signature should not verify with tampered R")
		}
	})

	t.Run("TamperedSignatureZ", func(t *testing.T) {
		tampered := &Signature{R: sig.R, Z: g.NewScalar().Add(sig.Z, f.Identifier(1))}
		if f.Verify(message, tampered, keyShares[0].GroupKey) {
			t.Error("signature should not verify with tampered Z")
		}
	})

	t.Run("OtherHasher", func(t *testing.T) {
		f2, _ := New(g, 2, 3)
		if f2.Verify(message, sig, keyShares[0].GroupKey) {
			t.Error("blake2b signature should not verify with sha256 hasher")
		}
	})
}

func TestBindingModeMismatch(t *testing.T) {
	g := &bjj.BJJ{}
	f, err := NewWithHasher(g, 2, 3, NewBlake2bHasher())
	if err != nil {
		t.Fatal(err)
	}
	legacy := f.WithBinding(BindingShared)
	if f.Binding() != BindingPerParticipant || legacy.Binding() != BindingShared {
		t.Fatal("WithBinding must not modify the receiver")
	}

	keyShares := runDKG(t, f)
	message := []byte("mixed binding")

	n1, c1, _ := f.SignRound1(rand.Reader, keyShares[0])
	n2, c2, _ := f.SignRound1(rand.Reader, keyShares[1])
	commitments := []*SigningCommitment{c1, c2}

	t.Run("SharedOnly", func(t *testing.T) {
		sig, _ := signWith(t, legacy, keyShares[:2], message)
		if !legacy.Verify(message, sig, keyShares[0].GroupKey) {
			t.Error("shared binding should verify against itself")
		}
	})

	t.Run("Mixed", func(t *testing.T) {
		s1, err := f.SignRound2(keyShares[0], n1, message, commitments)
		if err != nil {
			t.Fatal(err)
		}
		s2, err := legacy.SignRound2(keyShares[1], n2, message, commitments)
		if err != nil {
			t.Fatal(err)
		}
		sig, err := f.Aggregate(message, commitments, []*SignatureShare{s1, s2})
		if err != nil {
			t.Fatal(err)
		}
		if f.Verify(message, sig, keyShares[0].GroupKey) {
			t.Error("mixed binding modes must not produce a valid signature")
		}
	})
}

func TestChallengeOverride(t *testing.T) {
	g := &bjj.BJJ{}
	f, err := NewWithHasher(g, 2, 3, NewBlake2bHasher())
	if err != nil {
		t.Fatal(err)
	}
	keyShares := runDKG(t, f)
	message := make([]byte, 32)
	copy(message, "override")
	groupKey := keyShares[0].GroupKey

	schemes := []struct {
		name string
		fn   ChallengeFunc
	}{
		{SchemeMiMC, MiMCChallenge},
		{SchemePoseidon, PoseidonChallenge},
	}
	for _, sc := range schemes {
		t.Run(sc.name, func(t *testing.T) {
			nonces := make([]*SigningNonce, 2)
			commitments := make([]*SigningCommitment, 2)
			for i, ks := range keyShares[:2] {
				nonces[i], commitments[i], _ = f.SignRound1(rand.Reader, ks)
			}

			challenge, err := f.ChallengeFor(sc.fn, message, commitments, groupKey)
			if err != nil {
				t.Fatal(err)
			}

			shares := make([]*SignatureShare, 2)
			for i, ks := range keyShares[:2] {
				shares[i], err = f.SignRound2WithChallenge(ks, nonces[i], message, commitments, challenge)
				if err != nil {
					t.Fatal(err)
				}
			}

			internal, err := f.SignRound2(keyShares[0], nonces[0], message, commitments)
			if err != nil {
				t.Fatal(err)
			}
			if internal.Z.Equal(shares[0].Z) {
				t.Error("override challenge should change the partial signature")
			}

			sig, err := f.Aggregate(message, commitments, shares)
			if err != nil {
				t.Fatal(err)
			}
			if !f.VerifyWithChallenge(sig, groupKey, challenge) {
				t.Error("signature should verify under the injected challenge")
			}
			if f.Verify(message, sig, groupKey) {
				t.Error("signature should not verify under the internal challenge")
			}

			again, err := sc.fn(g, sig.R.Bytes(), groupKey.Bytes(), message)
			if err != nil {
				t.Fatal(err)
			}
			if !again.Equal(challenge) {
				t.Errorf("%s challenge is not deterministic", sc.name)
			}
		})
	}
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer %q", s)
	}
	return n
}

// circomlib babyjub.Base8.
const (
	base8X = "5299619240641551281634865583518297030282874472190772894086521144482721001553"
	base8Y = "16950150798460657717958625567821834550301663161624707787222815936182638968203"
)

func TestCircomCoordinates(t *testing.T) {
	g := &bjj.BJJ{}
	x, y, err := CircomCoordinates(g.Generator().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if x.Cmp(bigInt(t, base8X)) != 0 || y.Cmp(bigInt(t, base8Y)) != 0 {
		t.Errorf("generator maps to (%s, %s), want circomlib Base8", x, y)
	}
}

func TestPoseidonChallengeVector(t *testing.T) {
	// circomlib poseidon([1, 2]).
	h, err := poseidon.Hash([]*big.Int{big.NewInt(1), big.NewInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	if h.Cmp(bigInt(t, "7853200120776062878684798364095072458815029376092732009249414926327459813530")) != 0 {
		t.Fatalf("poseidon([1,2]) = %s", h)
	}

	// With R = Base8 and Y = 8*Base8 the circomlib public key A is Base8,
	// so the challenge hashes Base8 twice followed by m.
	g := &bjj.BJJ{}
	eight, _ := g.NewScalar().SetBytes([]byte{8})
	R := g.Generator()
	Y := g.NewPoint().ScalarMult(eight, g.Generator())
	msg := make([]byte, 32)
	msg[31] = 0x2A

	c, err := PoseidonChallenge(g, R.Bytes(), Y.Bytes(), msg)
	if err != nil {
		t.Fatal(err)
	}
	bx, by := bigInt(t, base8X), bigInt(t, base8Y)
	digest, err := poseidon.Hash([]*big.Int{bx, by, bx, by, big.NewInt(0x2A)})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := g.NewScalar().SetBytes(digest.Bytes())
	if !c.Equal(want) {
		t.Error("challenge does not match poseidon(R.x, R.y, A.x, A.y, m)")
	}

	if _, err := PoseidonChallenge(g, make([]byte, 31), Y.Bytes(), msg); err == nil {
		t.Error("expected error for a truncated R")
	}
}

func TestChallengeByName(t *testing.T) {
	fn, err := ChallengeByName("")
	if err != nil || fn != nil {
		t.Errorf("empty scheme should select the signer hasher, err=%v", err)
	}
	if fn, err := ChallengeByName("MiMC"); err != nil || fn == nil {
		t.Errorf("mimc scheme: %v", err)
	}
	if fn, err := ChallengeByName("poseidon"); err != nil || fn == nil {
		t.Errorf("poseidon scheme: %v", err)
	}
	if _, err := ChallengeByName("sha3"); err == nil {
		t.Error("expected error for unknown scheme")
	}
	if _, err := HasherByName("md5"); err == nil {
		t.Error("expected error for unknown hasher")
	}
}

func TestCommitmentValidation(t *testing.T) {
	g := &bjj.BJJ{}
	f, _ := NewWithHasher(g, 2, 3, NewBlake2bHasher())
	keyShares := runDKG(t, f)
	message := []byte("m")

	n1, c1, _ := f.SignRound1(rand.Reader, keyShares[0])
	_, c2, _ := f.SignRound1(rand.Reader, keyShares[1])
	_, c3, _ := f.SignRound1(rand.Reader, keyShares[2])

	t.Run("Duplicate", func(t *testing.T) {
		_, err := f.SignRound2(keyShares[0], n1, message, []*SigningCommitment{c1, c1})
		if !errors.Is(err, fault.ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("SignerMissing", func(t *testing.T) {
		_, err := f.SignRound2(keyShares[0], n1, message, []*SigningCommitment{c2, c3})
		if !errors.Is(err, fault.ErrParticipantSetMismatch) {
			t.Errorf("expected ErrParticipantSetMismatch, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := f.GroupCommitment(message, nil); err == nil {
			t.Error("expected error for empty commitment list")
		}
	})

	t.Run("Identity", func(t *testing.T) {
		bad := &SigningCommitment{ID: c2.ID, HidingPoint: g.NewPoint(), BindingPoint: c2.BindingPoint}
		if _, err := f.GroupCommitment(message, []*SigningCommitment{c1, bad}); err == nil {
			t.Error("expected error for identity commitment")
		}
	})

	t.Run("AggregateShareMismatch", func(t *testing.T) {
		s1, err := f.SignRound2(keyShares[0], n1, message, []*SigningCommitment{c1, c2})
		if err != nil {
			t.Fatal(err)
		}
		_, err = f.Aggregate(message, []*SigningCommitment{c1, c2}, []*SignatureShare{s1, s1})
		if fault.KindOf(err) != fault.KindCryptographic {
			t.Errorf("expected cryptographic error, got %v", err)
		}
	})
}

func TestWireConversions(t *testing.T) {
	g := &bjj.BJJ{}
	f, _ := NewWithHasher(g, 2, 3, NewBlake2bHasher())
	keyShares := runDKG(t, f)

	t.Run("KeyShare", func(t *testing.T) {
		wire := KeyShareToWire(keyShares[1])
		if wire.ID != codec.IDFromIndex(2) {
			t.Errorf("id encoding = %x", wire.ID)
		}
		back, err := f.KeyShareFromWire(wire)
		if err != nil {
			t.Fatal(err)
		}
		if !back.SecretKey.Equal(keyShares[1].SecretKey) || !back.GroupKey.Equal(keyShares[1].GroupKey) {
			t.Error("key share did not round-trip")
		}
		if !back.PublicKey.Equal(keyShares[1].PublicKey) {
			t.Error("public share was not rederived")
		}
	})

	t.Run("ZeroID", func(t *testing.T) {
		wire := KeyShareToWire(keyShares[0])
		wire.ID = codec.ID{}
		if _, err := f.KeyShareFromWire(wire); err == nil {
			t.Error("expected error for zero id")
		}
	})

	// order is the subgroup order: equal to zero once reduced.
	var order codec.Scalar
	o := g.Order()
	copy(order[len(order)-len(o):], o)

	t.Run("NonCanonical", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*codec.KeyShare)
		}{
			{"id equal to order", func(k *codec.KeyShare) { k.ID = codec.ID(order) }},
			{"id above order", func(k *codec.KeyShare) { k.ID = codec.ID(order); k.ID[31]++ }},
			{"secret equal to order", func(k *codec.KeyShare) { k.Secret = order }},
			{"all ones", func(k *codec.KeyShare) {
				for i := range k.Secret {
					k.Secret[i] = 0xFF
				}
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				wire := KeyShareToWire(keyShares[0])
				tt.mutate(&wire)
				_, err := f.KeyShareFromWire(wire)
				if fault.KindOf(err) != fault.KindEncoding {
					t.Errorf("expected encoding error, got %v", err)
				}
			})
		}

		if _, err := f.IDFromWire(codec.ID(order)); err == nil {
			t.Error("IDFromWire accepted the group order")
		}
		last := order
		last[31]--
		if _, err := f.ScalarFromWire(last); err != nil {
			t.Errorf("order-1 is canonical: %v", err)
		}
	})

	t.Run("CommitmentSet", func(t *testing.T) {
		_, c1, _ := f.SignRound1(rand.Reader, keyShares[0])
		_, c3, _ := f.SignRound1(rand.Reader, keyShares[2])
		set := CommitmentsToSet([]*SigningCommitment{c3, c1})
		back, err := f.CommitmentsFromSet(set)
		if err != nil {
			t.Fatal(err)
		}
		if !back[0].ID.Equal(c3.ID) || !back[1].HidingPoint.Equal(c1.HidingPoint) {
			t.Error("commitment set order or content changed")
		}
	})

	t.Run("LargeIdentifier", func(t *testing.T) {
		if IDToWire(f.Identifier(300)) != codec.IDFromIndex(300) {
			t.Error("identifier 300 encoded differently from the wire index")
		}
	})
}

func TestThresholdValidation(t *testing.T) {
	g := &bjj.BJJ{}

	tests := []struct {
		name             string
		threshold, total int
	}{
		{"ThresholdTooLow", 1, 3},
		{"TotalLessThanThreshold", 3, 2},
		{"TooManyParticipants", 2, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(g, tt.threshold, tt.total); err == nil {
				t.Errorf("expected error for t=%d n=%d", tt.threshold, tt.total)
			}
		})
	}
}

func TestBlake2bHasherDomain(t *testing.T) {
	g := &bjj.BJJ{}
	h := NewBlake2bHasher()
	msg := []byte("message")

	a := h.H2(g, []byte("R"), []byte("Y"), msg)
	b := h.H2(g, []byte("R"), []byte("Y"), msg)
	if !a.Equal(b) {
		t.Error("H2 is not deterministic")
	}

	other := &Blake2bHasher{Prefix: "other"}
	if other.H2(g, []byte("R"), []byte("Y"), msg).Equal(a) {
		t.Error("prefix must separate domains")
	}
	if h.H1(g, msg, nil, nil).Equal(a) {
		t.Error("tags must separate H1 from H2")
	}
}
