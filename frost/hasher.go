package frost

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/f3rmion/frostguard/group"
)

// DeviceDomainPrefix is the domain separation prefix the device firmware
// hashes ahead of every tag.
const DeviceDomainPrefix = "FROST-EDBABYJUJUB-BLAKE512-v1"

// Hasher defines the hash operations required by FROST.
type Hasher interface {
	// H1 computes the binding factor for a signer.
	// Inputs: message, encoded commitment list, signer ID.
	H1(g group.Group, msg, encCommitList, signerID []byte) group.Scalar

	// H2 computes the Schnorr challenge.
	// Inputs: R point, public key Y, message.
	H2(g group.Group, R, Y, msg []byte) group.Scalar

	// H3 computes a nonce from seed and additional data.
	H3(g group.Group, seed, rho, msg []byte) group.Scalar

	// H4 hashes a message for signing.
	H4(g group.Group, msg []byte) []byte

	// H5 hashes the commitment list.
	H5(g group.Group, encCommitList []byte) []byte
}

// HasherByName returns the hash suite registered under name:
// "blake2b" (device compatible) or "sha256".
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(name) {
	case "", "blake2b":
		return NewBlake2bHasher(), nil
	case "sha256":
		return &SHA256Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// SHA256Hasher implements Hasher using SHA-256 without a domain prefix.
type SHA256Hasher struct{}

func (h *SHA256Hasher) hash(data ...[]byte) []byte {
	hasher := sha256.New()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

func (h *SHA256Hasher) hashToScalar(g group.Group, data ...[]byte) group.Scalar {
	s := g.NewScalar()
	s.SetBytes(h.hash(data...))
	return s
}

func (h *SHA256Hasher) H1(g group.Group, msg, encCommitList, signerID []byte) group.Scalar {
	return h.hashToScalar(g, []byte("rho"), msg, encCommitList, signerID)
}

func (h *SHA256Hasher) H2(g group.Group, R, Y, msg []byte) group.Scalar {
	return h.hashToScalar(g, R, Y, msg)
}

func (h *SHA256Hasher) H3(g group.Group, seed, rho, msg []byte) group.Scalar {
	return h.hashToScalar(g, []byte("nonce"), seed, rho, msg)
}

func (h *SHA256Hasher) H4(g group.Group, msg []byte) []byte {
	return h.hash([]byte("msg"), msg)
}

func (h *SHA256Hasher) H5(g group.Group, encCommitList []byte) []byte {
	return h.hash([]byte("com"), encCommitList)
}

// Blake2bHasher implements Hasher with Blake2b-512 over
// prefix ∥ tag ∥ inputs. The 64-byte digest is read little-endian and
// reduced modulo the group order.
type Blake2bHasher struct {
	Prefix string
}

// NewBlake2bHasher returns a Blake2bHasher with [DeviceDomainPrefix].
func NewBlake2bHasher() *Blake2bHasher {
	return &Blake2bHasher{Prefix: DeviceDomainPrefix}
}

func (h *Blake2bHasher) hash(tag string, data ...[]byte) []byte {
	hasher, _ := blake2b.New512(nil)
	hasher.Write([]byte(h.Prefix))
	hasher.Write([]byte(tag))
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

func (h *Blake2bHasher) hashToScalar(g group.Group, tag string, data ...[]byte) group.Scalar {
	digest := h.hash(tag, data...)
	reversed := make([]byte, len(digest))
	for i := range digest {
		reversed[i] = digest[len(digest)-1-i]
	}

	s := g.NewScalar()
	s.SetBytes(reversed)
	return s
}

// H1 is the "rho" binding factor hash.
func (h *Blake2bHasher) H1(g group.Group, msg, encCommitList, signerID []byte) group.Scalar {
	return h.hashToScalar(g, "rho", msg, encCommitList, signerID)
}

// H2 is the "chal" challenge hash.
func (h *Blake2bHasher) H2(g group.Group, R, Y, msg []byte) group.Scalar {
	return h.hashToScalar(g, "chal", R, Y, msg)
}

func (h *Blake2bHasher) H3(g group.Group, seed, rho, msg []byte) group.Scalar {
	return h.hashToScalar(g, "nonce", seed, rho, msg)
}

func (h *Blake2bHasher) H4(g group.Group, msg []byte) []byte {
	return h.hash("msg", msg)
}

func (h *Blake2bHasher) H5(g group.Group, encCommitList []byte) []byte {
	return h.hash("com", encCommitList)
}
