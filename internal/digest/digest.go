// Package digest provides the content-addressing primitives shared by every
// entity in the catalog: a tagged hash algorithm/value pair (Digest), and a
// streaming Hasher that can compute any of the three supported algorithms.
//
// BLAKE3 is the canonical algorithm for chunks and files. SHA1 and SHA256 are
// retained only so catalogs written by older or foreign implementations can
// still be parsed.
package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies the hash function used to produce a Digest.
type Algorithm uint8

const (
	SHA1 Algorithm = iota
	SHA256
	BLAKE3
)

func (a Algorithm) String() string {
	switch a {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case BLAKE3:
		return "blake3"
	default:
		return "unknown"
	}
}

// ErrUnknownAlgorithm is returned by ParseDigest when the "<alg>-" prefix
// does not match a recognized algorithm.
var ErrUnknownAlgorithm = errors.New("digest: unrecognized algorithm")

// Digest is the identity of every content-addressed entity in the catalog.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// String renders the canonical "<alg>-<hex>" display form.
func (d Digest) String() string {
	return d.Algorithm.String() + "-" + d.Hex
}

// IsZero reports whether d has never been assigned a value.
func (d Digest) IsZero() bool {
	return d.Hex == ""
}

// Equal reports whether two digests name the same algorithm and value.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Hex == other.Hex
}

// ParseDigest parses the "<alg>-<hex>" display form produced by String.
func ParseDigest(s string) (Digest, error) {
	idx := strings.IndexByte(s, '-')
	if idx < 0 {
		return Digest{}, fmt.Errorf("digest: malformed value %q: %w", s, ErrUnknownAlgorithm)
	}
	prefix, rest := s[:idx], s[idx+1:]
	var alg Algorithm
	switch prefix {
	case "sha1":
		alg = SHA1
	case "sha256":
		alg = SHA256
	case "blake3":
		alg = BLAKE3
	default:
		return Digest{}, fmt.Errorf("digest: %q: %w", prefix, ErrUnknownAlgorithm)
	}
	if rest == "" {
		return Digest{}, fmt.Errorf("digest: empty hex value in %q", s)
	}
	return Digest{Algorithm: alg, Hex: rest}, nil
}

// HashBytes computes the digest of data using the given algorithm.
func HashBytes(alg Algorithm, data []byte) Digest {
	h := newHash(alg)
	h.Write(data)
	return Digest{Algorithm: alg, Hex: hex.EncodeToString(h.Sum(nil))}
}

// HashFile streams the named file through the given algorithm.
func HashFile(alg Algorithm, path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()

	h := newHash(alg)
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("digest: hash %s: %w", path, err)
	}
	return Digest{Algorithm: alg, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Hasher accumulates bytes and yields a Digest at Sum. It satisfies
// io.Writer so callers can tee file reads or chunk assembly through it.
type Hasher struct {
	alg Algorithm
	h   hash.Hash
}

// NewHasher returns a streaming Hasher for the given algorithm.
func NewHasher(alg Algorithm) *Hasher {
	return &Hasher{alg: alg, h: newHash(alg)}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the hash and returns the resulting Digest. The Hasher
// remains usable for inspection but should not be written to afterward.
func (h *Hasher) Sum() Digest {
	return Digest{Algorithm: h.alg, Hex: hex.EncodeToString(h.h.Sum(nil))}
}

func newHash(alg Algorithm) hash.Hash {
	switch alg {
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case BLAKE3:
		return blake3.New()
	default:
		// Unreachable with the Algorithm constants defined above.
		panic(fmt.Sprintf("digest: unknown algorithm %d", alg))
	}
}
