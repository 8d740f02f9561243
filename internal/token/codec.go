// Package token generates and verifies the single-use confirmation
// credentials. Tokens are base62 strings minted from a cryptographically
// secure source; only their SHA-256 digest is ever persisted.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// 256 is not a multiple of 62, so sampling bytes mod 62 directly would skew
// toward the low symbols. Bytes in [248,255] are rejected instead: 248 is the
// largest multiple of 62 that fits in a byte, which leaves every symbol with
// exactly 4 accepting byte values.
const rejectAbove = 62*4 - 1

// Hard bounds on the length of tokens the codec will mint.
const (
	MinGenerateLen = 8
	MaxGenerateLen = 64
)

// ErrInvalidLength is returned by Generate for lengths outside [8,64].
var ErrInvalidLength = errors.New("token: invalid token length")

// Codec mints confirmation tokens and gates presented ones.
//
// The accepted-length window is narrower than the generate bounds: resolution
// only ever sees tokens this deployment could have minted, so anything outside
// the window is rejected before hashing or touching storage.
type Codec struct {
	rand      io.Reader
	minAccept int
	maxAccept int
}

// New returns a Codec backed by crypto/rand that accepts presented tokens of
// minAccept..maxAccept characters.
func New(minAccept, maxAccept int) *Codec {
	return NewWithRand(rand.Reader, minAccept, maxAccept)
}

// NewWithRand is New with an explicit random byte source, for deterministic
// tests of the rejection-sampling path.
func NewWithRand(r io.Reader, minAccept, maxAccept int) *Codec {
	if minAccept <= 0 {
		minAccept = 10
	}
	if maxAccept <= 0 {
		maxAccept = 24
	}
	return &Codec{rand: r, minAccept: minAccept, maxAccept: maxAccept}
}

// Generate produces a token of exactly length base62 characters, uniformly
// distributed, using rejection sampling over the random byte stream.
func (c *Codec) Generate(length int) (string, error) {
	if length < MinGenerateLen || length > MaxGenerateLen {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	out := make([]byte, 0, length)
	buf := make([]byte, 32)
	for len(out) < length {
		if _, err := io.ReadFull(c.rand, buf); err != nil {
			return "", fmt.Errorf("token: reading random source: %w", err)
		}
		for _, b := range buf {
			if b > rejectAbove {
				continue
			}
			out = append(out, alphabet[b%62])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// LooksValid is the cheap format gate applied before hashing and any store
// lookup: length window plus strict base62 alphabet.
func (c *Codec) LooksValid(token string) bool {
	if len(token) < c.minAccept || len(token) > c.maxAccept {
		return false
	}
	for i := 0; i < len(token); i++ {
		b := token[i]
		switch {
		case b >= '0' && b <= '9':
		case b >= 'A' && b <= 'Z':
		case b >= 'a' && b <= 'z':
		default:
			return false
		}
	}
	return true
}

// Hash derives the deterministic 32-byte lookup key for a token. The digest
// is the only form that ever reaches storage.
func Hash(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
