package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// InsufficientEntropyError is returned when the random source fails.
// Token issuance must abort; there is no weaker fallback.
type InsufficientEntropyError struct {
	Err error
}

func (e *InsufficientEntropyError) Error() string {
	return fmt.Sprintf("insufficient entropy: %v", e.Err)
}

func (e *InsufficientEntropyError) Unwrap() error {
	return e.Err
}

// TokenGenerator produces random hex tokens
type TokenGenerator struct {
	rand io.Reader
}

// NewTokenGenerator returns a generator reading from r, or crypto/rand when r is nil
func NewTokenGenerator(r io.Reader) *TokenGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &TokenGenerator{rand: r}
}

// Generate returns a random token.
//
// Without a prefix the result is exactly length hex characters. With a prefix
// the result is prefix + "_" + hex; trimToLength keeps the total at length,
// otherwise the hex part alone is length characters long.
func (g *TokenGenerator) Generate(length int, prefix string, trimToLength bool) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	n := length
	head := ""
	if prefix != "" {
		head = prefix + "_"
		if trimToLength {
			n = length - len(head)
			if n <= 0 {
				return "", fmt.Errorf("token length %d leaves no room after prefix %q", length, prefix)
			}
		}
	}

	buf := make([]byte, (n+1)/2)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", &InsufficientEntropyError{Err: err}
	}

	return head + hex.EncodeToString(buf)[:n], nil
}
