package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var ErrDigestMismatch = errors.New("artifact digest mismatch")

// Verifier checks model artifacts against a pinned SHA-256 digest.
type Verifier struct {
	expected string
	logger   *slog.Logger
}

// NewVerifier returns a verifier for the given hex digest. An empty digest
// disables pinning; Verify then only computes the digest.
func NewVerifier(expectedHex string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		expected: strings.ToLower(strings.TrimSpace(expectedHex)),
		logger:   logger,
	}
}

func (v *Verifier) Pinned() bool {
	return v.expected != ""
}

func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify returns the digest of data, or ErrDigestMismatch when a pinned
// digest is configured and does not match.
func (v *Verifier) Verify(data []byte) (string, error) {
	actual := Digest(data)
	if !v.Pinned() {
		return actual, nil
	}

	if subtle.ConstantTimeCompare([]byte(actual), []byte(v.expected)) != 1 {
		v.logger.Warn("Artifact digest verification failed",
			slog.String("expected", v.expected),
			slog.String("received", actual))
		return actual, fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, v.expected, actual)
	}

	return actual, nil
}
