// Package hashing implements one-way hashing for passwords and OAuth
// client secrets. A stored hash has the form
//
//	{iterations};{salt-b64};{derived-b64}
//
// and carries everything needed to verify it, so raising the default
// work factor never invalidates hashes written earlier.
package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor for new hashes.
	DefaultIterations = 100_000

	// MinIterations is the lowest work factor New accepts.
	MinIterations = 10_000

	// maxIterations bounds the work a stored hash can demand on verify.
	maxIterations = 10_000_000

	saltLen = 16
	keyLen  = 32

	minStoredKeyLen = 16
	maxStoredKeyLen = 64

	separator = ";"
)

// Hasher derives PBKDF2-HMAC-SHA256 keys. The zero value is not
// usable; construct with New or Default.
type Hasher struct {
	iterations int
}

// New returns a Hasher that writes hashes with the given work factor.
func New(iterations int) (*Hasher, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: hash iterations %d below minimum %d", apperrors.ErrConfiguration, iterations, MinIterations)
	}

	if iterations > maxIterations {
		return nil, fmt.Errorf("%w: hash iterations %d above maximum %d", apperrors.ErrConfiguration, iterations, maxIterations)
	}

	return &Hasher{iterations: iterations}, nil
}

// Default returns a Hasher using DefaultIterations.
func Default() *Hasher {
	return &Hasher{iterations: DefaultIterations}
}

// Iterations returns the work factor used for new hashes.
func (h *Hasher) Iterations() int {
	return h.iterations
}

// Decoy returns a well-formed hash no secret is expected to match.
// Verifying against it costs the same as verifying a hash written by h.
func (h *Hasher) Decoy() string {
	return strings.Join([]string{
		strconv.Itoa(h.iterations),
		base64.StdEncoding.EncodeToString(make([]byte, saltLen)),
		base64.StdEncoding.EncodeToString(make([]byte, keyLen)),
	}, separator)
}

// Hash salts and derives secret, returning the storable form.
func (h *Hasher) Hash(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("%w: secret is empty", apperrors.ErrInvalidInput)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	dk := derive(secret, salt, h.iterations, keyLen)

	return strings.Join([]string{
		strconv.Itoa(h.iterations),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(dk),
	}, separator), nil
}

// Verify reports whether secret matches stored. Blank arguments are
// rejected with ErrInvalidInput; a malformed stored value verifies as
// false without error.
func (h *Hasher) Verify(secret, stored string) (bool, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(stored) == "" {
		return false, fmt.Errorf("%w: secret and stored hash are required", apperrors.ErrInvalidInput)
	}

	iterations, salt, want, ok := parse(stored)
	if !ok {
		return false, nil
	}

	got := derive(secret, salt, iterations, len(want))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func derive(secret string, salt []byte, iterations, length int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, length, sha256.New)
}

// parse splits a stored hash. It never trusts a field it cannot
// fully decode.
func parse(stored string) (int, []byte, []byte, bool) {
	parts := strings.Split(stored, separator)
	if len(parts) != 3 {
		return 0, nil, nil, false
	}

	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 || iterations > maxIterations {
		return 0, nil, nil, false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}

	dk, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(dk) < minStoredKeyLen || len(dk) > maxStoredKeyLen {
		return 0, nil, nil, false
	}

	return iterations, salt, dk, true
}
