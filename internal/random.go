package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	minTokenBytes     = 16
	defaultTokenBytes = 32
)

// NewID returns a time-ordered UUIDv7 string, falling back to a random
// UUIDv4 when the clock sequence cannot be read.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewToken returns a base64url (no padding) encoding of size random bytes.
// size 0 selects the default of 32 bytes.
func NewToken(size int) (string, error) {
	if size == 0 {
		size = defaultTokenBytes
	}
	if size < minTokenBytes {
		return "", errors.New("token size too small")
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
