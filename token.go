package goMagicLink

import (
	"github.com/MrEthical07/goMagicLink/internal"
)

// NewTokenID describes the newtokenid operation and its observable behavior.
//
// NewTokenID returns a URL-safe identifier built from size random bytes (32 when size is 0). Sizes below 16 bytes are rejected.
// NewTokenID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewTokenID(size int) (string, error) {
	return internal.NewToken(size)
}
