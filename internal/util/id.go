package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID string. Table primary keys use the bare form.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns a random hex token of n bytes, prefixed when prefix is set.
func NewToken(prefix string, n int) string {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
