package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "file_3f2a...". The prefix makes ids
// self-describing in logs and notification rows (usr_, file_, ntf_, jti_).
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
