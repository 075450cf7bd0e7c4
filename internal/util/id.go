package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// WellFormedID reports whether value looks like an identity this system
// issues: an optional lowercase prefix, an underscore, then hex.
func WellFormedID(value string) bool {
	if value == "" {
		return false
	}
	hexPart := value
	for i := 0; i < len(value); i++ {
		if value[i] == '_' {
			hexPart = value[i+1:]
			break
		}
	}
	if hexPart == "" {
		return false
	}
	for i := 0; i < len(hexPart); i++ {
		c := hexPart[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
