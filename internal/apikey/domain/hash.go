package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const keyPrefix = "co_live_"

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new raw key plus its stored hash and display mask.
// The raw value is shown to the caller exactly once.
func GenerateAPIKey() (raw, hash, mask string, err error) {
	buf := make([]byte, 24)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = keyPrefix + hex.EncodeToString(buf)
	return raw, HashAPIKey(raw), MaskAPIKey(raw), nil
}

// MaskAPIKey keeps the prefix and last four characters for display.
func MaskAPIKey(raw string) string {
	if len(raw) <= len(keyPrefix)+4 {
		return keyPrefix + "****"
	}
	return keyPrefix + "****" + raw[len(raw)-4:]
}
