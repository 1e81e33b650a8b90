package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

const (
	// IDChars is the alphabet used for public identifiers.
	IDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// HookIDLength is the length of a hook id (part of the public webhook URL).
	HookIDLength = 12
	// EventIDLength is the length of an event id.
	EventIDLength = 16
)

// GenerateID returns a random identifier of exactly length characters drawn from IDChars.
func GenerateID(length int) (string, error) {
	result := make([]byte, length)
	charsLen := big.NewInt(int64(len(IDChars)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, charsLen)
		if err != nil {
			return "", err
		}
		result[i] = IDChars[num.Int64()]
	}

	return string(result), nil
}

// NewHookID generates a 12-character hook id.
func NewHookID() (string, error) {
	return GenerateID(HookIDLength)
}

// NewEventID generates a 16-character event id.
func NewEventID() (string, error) {
	return GenerateID(EventIDLength)
}

// HashToken creates a SHA256 hash of a token.
// Used wherever a bearer token would otherwise end up in memory keys or logs.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SecureCompareStrings compares two secrets in constant time.
func SecureCompareStrings(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
