package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const tokenBytes = 32

func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskContact hides all but the last four characters of a phone-like id for logs.
// The server part of an address is dropped.
func MaskContact(contactID string) string {
	if at := strings.IndexByte(contactID, '@'); at >= 0 {
		contactID = contactID[:at]
	}
	if len(contactID) <= 4 {
		return "****"
	}
	return "****" + contactID[len(contactID)-4:]
}
