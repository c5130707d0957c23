package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func ParseBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "yes", "true", "1", "y", "on":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether sig is the hex HMAC-SHA256 of msg under secret.
func ValidSignature(secret, msg, sig string) bool {
	want := HMACSHA256Hex(secret, msg)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(sig))))
}
