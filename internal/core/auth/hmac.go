package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// API keys read ws-v1-<secret id>-<random>. The secret id selects the HMAC
// secret that signs the key; random is 256 bits of lowercase hex. Only the
// HMAC of the whole key is stored.
const (
	keyPrefix   = "ws"
	keyVersion  = "v1"
	secretIDLen = 32
	randomBytes = 32

	keyHead = keyPrefix + "-" + keyVersion + "-"
	keyLen  = len(keyHead) + secretIDLen + 1 + 2*randomBytes // 103
)

// ParseAPIKey splits a key into its secret id and random part.
// Any deviation from the format is ErrInvalidKeyFormat.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	if len(key) != keyLen {
		return "", "", ErrInvalidKeyFormat
	}
	rest, ok := strings.CutPrefix(key, keyHead)
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	secretID, randomData, ok = strings.Cut(rest, "-")
	if !ok || len(secretID) != secretIDLen || !isLowerHex(secretID) || !isLowerHex(randomData) {
		return "", "", ErrInvalidKeyFormat
	}
	return secretID, randomData, nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}

// ComputeHMAC signs apiKey with secret (HMAC-SHA256).
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// VerifyHMAC compares two signatures in constant time.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey assembles a key from its parts without validating them.
func FormatAPIKey(secretID, randomData string) string {
	return keyHead + secretID + "-" + randomData
}

// GenerateAPIKey issues a new key under secretID and returns it with the
// HMAC to store. The plaintext key is shown once and never persisted.
func GenerateAPIKey(secretID string, secret []byte) (apiKey string, keyHash []byte, err error) {
	random := make([]byte, randomBytes)
	if _, err := rand.Read(random); err != nil {
		return "", nil, fmt.Errorf("generate key material: %w", err)
	}
	apiKey = FormatAPIKey(secretID, hex.EncodeToString(random))
	if _, _, err := ParseAPIKey(apiKey); err != nil {
		return "", nil, fmt.Errorf("secret id %q: %w", secretID, err)
	}
	return apiKey, ComputeHMAC(secret, apiKey), nil
}
