// Package config provides configuration management for the wafscope debugger API.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DebuggerAPIConfig holds configuration for the gRPC debugger API service.
type DebuggerAPIConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration

	// Live evaluation sessions held in memory; least recently used are evicted.
	MaxSessions int
	SessionTTL  time.Duration

	// Upper bound on rules accepted per stored rule set (<= types.MaxRules).
	MaxRules int

	RegexCacheSize int
	RegexTimeout   time.Duration

	// DataDir holds the daily evaluation logs.
	DataDir string
}

// DefaultDebuggerAPIConfig returns configuration with default values.
func DefaultDebuggerAPIConfig() *DebuggerAPIConfig {
	return &DebuggerAPIConfig{
		Host:           "0.0.0.0",
		Port:           50061,
		RequestTimeout: 30 * time.Second,
		MaxSessions:    1024,
		SessionTTL:     30 * time.Minute,
		MaxRules:       5000,
		RegexCacheSize: 512,
		RegexTimeout:   100 * time.Millisecond,
		DataDir:        "./data",
	}
}

// secretEnv is the environment variable, and the prefix of its numbered
// variants, that carries API-key signing secrets.
const secretEnv = "WS_HMAC_SECRET"

// minSecretBytes is the shortest accepted signing secret (256 bits).
const minSecretBytes = 32

// HMACSecrets collects API-key signing secrets from WS_HMAC_SECRET and any
// WS_HMAC_SECRET_<n>. Several may be set at once so keys signed with a
// retiring secret keep working while new keys use its successor; numbering
// may have gaps. Each value is <secret_id>:<base64 secret>. The result maps
// secret id to secret bytes.
func HMACSecrets() (map[string][]byte, error) {
	names := secretEnvNames(os.Environ())
	secrets := make(map[string][]byte, len(names))
	setBy := make(map[string]string, len(names))

	for _, name := range names {
		id, secret, err := ParseHMACSecretWithID(os.Getenv(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := setBy[id]; dup {
			return nil, fmt.Errorf("secret_id '%s' is set by both %s and %s", id, prev, name)
		}
		secrets[id] = secret
		setBy[id] = name
	}
	return secrets, nil
}

// secretEnvNames picks the non-empty secret variables out of environ,
// WS_HMAC_SECRET first and the numbered ones in ascending order.
func secretEnvNames(environ []string) []string {
	type entry struct {
		name string
		n    int
	}
	var found []entry
	for _, kv := range environ {
		name, value, _ := strings.Cut(kv, "=")
		if value == "" {
			continue
		}
		if name == secretEnv {
			found = append(found, entry{name, 0})
			continue
		}
		suffix, ok := strings.CutPrefix(name, secretEnv+"_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > 0 {
			found = append(found, entry{name, n})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	names := make([]string, len(found))
	for i, e := range found {
		names[i] = e.name
	}
	return names
}

// ParseHMACSecretWithID parses <secret_id>:<base64 secret>. The id is 32
// lowercase hex chars, the same id that appears inside API keys.
func ParseHMACSecretWithID(value string) (secretID string, secret []byte, err error) {
	secretID, encoded, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	if strings.ToLower(secretID) != secretID {
		return "", nil, fmt.Errorf("secret_id must be lowercase hex chars only")
	}
	if _, err := hex.DecodeString(secretID); err != nil {
		return "", nil, fmt.Errorf("secret_id must be hex chars only")
	}

	secret, err = decodeSecret(encoded)
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}

func decodeSecret(encoded string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", minSecretBytes, len(secret))
	}
	return secret, nil
}
