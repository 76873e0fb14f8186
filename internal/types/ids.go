package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRuleSetID generates a UUIDv7 rule-set identifier.
// Time-ordered IDs keep rule_sets inserts clustered in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleSetID() RuleSetID {
	return RuleSetID(uuid.Must(uuid.NewV7()).String())
}

// NewSessionID generates a UUIDv7 session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleSetID validates and converts a string to RuleSetID.
// Rejects malformed UUIDs before they reach a query.
func ParseRuleSetID(s string) (RuleSetID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleSetID(s), nil
}

// ParseSessionID validates and converts a string to SessionID.
func ParseSessionID(s string) (SessionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

// RuleSetIDTime extracts the creation time embedded in a UUIDv7 rule-set ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RuleSetIDTime(id RuleSetID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
