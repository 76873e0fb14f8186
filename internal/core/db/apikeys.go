package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyRecord is the authentication view of an api_keys row.
type APIKeyRecord struct {
	APIKeyID    string       `db:"api_key_id"`
	WorkspaceID string       `db:"workspace_id"`
	LastUsedAt  sql.NullTime `db:"last_used_at"`
	RevokedAt   sql.NullTime `db:"revoked_at"`
}

// InsertAPIKey stores the HMAC of a newly issued key and returns its id.
// The plaintext key is never persisted.
func (q *Queries) InsertAPIKey(ctx context.Context, workspaceID, name string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := q.Exec(ctx, "insert-api-key", id, workspaceID, name, keyHash, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

// RevokeAPIKey marks a key revoked. Revoking twice is a no-op.
func (q *Queries) RevokeAPIKey(ctx context.Context, apiKeyID string) error {
	if _, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC(), apiKeyID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
