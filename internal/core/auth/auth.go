// Package auth provides HMAC-based API key authentication for the debugger API.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// workspaceIDKey is the context key for storing the authenticated workspace.
const workspaceIDKey = contextKey("workspace_id")

// healthPrefix marks methods served without an API key.
const healthPrefix = "/grpc.health.v1.Health/"

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries to allow query loading via LoadQueries().
type Queries interface {
	Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates an API key and returns its workspace_id on success.
// Returns a specific error for each failure mode.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	// key_hash is unique, so at most one row matches
	var result struct {
		APIKeyID    string       `db:"api_key_id"`
		WorkspaceID string       `db:"workspace_id"`
		LastUsedAt  sql.NullTime `db:"last_used_at"`
		RevokedAt   sql.NullTime `db:"revoked_at"`
	}

	err = a.queries.Get(ctx, "get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if result.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Throttled to one write per minute per key
	now := a.now().UTC()
	if shouldUpdateLastUsed(result.LastUsedAt, now) {
		_, _ = a.queries.Exec(ctx, "update-last-used", now, result.APIKeyID)
	}

	return result.WorkspaceID, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	return now.Sub(lastUsed.Time) > time.Minute
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass through unauthenticated.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		workspaceID, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case errors.Is(err, ErrStoreUnavailable):
				return nil, status.Error(codes.Unavailable, err.Error())
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		return handler(WithWorkspaceID(ctx, workspaceID), req)
	}
}

// WithWorkspaceID returns ctx carrying the authenticated workspace.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, workspaceID)
}

// WorkspaceIDFromContext extracts the workspace ID from context.
// Returns empty string if not found.
func WorkspaceIDFromContext(ctx context.Context) string {
	if workspaceID, ok := ctx.Value(workspaceIDKey).(string); ok {
		return workspaceID
	}
	return ""
}
