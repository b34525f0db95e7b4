package repository

import (
	"context"
	"time"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

// ConfigStore persists the single OAuth client configuration record.
type ConfigStore interface {
	// Load returns the stored configuration. Read failures are logged and
	// masked by the placeholder defaults; Load never fails its caller.
	Load(ctx context.Context) oauth.ClientConfig
	Save(ctx context.Context, cfg oauth.ClientConfig) error
}

// TokenStore persists the credential bundle. Load returns (nil, nil) when no
// record exists; Delete of a missing record is a no-op.
type TokenStore interface {
	Load(ctx context.Context) (*oauth.TokenRecord, error)
	Save(ctx context.Context, record oauth.TokenRecord) error
	Delete(ctx context.Context) error
}

// AuditLog records flow outcomes to the append-only OAuth logs.
type AuditLog interface {
	Failure(message string)
	Success(message string)
}

// SessionStore stashes the pending authorization URL per browser session so
// AJAX callers can retrieve it after a form-posted initiation.
type SessionStore interface {
	SaveAuthURL(ctx context.Context, sessionID, authURL string, ttl time.Duration) error
	// GetAuthURL returns oauth.ErrNoPendingAuthorization when nothing is stashed.
	GetAuthURL(ctx context.Context, sessionID string) (string, error)
	DeleteAuthURL(ctx context.Context, sessionID string) error
}
