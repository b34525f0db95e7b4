package oauth

import "errors"

var (
	// ErrNotAuthenticated signals that no token record is persisted.
	ErrNotAuthenticated = errors.New("oauth: not authenticated")
	// ErrNoPendingAuthorization signals that no authorization URL is
	// stashed for the session.
	ErrNoPendingAuthorization = errors.New("oauth: no pending authorization")
)

// Callback error codes surfaced to the landing page.
const (
	CodeNoCode             = "no_code"
	CodeTokenRequestFailed = "token_request_failed"
	CodeInternalError      = "internal_error"
)
