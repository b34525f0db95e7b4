package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/adapter/graph"
	"github.com/sentigee/relay-auth/internal/domain/oauth"
	"github.com/sentigee/relay-auth/internal/repository"
)

const tenantUserPageSize = 100

// Flow orchestrates the authorization-code token acquisition against the
// Microsoft identity platform: initiation, callback handling, enrichment,
// persistence, and revocation.
type Flow struct {
	configStore repository.ConfigStore
	tokenStore  repository.TokenStore
	audit       repository.AuditLog
	graph       graph.Client
	node        *snowflake.Node
	logger      *zap.Logger
	now         func() time.Time
}

// NewFlow wires the flow implementation.
func NewFlow(
	configStore repository.ConfigStore,
	tokenStore repository.TokenStore,
	audit repository.AuditLog,
	graphClient graph.Client,
	node *snowflake.Node,
	logger *zap.Logger,
) *Flow {
	if logger == nil {
		logger = zap.L()
	}
	return &Flow{
		configStore: configStore,
		tokenStore:  tokenStore,
		audit:       audit,
		graph:       graphClient,
		node:        node,
		logger:      logger,
		now:         time.Now,
	}
}

// InitiateAuthorization merges the mailbox options into the stored
// configuration and returns the authorization URL the user must visit.
func (f *Flow) InitiateAuthorization(ctx context.Context, opts oauth.MailboxOptions) (string, error) {
	cfg := f.configStore.Load(ctx)
	cfg.Apply(opts)

	if err := f.configStore.Save(ctx, cfg); err != nil {
		return "", fmt.Errorf("save oauth config: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", cfg.RedirectURI)
	params.Set("scope", strings.Join(cfg.Scopes, " "))
	params.Set("response_mode", "query")

	authURL := cfg.AuthorizeEndpoint() + "?" + params.Encode()
	f.logger.Info("authorization initiated",
		zap.String("mailbox_type", cfg.MailboxType),
		zap.Bool("use_alias", cfg.UseAlias),
	)
	return authURL, nil
}

// CallbackInput captures the query parameters of the provider redirect.
type CallbackInput struct {
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackResult is the content-type-agnostic outcome of callback handling.
// The HTTP boundary renders it as a landing-page redirect.
type CallbackResult struct {
	Success          bool
	ErrorCode        string
	ErrorDescription string
	UserEmail        string
}

// HandleCallback processes the provider redirect: it records provider
// errors, exchanges the code for tokens, enriches and persists the record.
// It never fails its caller; every failure becomes an error result.
func (f *Flow) HandleCallback(ctx context.Context, in CallbackInput) CallbackResult {
	if in.Error != "" {
		desc := in.ErrorDescription
		if desc == "" {
			desc = "Unknown error"
		}
		f.logger.Error("provider returned error",
			zap.String("error", in.Error),
			zap.String("error_description", desc),
		)
		f.audit.Failure(fmt.Sprintf("Error: %s - %s", in.Error, desc))
		return CallbackResult{ErrorCode: in.Error, ErrorDescription: desc}
	}

	if in.Code == "" {
		f.logger.Error("no authorization code received")
		return CallbackResult{
			ErrorCode:        oauth.CodeNoCode,
			ErrorDescription: "No authorization code was received",
		}
	}

	cfg := f.configStore.Load(ctx)

	tokenResp, err := f.graph.ExchangeCode(ctx, cfg, in.Code)
	if err != nil {
		var endpointErr *graph.TokenEndpointError
		if errors.As(err, &endpointErr) {
			f.logger.Error("token request failed",
				zap.Int("status", endpointErr.StatusCode),
				zap.String("body", endpointErr.Body),
			)
			return CallbackResult{
				ErrorCode:        oauth.CodeTokenRequestFailed,
				ErrorDescription: "Failed to obtain token: " + endpointErr.Body,
			}
		}
		f.logger.Error("token exchange failed", zap.Error(err))
		return CallbackResult{
			ErrorCode:        oauth.CodeInternalError,
			ErrorDescription: "Internal error: " + err.Error(),
		}
	}

	record := f.buildTokenRecord(tokenResp)
	info := f.enrichUserInfo(ctx, tokenResp.AccessToken, tokenResp.IDToken)
	record.UserDisplayName = info.DisplayName
	record.UserEmail = info.Email
	record.IsAdmin = info.IsAdmin
	record.HomeTenantID = info.HomeTenantID
	record.TenantUsers = info.TenantUsers

	if err := f.tokenStore.Save(ctx, record); err != nil {
		f.logger.Error("persist token record", zap.Error(err))
		return CallbackResult{
			ErrorCode:        oauth.CodeInternalError,
			ErrorDescription: "Internal error: " + err.Error(),
		}
	}

	f.audit.Success("Success: Token obtained for " + record.UserEmail)
	f.logger.Info("oauth token obtained", zap.String("user_email", record.UserEmail))
	return CallbackResult{Success: true, UserEmail: record.UserEmail}
}

func (f *Flow) buildTokenRecord(resp *oauth.TokenResponse) oauth.TokenRecord {
	now := f.now()
	expiresIn := resp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	record := oauth.TokenRecord{
		AccessToken:        resp.AccessToken,
		RefreshToken:       resp.RefreshToken,
		TokenType:          resp.TokenType,
		Scope:              resp.Scope,
		IDToken:            resp.IDToken,
		ExpiresIn:          expiresIn,
		ExpiresAt:          now.Add(time.Duration(expiresIn) * time.Second).Unix(),
		LastRefreshed:      now.Format(time.RFC3339),
		LastRefreshAttempt: now.Format(time.RFC3339),
		LastRefreshResult:  "success",
	}
	if f.node != nil {
		record.ID = f.node.Generate().String()
	}
	return record
}

// enrichUserInfo upgrades the enrichment defaults with whatever the Graph
// calls return. Failures are absorbed; partial results already gathered are
// kept.
func (f *Flow) enrichUserInfo(ctx context.Context, accessToken, idToken string) oauth.UserInfo {
	info := oauth.DefaultUserInfo()

	if claims, err := decodeIDTokenClaims(idToken); err == nil {
		info.HomeTenantID = claims.TenantID
		if claims.PreferredUsername != "" {
			info.Email = claims.PreferredUsername
		}
	} else if idToken != "" {
		f.logger.Warn("decode id_token claims", zap.Error(err))
	}

	profile, err := f.graph.FetchProfile(ctx, accessToken)
	if err != nil {
		f.logger.Warn("fetch user profile", zap.Error(err))
		return info
	}
	if profile.DisplayName != "" {
		info.DisplayName = profile.DisplayName
	}
	switch {
	case profile.Mail != "":
		info.Email = profile.Mail
	case profile.UserPrincipalName != "":
		info.Email = profile.UserPrincipalName
	}

	groups, err := f.graph.FetchGroupNames(ctx, accessToken)
	if err != nil {
		f.logger.Warn("fetch group membership", zap.Error(err))
		return info
	}
	for _, name := range groups {
		// Substring heuristic, not a verified role check.
		if strings.Contains(strings.ToLower(name), "admin") {
			info.IsAdmin = true
			break
		}
	}
	if !info.IsAdmin {
		return info
	}

	users, err := f.graph.ListUsers(ctx, accessToken, tenantUserPageSize)
	if err != nil {
		f.logger.Warn("list tenant users", zap.Error(err))
		return info
	}
	info.TenantUsers = users
	return info
}

// RevokeToken deletes the persisted credential bundle. Revoking when no
// record exists is still success.
func (f *Flow) RevokeToken(ctx context.Context) error {
	if err := f.tokenStore.Delete(ctx); err != nil {
		f.logger.Error("revoke token", zap.Error(err))
		return fmt.Errorf("revoke token: %w", err)
	}
	f.logger.Info("oauth token revoked")
	return nil
}

// Status reports whether a credential bundle is persisted and, when it is,
// the enriched identity attached to it.
type Status struct {
	Authenticated   bool   `json:"authenticated"`
	UserEmail       string `json:"user_email,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	IsAdmin         bool   `json:"is_admin,omitempty"`
	ExpiresAt       int64  `json:"expires_at,omitempty"`
}

// TokenStatus loads the persisted record and summarizes it.
func (f *Flow) TokenStatus(ctx context.Context) (Status, error) {
	record, err := f.tokenStore.Load(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load token record: %w", err)
	}
	if record == nil {
		return Status{}, nil
	}
	return Status{
		Authenticated:   true,
		UserEmail:       record.UserEmail,
		UserDisplayName: record.UserDisplayName,
		IsAdmin:         record.IsAdmin,
		ExpiresAt:       record.ExpiresAt,
	}, nil
}

type idTokenClaims struct {
	TenantID          string `json:"tid"`
	PreferredUsername string `json:"preferred_username"`
}

// decodeIDTokenClaims reads claims without signature verification. The
// id_token arrived on the direct TLS response from the token endpoint, and
// the claims only backfill display metadata.
func decodeIDTokenClaims(idToken string) (*idTokenClaims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, errors.New("empty id_token")
	}
	parsed, err := josejwt.ParseSigned(idToken, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	var claims idTokenClaims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, fmt.Errorf("decode id_token claims: %w", err)
	}
	return &claims, nil
}
