package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/adapter/graph"
	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

func TestFlow_InitiateAuthorization(t *testing.T) {
	h := newFlowTestHarness(t)
	ctx := context.Background()

	authURL, err := h.flow.InitiateAuthorization(ctx, oauth.MailboxOptions{
		MailboxType:   oauth.MailboxShared,
		SharedMailbox: "relay@contoso.com",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	cfg := h.configStore.cfg
	require.Equal(t, cfg.AuthorizeEndpoint(), parsed.Scheme+"://"+parsed.Host+parsed.Path)

	q := parsed.Query()
	require.Len(t, q, 5)
	require.Equal(t, cfg.ClientID, q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, cfg.RedirectURI, q.Get("redirect_uri"))
	require.Equal(t, strings.Join(cfg.Scopes, " "), q.Get("scope"))
	require.Equal(t, "query", q.Get("response_mode"))

	// Mailbox options are merged and persisted.
	require.Equal(t, oauth.MailboxShared, h.configStore.cfg.MailboxType)
	require.Equal(t, "relay@contoso.com", h.configStore.cfg.SharedMailbox)
	require.Equal(t, 1, h.configStore.saves)
}

func TestFlow_InitiateAuthorization_DefaultsToPrimary(t *testing.T) {
	h := newFlowTestHarness(t)

	_, err := h.flow.InitiateAuthorization(context.Background(), oauth.MailboxOptions{})
	require.NoError(t, err)
	require.Equal(t, oauth.MailboxPrimary, h.configStore.cfg.MailboxType)
	require.False(t, h.configStore.cfg.UseAlias)
	require.Empty(t, h.configStore.cfg.SharedMailbox)
}

func TestFlow_InitiateAuthorization_SaveFailure(t *testing.T) {
	h := newFlowTestHarness(t)
	h.configStore.saveErr = fmt.Errorf("disk full")

	_, err := h.flow.InitiateAuthorization(context.Background(), oauth.MailboxOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestFlow_HandleCallback_ProviderError(t *testing.T) {
	h := newFlowTestHarness(t)

	result := h.flow.HandleCallback(context.Background(), CallbackInput{
		Error:            "access_denied",
		ErrorDescription: "foo",
	})

	require.False(t, result.Success)
	require.Equal(t, "access_denied", result.ErrorCode)
	require.Equal(t, "foo", result.ErrorDescription)
	require.Equal(t, []string{"Error: access_denied - foo"}, h.audit.failures)
	require.Zero(t, h.graph.exchanges, "no token request may be attempted")
	require.Nil(t, h.tokenStore.record)
}

func TestFlow_HandleCallback_NoCode(t *testing.T) {
	h := newFlowTestHarness(t)

	result := h.flow.HandleCallback(context.Background(), CallbackInput{})

	require.False(t, result.Success)
	require.Equal(t, oauth.CodeNoCode, result.ErrorCode)
	require.Zero(t, h.graph.exchanges)
}

func TestFlow_HandleCallback_Success(t *testing.T) {
	h := newFlowTestHarness(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.flow.now = func() time.Time { return now }

	h.graph.token = &oauth.TokenResponse{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
	h.graph.profile = &graph.Profile{
		DisplayName:       "Relay Admin",
		Mail:              "admin@contoso.com",
		UserPrincipalName: "admin@contoso.onmicrosoft.com",
	}
	h.graph.groups = []string{"Helpdesk", "Global Administrator"}
	h.graph.users = []oauth.TenantUser{
		{ID: "u1", DisplayName: "User One", Mail: "one@contoso.com", UserPrincipalName: "one@contoso.com"},
	}

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "auth-code"})
	require.True(t, result.Success)
	require.Equal(t, "admin@contoso.com", result.UserEmail)

	record := h.tokenStore.record
	require.NotNil(t, record)
	require.Equal(t, "access-123", record.AccessToken)
	require.Equal(t, "refresh-456", record.RefreshToken)
	require.Equal(t, now.Add(3600*time.Second).Unix(), record.ExpiresAt)
	require.Equal(t, "success", record.LastRefreshResult)
	require.Equal(t, now.Format(time.RFC3339), record.LastRefreshed)
	require.Equal(t, now.Format(time.RFC3339), record.LastRefreshAttempt)
	require.Equal(t, "Relay Admin", record.UserDisplayName)
	require.True(t, record.IsAdmin)
	require.Len(t, record.TenantUsers, 1)
	require.NotEmpty(t, record.ID)

	require.Equal(t, []string{"Success: Token obtained for admin@contoso.com"}, h.audit.successes)
	require.Empty(t, h.audit.failures)
}

func TestFlow_HandleCallback_MissingExpiresInDefaults(t *testing.T) {
	h := newFlowTestHarness(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.flow.now = func() time.Time { return now }
	h.graph.token = &oauth.TokenResponse{AccessToken: "access", TokenType: "Bearer"}
	h.graph.profileErr = fmt.Errorf("profile unavailable")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})
	require.True(t, result.Success)
	require.Equal(t, int64(3600), h.tokenStore.record.ExpiresIn)
	require.Equal(t, now.Add(time.Hour).Unix(), h.tokenStore.record.ExpiresAt)
}

func TestFlow_HandleCallback_TokenEndpointFailure(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.tokenErr = &graph.TokenEndpointError{StatusCode: 401, Body: `{"error":"invalid_client"}`}

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "bad-code"})

	require.False(t, result.Success)
	require.Equal(t, oauth.CodeTokenRequestFailed, result.ErrorCode)
	require.Contains(t, result.ErrorDescription, "invalid_client")
	require.Nil(t, h.tokenStore.record, "no partial state may be persisted")
	require.Empty(t, h.audit.successes)
}

func TestFlow_HandleCallback_ExchangeNetworkFailure(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.tokenErr = fmt.Errorf("connection refused")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})

	require.Equal(t, oauth.CodeInternalError, result.ErrorCode)
	require.Contains(t, result.ErrorDescription, "connection refused")
	require.Nil(t, h.tokenStore.record)
}

func TestFlow_HandleCallback_PersistFailure(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.token = &oauth.TokenResponse{AccessToken: "access"}
	h.graph.profileErr = fmt.Errorf("down")
	h.tokenStore.saveErr = fmt.Errorf("read-only filesystem")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})

	require.Equal(t, oauth.CodeInternalError, result.ErrorCode)
	require.Contains(t, result.ErrorDescription, "read-only filesystem")
	require.Empty(t, h.audit.successes)
}

func TestFlow_Enrichment_MembershipFailureKeepsProfile(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.token = &oauth.TokenResponse{AccessToken: "access", ExpiresIn: 3600}
	h.graph.profile = &graph.Profile{DisplayName: "Relay Admin", Mail: "admin@contoso.com"}
	h.graph.groupsErr = fmt.Errorf("memberOf unavailable")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})
	require.True(t, result.Success)

	record := h.tokenStore.record
	require.Equal(t, "Relay Admin", record.UserDisplayName)
	require.Equal(t, "admin@contoso.com", record.UserEmail)
	require.False(t, record.IsAdmin)
	require.Nil(t, record.TenantUsers)
}

func TestFlow_Enrichment_ProfileFailureKeepsDefaults(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.token = &oauth.TokenResponse{AccessToken: "access", ExpiresIn: 3600}
	h.graph.profileErr = fmt.Errorf("me unavailable")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})
	require.True(t, result.Success)
	require.Equal(t, "Unknown", h.tokenStore.record.UserDisplayName)
	require.Equal(t, "Unknown", h.tokenStore.record.UserEmail)
	require.False(t, h.tokenStore.record.IsAdmin)
}

func TestFlow_Enrichment_UPNFallback(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.token = &oauth.TokenResponse{AccessToken: "access", ExpiresIn: 3600}
	h.graph.profile = &graph.Profile{DisplayName: "Relay Admin", UserPrincipalName: "admin@contoso.onmicrosoft.com"}

	h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})
	require.Equal(t, "admin@contoso.onmicrosoft.com", h.tokenStore.record.UserEmail)
}

func TestFlow_Enrichment_IDTokenClaims(t *testing.T) {
	h := newFlowTestHarness(t)
	h.graph.token = &oauth.TokenResponse{
		AccessToken: "access",
		ExpiresIn:   3600,
		IDToken:     buildUnverifiedIDToken(t, "tenant-guid", "admin@contoso.com"),
	}
	h.graph.profileErr = fmt.Errorf("me unavailable")

	result := h.flow.HandleCallback(context.Background(), CallbackInput{Code: "code"})
	require.True(t, result.Success)
	require.Equal(t, "tenant-guid", h.tokenStore.record.HomeTenantID)
	// preferred_username backfills the email when Graph gave none.
	require.Equal(t, "admin@contoso.com", h.tokenStore.record.UserEmail)
}

func TestFlow_RevokeToken_Idempotent(t *testing.T) {
	h := newFlowTestHarness(t)
	h.tokenStore.record = &oauth.TokenRecord{AccessToken: "access"}

	require.NoError(t, h.flow.RevokeToken(context.Background()))
	require.Nil(t, h.tokenStore.record)

	// Second revoke is a no-op beyond the existence check.
	require.NoError(t, h.flow.RevokeToken(context.Background()))
}

func TestFlow_RevokeToken_DeleteFailure(t *testing.T) {
	h := newFlowTestHarness(t)
	h.tokenStore.deleteErr = fmt.Errorf("permission denied")

	err := h.flow.RevokeToken(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")
}

func TestFlow_TokenStatus(t *testing.T) {
	h := newFlowTestHarness(t)
	ctx := context.Background()

	status, err := h.flow.TokenStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Authenticated)

	h.tokenStore.record = &oauth.TokenRecord{
		AccessToken:     "access",
		UserEmail:       "admin@contoso.com",
		UserDisplayName: "Relay Admin",
		IsAdmin:         true,
		ExpiresAt:       1750000000,
	}
	status, err = h.flow.TokenStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Authenticated)
	require.Equal(t, "admin@contoso.com", status.UserEmail)
	require.Equal(t, int64(1750000000), status.ExpiresAt)
}

// ---- Test harness and fakes ----

type flowTestHarness struct {
	flow        *Flow
	configStore *memoryConfigStore
	tokenStore  *memoryTokenStore
	audit       *memoryAuditLog
	graph       *fakeGraphClient
}

func newFlowTestHarness(t *testing.T) *flowTestHarness {
	t.Helper()
	cfg := oauth.DefaultClientConfig()
	cfg.ClientID = "client-id"
	cfg.ClientSecret = "client-secret"
	cfg.TenantID = "tenant-id"

	configStore := &memoryConfigStore{cfg: cfg}
	tokenStore := &memoryTokenStore{}
	audit := &memoryAuditLog{}
	graphClient := &fakeGraphClient{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	flow := NewFlow(configStore, tokenStore, audit, graphClient, node, zap.NewNop())
	return &flowTestHarness{
		flow:        flow,
		configStore: configStore,
		tokenStore:  tokenStore,
		audit:       audit,
		graph:       graphClient,
	}
}

type memoryConfigStore struct {
	cfg     oauth.ClientConfig
	saves   int
	saveErr error
}

func (m *memoryConfigStore) Load(context.Context) oauth.ClientConfig {
	return m.cfg
}

func (m *memoryConfigStore) Save(_ context.Context, cfg oauth.ClientConfig) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cfg = cfg
	m.saves++
	return nil
}

type memoryTokenStore struct {
	record    *oauth.TokenRecord
	saveErr   error
	deleteErr error
}

func (m *memoryTokenStore) Load(context.Context) (*oauth.TokenRecord, error) {
	if m.record == nil {
		return nil, nil
	}
	copy := *m.record
	return &copy, nil
}

func (m *memoryTokenStore) Save(_ context.Context, record oauth.TokenRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.record = &record
	return nil
}

func (m *memoryTokenStore) Delete(context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.record = nil
	return nil
}

type memoryAuditLog struct {
	failures  []string
	successes []string
}

func (m *memoryAuditLog) Failure(message string) {
	m.failures = append(m.failures, message)
}

func (m *memoryAuditLog) Success(message string) {
	m.successes = append(m.successes, message)
}

type fakeGraphClient struct {
	token      *oauth.TokenResponse
	tokenErr   error
	profile    *graph.Profile
	profileErr error
	groups     []string
	groupsErr  error
	users      []oauth.TenantUser
	usersErr   error
	exchanges  int
}

func (f *fakeGraphClient) ExchangeCode(context.Context, oauth.ClientConfig, string) (*oauth.TokenResponse, error) {
	f.exchanges++
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return f.token, nil
}

func (f *fakeGraphClient) FetchProfile(context.Context, string) (*graph.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeGraphClient) FetchGroupNames(context.Context, string) ([]string, error) {
	if f.groupsErr != nil {
		return nil, f.groupsErr
	}
	return f.groups, nil
}

func (f *fakeGraphClient) ListUsers(context.Context, string, int) ([]oauth.TenantUser, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return f.users, nil
}

// buildUnverifiedIDToken assembles a compact JWT whose signature is garbage;
// the flow only reads claims without verification.
func buildUnverifiedIDToken(t *testing.T, tid, preferredUsername string) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	claims, err := json.Marshal(map[string]string{
		"tid":                tid,
		"preferred_username": preferredUsername,
	})
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(claims) + "." + enc.EncodeToString([]byte("sig"))
}
