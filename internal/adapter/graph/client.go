package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client encapsulates outbound HTTP calls to the identity provider and
// Microsoft Graph.
type Client interface {
	ExchangeCode(ctx context.Context, cfg oauth.ClientConfig, code string) (*oauth.TokenResponse, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
	FetchGroupNames(ctx context.Context, accessToken string) ([]string, error)
	ListUsers(ctx context.Context, accessToken string, top int) ([]oauth.TenantUser, error)
}

// Profile is the subset of the /me response the flow consumes.
type Profile struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// TokenEndpointError reports a non-200 token exchange. The raw response body
// is kept so callers can surface it as the error description.
type TokenEndpointError struct {
	StatusCode int
	Body       string
}

func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("token request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPClient is the default HTTP implementation.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Graph client. An empty baseURL falls
// back to the public Graph endpoint.
func NewHTTPClient(client *http.Client, baseURL string) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{httpClient: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// ExchangeCode posts the authorization code to the tenant token endpoint.
// A non-200 response returns *TokenEndpointError carrying the body.
func (c *HTTPClient) ExchangeCode(ctx context.Context, cfg oauth.ClientConfig, code string) (*oauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TokenEndpointError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token oauth.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &token, nil
}

// FetchProfile loads the signed-in user profile from /me.
func (c *HTTPClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, c.baseURL+"/me", accessToken, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FetchGroupNames returns the display names of the groups and roles the
// signed-in user is a member of.
func (c *HTTPClient) FetchGroupNames(ctx context.Context, accessToken string) ([]string, error) {
	var payload struct {
		Value []struct {
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/me/memberOf", accessToken, &payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Value))
	for _, entry := range payload.Value {
		names = append(names, entry.DisplayName)
	}
	return names, nil
}

// ListUsers returns the first page of tenant users with the id, displayName,
// mail, userPrincipalName projection.
func (c *HTTPClient) ListUsers(ctx context.Context, accessToken string, top int) ([]oauth.TenantUser, error) {
	if top <= 0 {
		top = 100
	}
	params := url.Values{}
	params.Set("$select", "id,displayName,mail,userPrincipalName")
	params.Set("$top", strconv.Itoa(top))

	var payload struct {
		Value []oauth.TenantUser `json:"value"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/users?"+params.Encode(), accessToken, &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph request failed: status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
