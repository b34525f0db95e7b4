package oauth

import "fmt"

// Placeholder credentials returned when no configuration has been saved yet.
const (
	PlaceholderClientID     = "CLIENT_ID_PLACEHOLDER"
	PlaceholderClientSecret = "CLIENT_SECRET_PLACEHOLDER"
	PlaceholderTenantID     = "TENANT_ID_PLACEHOLDER"
)

// DefaultAuthority is the Microsoft identity platform base URL. It keeps its
// trailing slash so endpoints concatenate as {authority}{tenant}/...
const DefaultAuthority = "https://login.microsoftonline.com/"

// DefaultRedirectURI is where the identity provider sends the user back.
const DefaultRedirectURI = "https://sentigee.com:8443/mail_relay/callback"

// Mailbox selection modes.
const (
	MailboxPrimary = "primary"
	MailboxShared  = "shared"
)

// ClientConfig is the persisted OAuth client configuration record. A single
// record exists per deployment; mailbox options are merged into it whenever
// an authorization flow is initiated.
type ClientConfig struct {
	ClientID      string   `json:"client_id"`
	ClientSecret  string   `json:"client_secret"`
	TenantID      string   `json:"tenant_id"`
	RedirectURI   string   `json:"redirect_uri"`
	Authority     string   `json:"authority"`
	Scopes        []string `json:"scopes"`
	MailboxType   string   `json:"mailbox_type,omitempty"`
	SharedMailbox string   `json:"shared_mailbox,omitempty"`
	UseAlias      bool     `json:"use_alias,omitempty"`
	Alias         string   `json:"alias,omitempty"`
}

// DefaultClientConfig returns the placeholder configuration used when the
// stored record is missing or unreadable.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ClientID:     PlaceholderClientID,
		ClientSecret: PlaceholderClientSecret,
		TenantID:     PlaceholderTenantID,
		RedirectURI:  DefaultRedirectURI,
		Authority:    DefaultAuthority,
		Scopes: []string{
			"https://graph.microsoft.com/Mail.Read",
			"https://graph.microsoft.com/Mail.Send",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		},
	}
}

// AuthorizeEndpoint builds the tenant-scoped authorization URL base.
func (c ClientConfig) AuthorizeEndpoint() string {
	return fmt.Sprintf("%s%s/oauth2/v2.0/authorize", c.Authority, c.TenantID)
}

// TokenEndpoint builds the tenant-scoped token URL.
func (c ClientConfig) TokenEndpoint() string {
	return fmt.Sprintf("%s%s/oauth2/v2.0/token", c.Authority, c.TenantID)
}

// MailboxOptions carries the mailbox selection submitted with an
// authorization initiation request. Zero values mean primary mailbox, no
// shared address, alias disabled.
type MailboxOptions struct {
	MailboxType   string `form:"mailbox_type" json:"mailbox_type"`
	SharedMailbox string `form:"shared_mailbox" json:"shared_mailbox"`
	UseAlias      bool   `form:"use_alias" json:"use_alias"`
	Alias         string `form:"alias" json:"alias"`
}

// Apply merges the options into the configuration record.
func (c *ClientConfig) Apply(opts MailboxOptions) {
	if opts.MailboxType == "" {
		opts.MailboxType = MailboxPrimary
	}
	c.MailboxType = opts.MailboxType
	c.SharedMailbox = opts.SharedMailbox
	c.UseAlias = opts.UseAlias
	c.Alias = opts.Alias
}

// TokenResponse models the JSON payload returned by the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TenantUser is one entry of the tenant user listing attached to admin
// token records. Field casing follows the Graph projection.
type TenantUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// UserInfo is the enrichment result attached to a token record. Fields keep
// their "Unknown"/false defaults when the corresponding Graph call fails.
type UserInfo struct {
	DisplayName  string
	Email        string
	IsAdmin      bool
	HomeTenantID string
	TenantUsers  []TenantUser
}

// DefaultUserInfo returns the enrichment defaults used before any Graph
// call has succeeded.
func DefaultUserInfo() UserInfo {
	return UserInfo{DisplayName: "Unknown", Email: "Unknown"}
}

// TokenRecord is the persisted credential bundle. Exactly one record exists
// per deployment; every successful callback overwrites it whole.
type TokenRecord struct {
	ID                 string       `json:"id,omitempty"`
	AccessToken        string       `json:"access_token"`
	RefreshToken       string       `json:"refresh_token,omitempty"`
	TokenType          string       `json:"token_type,omitempty"`
	Scope              string       `json:"scope,omitempty"`
	IDToken            string       `json:"id_token,omitempty"`
	ExpiresIn          int64        `json:"expires_in"`
	ExpiresAt          int64        `json:"expires_at"`
	LastRefreshed      string       `json:"last_refreshed"`
	LastRefreshAttempt string       `json:"last_refresh_attempt"`
	LastRefreshResult  string       `json:"last_refresh_result"`
	UserDisplayName    string       `json:"user_display_name"`
	UserEmail          string       `json:"user_email"`
	IsAdmin            bool         `json:"is_admin"`
	HomeTenantID       string       `json:"home_tenant_id,omitempty"`
	TenantUsers        []TenantUser `json:"tenant_users,omitempty"`
}

// TokenFile wraps the record collection as stored on disk. The slice is
// keyed for a future multi-account extension but holds a single element.
type TokenFile struct {
	Tokens []TokenRecord `json:"tokens"`
}
