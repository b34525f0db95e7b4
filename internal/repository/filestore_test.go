package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

func TestFileConfigStore_LoadMissingReturnsDefaults(t *testing.T) {
	store := NewFileConfigStore(t.TempDir(), zap.NewNop())

	cfg := store.Load(context.Background())
	require.Equal(t, oauth.PlaceholderClientID, cfg.ClientID)
	require.Equal(t, oauth.PlaceholderClientSecret, cfg.ClientSecret)
	require.Equal(t, oauth.PlaceholderTenantID, cfg.TenantID)
	require.Equal(t, oauth.DefaultAuthority, cfg.Authority)
	require.Equal(t, []string{
		"https://graph.microsoft.com/Mail.Read",
		"https://graph.microsoft.com/Mail.Send",
		"https://graph.microsoft.com/User.Read",
		"offline_access",
	}, cfg.Scopes)
}

func TestFileConfigStore_LoadMalformedReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{not json"), 0o600))
	store := NewFileConfigStore(dir, zap.NewNop())

	cfg := store.Load(context.Background())
	require.Equal(t, oauth.PlaceholderClientID, cfg.ClientID)
}

func TestFileConfigStore_SaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "EmailRelay")
	store := NewFileConfigStore(dir, zap.NewNop())
	ctx := context.Background()

	cfg := oauth.DefaultClientConfig()
	cfg.ClientID = "real-client"
	cfg.TenantID = "real-tenant"
	cfg.Apply(oauth.MailboxOptions{MailboxType: oauth.MailboxShared, SharedMailbox: "relay@contoso.com", UseAlias: true, Alias: "noreply@contoso.com"})

	// Save creates the directory when absent.
	require.NoError(t, store.Save(ctx, cfg))

	loaded := store.Load(ctx)
	require.Equal(t, cfg, loaded)
}

func TestFileTokenStore_LoadAbsent(t *testing.T) {
	store := NewFileTokenStore(t.TempDir(), zap.NewNop())

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestFileTokenStore_SaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewFileTokenStore(dir, zap.NewNop())
	ctx := context.Background()

	record := oauth.TokenRecord{
		ID:                "1",
		AccessToken:       "access-123",
		RefreshToken:      "refresh-456",
		TokenType:         "Bearer",
		ExpiresIn:         3600,
		ExpiresAt:         1750000000,
		LastRefreshResult: "success",
		UserEmail:         "admin@contoso.com",
	}
	require.NoError(t, store.Save(ctx, record))

	// The on-disk shape is {"tokens": [record]}.
	raw, err := os.ReadFile(filepath.Join(dir, TokenFileName))
	require.NoError(t, err)
	var file oauth.TokenFile
	require.NoError(t, json.Unmarshal(raw, &file))
	require.Len(t, file.Tokens, 1)
	require.Equal(t, "access-123", file.Tokens[0].AccessToken)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, record, *loaded)

	require.NoError(t, store.Delete(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	// Deleting a missing file is success.
	require.NoError(t, store.Delete(ctx))
}

func TestFileTokenStore_SaveOverwrites(t *testing.T) {
	store := NewFileTokenStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, oauth.TokenRecord{AccessToken: "old"}))
	require.NoError(t, store.Save(ctx, oauth.TokenRecord{AccessToken: "new"}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", loaded.AccessToken)
}
