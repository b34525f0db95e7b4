package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

// Default file names inside the data directory.
const (
	ConfigFileName = "oauth_config.json"
	TokenFileName  = "token_info.json"
)

// FileConfigStore keeps the client configuration in a JSON file.
type FileConfigStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ ConfigStore = (*FileConfigStore)(nil)

// NewFileConfigStore binds the store to <dataDir>/oauth_config.json.
func NewFileConfigStore(dataDir string, logger *zap.Logger) *FileConfigStore {
	if logger == nil {
		logger = zap.L()
	}
	return &FileConfigStore{path: filepath.Join(dataDir, ConfigFileName), logger: logger}
}

// Load reads the configuration record. A missing or malformed file falls
// back to the placeholder defaults and is only logged.
func (s *FileConfigStore) Load(ctx context.Context) oauth.ClientConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("read oauth config", zap.String("path", s.path), zap.Error(err))
		}
		return oauth.DefaultClientConfig()
	}

	var cfg oauth.ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Error("decode oauth config", zap.String("path", s.path), zap.Error(err))
		return oauth.DefaultClientConfig()
	}
	return cfg
}

// Save writes the record back, creating the data directory when absent.
func (s *FileConfigStore) Save(ctx context.Context, cfg oauth.ClientConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path, cfg)
}

// FileTokenStore keeps the token record collection in a JSON file.
type FileTokenStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore binds the store to <dataDir>/token_info.json.
func NewFileTokenStore(dataDir string, logger *zap.Logger) *FileTokenStore {
	if logger == nil {
		logger = zap.L()
	}
	return &FileTokenStore{path: filepath.Join(dataDir, TokenFileName), logger: logger}
}

// Load returns the sole persisted record, or (nil, nil) when the deployment
// is not authenticated.
func (s *FileTokenStore) Load(ctx context.Context) (*oauth.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var file oauth.TokenFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	if len(file.Tokens) == 0 {
		return nil, nil
	}
	record := file.Tokens[0]
	return &record, nil
}

// Save overwrites the collection with the given record as its sole element.
func (s *FileTokenStore) Save(ctx context.Context, record oauth.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path, oauth.TokenFile{Tokens: []oauth.TokenRecord{record}})
}

// Delete removes the token file. A missing file is success.
func (s *FileTokenStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete token file: %w", err)
	}
	s.logger.Info("token file removed", zap.String("path", s.path))
	return nil
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
