package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

// TokenStore keeps the signed in user's access token on disk.
type TokenStore struct {
	path string
	now  func() time.Time
}

type storedToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewTokenStore uses path, or ~/.config/cashtags/token.json when path is empty.
func NewTokenStore(path string) (*TokenStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		path = filepath.Join(dir, "cashtags", "token.json")
	}
	return &TokenStore{path: path, now: time.Now}, nil
}

// Save persists a login response.
func (s *TokenStore) Save(resp auth.TokenPair) error {
	rec := storedToken{Token: resp.Token, Email: resp.User.Email}
	if resp.ExpiresIn > 0 {
		rec.ExpiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Credential returns the stored token, or summarysession.ErrNoCredential when there is none or it expired.
func (s *TokenStore) Credential(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", summarysession.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	var rec storedToken
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if rec.Token == "" || (!rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt)) {
		return "", summarysession.ErrNoCredential
	}
	return rec.Token, nil
}

var _ summarysession.CredentialSource = (*TokenStore)(nil)
