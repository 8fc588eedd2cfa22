package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

// ValkeyStore records revoked sessions as expiring Valkey keys so every replica sees a sign-out.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	now    func() time.Time
}

// NewValkeyStore constructs a store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "cashtags"
	}
	return &ValkeyStore{client: client, prefix: prefix, now: time.Now}
}

func (s *ValkeyStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.client.Do(ctx, s.client.B().Set().Key(s.key(sessionID)).Value("1").Ex(ttl).Build()).Error()
}

func (s *ValkeyStore) Revoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.key(sessionID)).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ValkeyStore) key(sessionID string) string {
	return fmt.Sprintf("%s:auth:revoked:%s", s.prefix, sessionID)
}

var _ auth.SessionStore = (*ValkeyStore)(nil)
