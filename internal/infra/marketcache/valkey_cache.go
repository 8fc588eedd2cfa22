package marketcache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/cashtags/internal/domain/market"
)

// ValkeyCache stores market responses in Valkey with expiry.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache constructs a cache backed by Valkey.
func NewValkeyCache(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "cashtags"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	builder := c.client.B().Set().Key(c.key(key)).Value(valkey.BinaryString(value))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

func (c *ValkeyCache) key(key string) string {
	return fmt.Sprintf("%s:market:%s", c.prefix, key)
}

var _ market.Cache = (*ValkeyCache)(nil)
