package clickstats

import (
	"context"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/cashtags/internal/domain/subscription"
)

// ValkeyCounter ranks ticker clicks in a Valkey sorted set.
type ValkeyCounter struct {
	client valkey.Client
	prefix string
}

// NewValkeyCounter constructs a counter backed by Valkey.
func NewValkeyCounter(client valkey.Client, prefix string) *ValkeyCounter {
	if prefix == "" {
		prefix = "cashtags"
	}
	return &ValkeyCounter{client: client, prefix: prefix}
}

func (c *ValkeyCounter) Increment(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil
	}
	return c.client.Do(ctx, c.client.B().Zincrby().Key(c.key()).Increment(1).Member(ticker).Build()).Error()
}

func (c *ValkeyCounter) Top(ctx context.Context, limit int) ([]subscription.TrendingTicker, error) {
	if limit <= 0 {
		limit = 10
	}
	resp := c.client.Do(ctx, c.client.B().Zrevrange().Key(c.key()).Start(0).Stop(int64(limit-1)).Withscores().Build())
	arr, err := resp.ToArray()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseScores(arr)
}

// parseScores accepts both RESP3 [member, score] tuples and the flat RESP2 layout.
func parseScores(arr []valkey.ValkeyMessage) ([]subscription.TrendingTicker, error) {
	out := make([]subscription.TrendingTicker, 0, len(arr))
	for i := 0; i < len(arr); {
		var (
			member string
			score  float64
			err    error
		)
		if tuple, tupleErr := arr[i].ToArray(); tupleErr == nil && len(tuple) == 2 {
			if member, err = tuple[0].ToString(); err != nil {
				return nil, err
			}
			if score, err = tuple[1].ToFloat64(); err != nil {
				return nil, err
			}
			i++
		} else {
			if i+1 >= len(arr) {
				break
			}
			if member, err = arr[i].ToString(); err != nil {
				return nil, err
			}
			if score, err = arr[i+1].ToFloat64(); err != nil {
				return nil, err
			}
			i += 2
		}
		out = append(out, subscription.TrendingTicker{Ticker: member, Clicks: int64(score)})
	}
	return out, nil
}

func (c *ValkeyCounter) key() string {
	return fmt.Sprintf("%s:clicks:trending", c.prefix)
}

var _ subscription.ClickCounter = (*ValkeyCounter)(nil)
