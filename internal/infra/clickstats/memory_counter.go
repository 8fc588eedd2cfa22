package clickstats

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yanqian/cashtags/internal/domain/subscription"
)

// MemoryCounter ranks ticker clicks in process memory.
type MemoryCounter struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewMemoryCounter constructs an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Increment(_ context.Context, ticker string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil
	}
	c.mu.Lock()
	c.counts[ticker]++
	c.mu.Unlock()
	return nil
}

// Top returns tickers by descending clicks, ties ordered alphabetically.
func (c *MemoryCounter) Top(_ context.Context, limit int) ([]subscription.TrendingTicker, error) {
	if limit <= 0 {
		limit = 10
	}
	c.mu.RLock()
	out := make([]subscription.TrendingTicker, 0, len(c.counts))
	for ticker, clicks := range c.counts {
		out = append(out, subscription.TrendingTicker{Ticker: ticker, Clicks: clicks})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks == out[j].Clicks {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Clicks > out[j].Clicks
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ subscription.ClickCounter = (*MemoryCounter)(nil)
