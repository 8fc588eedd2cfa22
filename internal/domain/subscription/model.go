package subscription

import (
	"context"
	"strings"
	"time"
)

// Tier is the subscription level of a user.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

// ParseTier reads a stored status. Anything other than PREMIUM, in any case, is FREE.
func ParseTier(raw string) Tier {
	if Tier(strings.ToUpper(strings.TrimSpace(raw))) == TierPremium {
		return TierPremium
	}
	return TierFree
}

// Unlimited marks a quota without an upper bound.
const Unlimited = -1

// Config controls quotas per tier.
type Config struct {
	FreeClickLimit           int
	FreeRequestsPerMinute    int
	PremiumRequestsPerMinute int
}

// Subscription is the persisted quota row of a user.
type Subscription struct {
	UserID     int64
	Tier       Tier
	ClickCount int
	UpdatedAt  time.Time
}

// Status is returned by GET /api/subscription.
type Status struct {
	Status            Tier `json:"status"`
	ClickCount        int  `json:"clickCount"`
	ClicksLeft        int  `json:"clicksLeft"`
	RequestsPerMinute int  `json:"requestsPerMinute"`
}

// ClickResult is returned after a recorded ticker click. Remaining is Unlimited for PREMIUM.
type ClickResult struct {
	Ticker     string `json:"ticker"`
	ClickCount int    `json:"clickCount"`
	Remaining  int    `json:"remainingClicks"`
}

// TrendingTicker is a ticker with its accumulated click count.
type TrendingTicker struct {
	Ticker string `json:"ticker"`
	Clicks int64  `json:"clicks"`
}

// Repository persists subscriptions.
type Repository interface {
	Get(ctx context.Context, userID int64) (Subscription, bool, error)
	Ensure(ctx context.Context, userID int64) (Subscription, error)
	// IncrementClick atomically counts a click unless a FREE user already reached limit.
	// The returned bool is false when the limit blocked the click.
	IncrementClick(ctx context.Context, userID int64, limit int) (Subscription, bool, error)
}

// ClickCounter tracks global ticker popularity.
type ClickCounter interface {
	Increment(ctx context.Context, ticker string) error
	Top(ctx context.Context, limit int) ([]TrendingTicker, error)
}
