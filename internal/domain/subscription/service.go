package subscription

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const defaultTrendingLimit = 10

// Service exposes quota and subscription operations.
type Service interface {
	// Ensure creates a FREE row when the user has none and returns the user's tier.
	Ensure(ctx context.Context, userID int64) (Tier, error)
	Status(ctx context.Context, userID int64) (Status, error)
	RecordClick(ctx context.Context, userID int64, ticker string) (ClickResult, error)
	RateLimit(tier Tier) int
	Trending(ctx context.Context, limit int) ([]TrendingTicker, error)
}

type service struct {
	cfg    Config
	repo   Repository
	clicks ClickCounter
	logger *slog.Logger
}

// NewService wires the subscription domain. clicks may be nil.
func NewService(cfg Config, repo Repository, clicks ClickCounter, logger *slog.Logger) Service {
	if cfg.FreeClickLimit <= 0 {
		cfg.FreeClickLimit = 10
	}
	if cfg.FreeRequestsPerMinute <= 0 {
		cfg.FreeRequestsPerMinute = 10
	}
	if cfg.PremiumRequestsPerMinute <= 0 {
		cfg.PremiumRequestsPerMinute = 50
	}
	return &service{
		cfg:    cfg,
		repo:   repo,
		clicks: clicks,
		logger: logger.With("component", "subscription.service"),
	}
}

func (s *service) Ensure(ctx context.Context, userID int64) (Tier, error) {
	if userID <= 0 {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "user id is required", nil)
	}
	sub, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeSubscription, "failed to initialize subscription", err)
	}
	return ParseTier(string(sub.Tier)), nil
}

func (s *service) Status(ctx context.Context, userID int64) (Status, error) {
	sub, ok, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Status{}, apperrors.Wrap(apperrors.CodeSubscription, "failed to load subscription", err)
	}
	if !ok {
		sub = Subscription{UserID: userID, Tier: TierFree}
	}
	tier := ParseTier(string(sub.Tier))
	return Status{
		Status:            tier,
		ClickCount:        sub.ClickCount,
		ClicksLeft:        s.remaining(tier, sub.ClickCount),
		RequestsPerMinute: s.RateLimit(tier),
	}, nil
}

func (s *service) RecordClick(ctx context.Context, userID int64, ticker string) (ClickResult, error) {
	ticker = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ticker), "$"))
	if ticker == "" {
		return ClickResult{}, apperrors.Wrap(apperrors.CodeInvalidInput, "ticker is required", nil)
	}
	sub, counted, err := s.repo.IncrementClick(ctx, userID, s.cfg.FreeClickLimit)
	if err != nil {
		return ClickResult{}, apperrors.Wrap(apperrors.CodeSubscription, "failed to record click", err)
	}
	if !counted {
		return ClickResult{}, apperrors.Wrap(apperrors.CodeClickLimitReached, "Upgrade to PREMIUM for unlimited clicks", nil)
	}
	if s.clicks != nil {
		if err := s.clicks.Increment(ctx, ticker); err != nil {
			s.logger.Warn("failed to count ticker click", "ticker", ticker, "error", err)
		}
	}
	tier := ParseTier(string(sub.Tier))
	return ClickResult{
		Ticker:     ticker,
		ClickCount: sub.ClickCount,
		Remaining:  s.remaining(tier, sub.ClickCount),
	}, nil
}

func (s *service) RateLimit(tier Tier) int {
	if tier == TierPremium {
		return s.cfg.PremiumRequestsPerMinute
	}
	return s.cfg.FreeRequestsPerMinute
}

func (s *service) Trending(ctx context.Context, limit int) ([]TrendingTicker, error) {
	if s.clicks == nil {
		return []TrendingTicker{}, nil
	}
	if limit <= 0 {
		limit = defaultTrendingLimit
	}
	items, err := s.clicks.Top(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSubscription, "failed to load trending tickers", err)
	}
	if items == nil {
		items = []TrendingTicker{}
	}
	return items, nil
}

func (s *service) remaining(tier Tier, clicks int) int {
	if tier == TierPremium {
		return Unlimited
	}
	left := s.cfg.FreeClickLimit - clicks
	if left < 0 {
		return 0
	}
	return left
}

