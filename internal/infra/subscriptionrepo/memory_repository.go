package subscriptionrepo

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/subscription"
)

// MemoryRepository keeps subscriptions in memory for local runs and tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[int64]subscription.Subscription
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[int64]subscription.Subscription)}
}

func (r *MemoryRepository) Get(_ context.Context, userID int64) (subscription.Subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.rows[userID]
	return sub, ok, nil
}

func (r *MemoryRepository) Ensure(_ context.Context, userID int64) (subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(userID), nil
}

func (r *MemoryRepository) IncrementClick(_ context.Context, userID int64, limit int) (subscription.Subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.ensureLocked(userID)
	if subscription.ParseTier(string(sub.Tier)) != subscription.TierPremium && sub.ClickCount >= limit {
		return sub, false, nil
	}
	sub.ClickCount++
	sub.UpdatedAt = time.Now().UTC()
	r.rows[userID] = sub
	return sub, true, nil
}

// SetTier changes the tier of a user, creating the row when needed.
func (r *MemoryRepository) SetTier(userID int64, tier subscription.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.ensureLocked(userID)
	sub.Tier = tier
	sub.UpdatedAt = time.Now().UTC()
	r.rows[userID] = sub
}

func (r *MemoryRepository) ensureLocked(userID int64) subscription.Subscription {
	if sub, ok := r.rows[userID]; ok {
		return sub
	}
	sub := subscription.Subscription{UserID: userID, Tier: subscription.TierFree, UpdatedAt: time.Now().UTC()}
	r.rows[userID] = sub
	return sub
}

var _ subscription.Repository = (*MemoryRepository)(nil)
