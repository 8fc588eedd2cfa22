package subscriptionrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/cashtags/internal/domain/subscription"
)

// PostgresRepository persists subscriptions in the user_subscriptions table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get fetches the subscription of a user.
func (r *PostgresRepository) Get(ctx context.Context, userID int64) (subscription.Subscription, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, subscription_status, ticker_click_count, updated_at
		FROM user_subscriptions
		WHERE user_id = $1
	`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return subscription.Subscription{}, false, nil
	}
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	return sub, true, nil
}

// Ensure inserts a FREE row when the user has none.
func (r *PostgresRepository) Ensure(ctx context.Context, userID int64) (subscription.Subscription, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO user_subscriptions (user_id, subscription_status, ticker_click_count)
		VALUES ($1, 'FREE', 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return subscription.Subscription{}, err
	}
	sub, _, err := r.Get(ctx, userID)
	return sub, err
}

// IncrementClick counts a click in a single conditional update.
func (r *PostgresRepository) IncrementClick(ctx context.Context, userID int64, limit int) (subscription.Subscription, bool, error) {
	if _, err := r.Ensure(ctx, userID); err != nil {
		return subscription.Subscription{}, false, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE user_subscriptions
		SET ticker_click_count = ticker_click_count + 1, updated_at = now()
		WHERE user_id = $1 AND (upper(trim(subscription_status)) = 'PREMIUM' OR ticker_click_count < $2)
		RETURNING user_id, subscription_status, ticker_click_count, updated_at
	`, userID, limit)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, _, getErr := r.Get(ctx, userID)
		return current, false, getErr
	}
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	return sub, true, nil
}

func scanSubscription(row pgx.Row) (subscription.Subscription, error) {
	var (
		sub     subscription.Subscription
		tier    string
		updated time.Time
	)
	if err := row.Scan(&sub.UserID, &tier, &sub.ClickCount, &updated); err != nil {
		return subscription.Subscription{}, err
	}
	sub.Tier = subscription.ParseTier(tier)
	sub.UpdatedAt = updated.UTC()
	return sub, nil
}

var _ subscription.Repository = (*PostgresRepository)(nil)
