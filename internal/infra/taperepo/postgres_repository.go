package taperepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/cashtags/internal/domain/tape"
)

const maxRows = 50

// PostgresRepository reads tape snapshots from frontend_timeseries_data.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Rows returns the newest snapshots first. The data column holds a JSON array of items,
// stored either as jsonb or as an encoded string.
func (r *PostgresRepository) Rows(ctx context.Context) ([]tape.Row, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, data::text, created_at
		FROM frontend_timeseries_data
		ORDER BY created_at DESC
		LIMIT $1
	`, maxRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tape.Row
	for rows.Next() {
		var (
			row     tape.Row
			raw     string
			created time.Time
		)
		if err := rows.Scan(&row.ID, &raw, &created); err != nil {
			return nil, err
		}
		items, err := decodeItems([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode tape row %d: %w", row.ID, err)
		}
		row.Items = items
		row.CreatedAt = created.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func decodeItems(raw []byte) ([]tape.Item, error) {
	var items []tape.Item
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil, err
	}
	return items, nil
}

var _ tape.Repository = (*PostgresRepository)(nil)
