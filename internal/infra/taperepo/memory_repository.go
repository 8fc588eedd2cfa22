package taperepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/tape"
)

// MemoryRepository keeps tape snapshots in memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   []tape.Row
	nextID int64
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

// Append stores a new snapshot and returns its row id.
func (r *MemoryRepository) Append(items []tape.Item, createdAt time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.rows = append(r.rows, tape.Row{ID: id, Items: items, CreatedAt: createdAt.UTC()})
	return id
}

func (r *MemoryRepository) Rows(_ context.Context) ([]tape.Row, error) {
	r.mu.RLock()
	out := append([]tape.Row(nil), r.rows...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > maxRows {
		out = out[:maxRows]
	}
	return out, nil
}

var _ tape.Repository = (*MemoryRepository)(nil)
