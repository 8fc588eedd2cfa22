package summaryarchive

import (
	"context"
	"sync"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

// MemoryArchive keeps the latest summary per subject in process memory.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string]summarizer.Record
}

// NewMemoryArchive constructs an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string]summarizer.Record)}
}

func (a *MemoryArchive) Save(_ context.Context, rec summarizer.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[latestKey("", rec.Subject, rec.IsTopic)] = rec
	return nil
}

func (a *MemoryArchive) Latest(_ context.Context, subject string, isTopic bool) (summarizer.Record, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[latestKey("", subject, isTopic)]
	return rec, ok, nil
}

var _ summarizer.Archive = (*MemoryArchive)(nil)
