package tape

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

// Config sets the refresh cadence.
type Config struct {
	RealtimeInterval time.Duration
	PolledInterval   time.Duration
}

// Service loads the tape and pushes changes to subscribers.
type Service struct {
	cfg    Config
	repo   Repository
	clock  Clock
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	latest  []Item
	loaded  bool
	subs    map[int]chan []Item
	nextSub int
}

// NewService wires the tape domain. clock may be nil to always use the polled interval.
func NewService(cfg Config, repo Repository, clock Clock, logger *slog.Logger) *Service {
	if cfg.RealtimeInterval <= 0 {
		cfg.RealtimeInterval = 15 * time.Second
	}
	if cfg.PolledInterval <= 0 {
		cfg.PolledInterval = 5 * time.Minute
	}
	return &Service{
		cfg:    cfg,
		repo:   repo,
		clock:  clock,
		logger: logger.With("component", "tape.scheduler"),
		now:    time.Now,
		subs:   make(map[int]chan []Item),
	}
}

// Tape returns the most recent tape, loading it when the scheduler has not run yet.
func (s *Service) Tape(ctx context.Context) ([]Item, error) {
	s.mu.RLock()
	if s.loaded {
		items := s.latest
		s.mu.RUnlock()
		return items, nil
	}
	s.mu.RUnlock()
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.Latest(), nil
}

// Latest returns the cached tape without touching storage.
func (s *Service) Latest() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return []Item{}
	}
	return s.latest
}

// Refresh reloads the tape and broadcasts it when it changed. It reports whether it did.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	rows, err := s.repo.Rows(ctx)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorage, "failed to load ticker tape", err)
	}
	items := Flatten(rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && reflect.DeepEqual(s.latest, items) {
		return false, nil
	}
	s.latest = items
	s.loaded = true
	for id, ch := range s.subs {
		select {
		case ch <- items:
		default:
			s.logger.Warn("dropping slow tape subscriber", "subscriber", id)
			delete(s.subs, id)
			close(ch)
		}
	}
	return true, nil
}

// Subscribe registers for tape updates and returns the tape as of registration. Every later
// change is delivered on the channel, so the snapshot is never repeated there. The channel is
// closed when the subscriber is dropped or cancel is called.
func (s *Service) Subscribe() ([]Item, <-chan []Item, func()) {
	ch := make(chan []Item, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	current := s.latest
	s.mu.Unlock()
	if current == nil {
		current = []Item{}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing)
			}
		})
	}
	return current, ch, cancel
}

// Interval picks the refresh period for t.
func (s *Service) Interval(t time.Time) time.Duration {
	if s.clock != nil && s.clock.IsOpen(t) {
		return s.cfg.RealtimeInterval
	}
	return s.cfg.PolledInterval
}

// Run refreshes until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("tape scheduler started")
	for {
		if changed, err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("tape refresh failed", "error", err)
		} else if changed {
			s.logger.Debug("tape updated", "items", len(s.Latest()))
		}

		timer := time.NewTimer(s.Interval(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("tape scheduler stopped")
			return
		case <-timer.C:
		}
	}
	s.logger.Info("tape scheduler stopped")
}
