package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const (
	seriesWindow   = 7 * 24 * time.Hour
	seriesLimit    = 168
	intradayLimit  = 100
	newsLimit      = 10
	defaultWorkers = 16
)

// Service exposes ticker market data.
type Service interface {
	Overview(ctx context.Context, ticker string) (Overview, error)
	Series(ctx context.Context, ticker string) (Series, error)
	Bars(ctx context.Context, ticker string) ([]Bar, error)
	News(ctx context.Context, ticker string) ([]summarizer.Post, error)
	Snapshot(ctx context.Context, ticker string) (Snapshot, error)
	Close()
}

type service struct {
	cfg       Config
	reference ReferenceProvider
	bars      BarsProvider
	cache     Cache
	pool      *ants.Pool
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the market domain. cache may be nil.
func NewService(cfg Config, reference ReferenceProvider, bars BarsProvider, cache Cache, logger *slog.Logger) (Service, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create market worker pool: %w", err)
	}
	return &service{
		cfg:       cfg,
		reference: reference,
		bars:      bars,
		cache:     cache,
		pool:      pool,
		logger:    logger.With("component", "market.service"),
		now:       time.Now,
	}, nil
}

func (s *service) Overview(ctx context.Context, ticker string) (Overview, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return Overview{}, err
	}
	return cached(ctx, s, "overview:"+ticker, s.cfg.OverviewTTL, func() (Overview, error) {
		details, err := s.reference.TickerDetails(ctx, ticker)
		if errors.Is(err, ErrTickerNotFound) {
			return Overview{
				StockName:   ticker,
				Description: "Ticker not found in Polygon.io database",
				MarketCap:   "N/A",
			}, nil
		}
		if err != nil {
			return Overview{}, apperrors.Wrap(apperrors.CodeMarketData, fmt.Sprintf("Failed to fetch data for %s", ticker), err)
		}
		overview := Overview{
			StockName:   details.Name,
			Description: details.Description,
			MarketCap:   FormatMarketCap(details.MarketCap),
		}
		if overview.StockName == "" {
			overview.StockName = "Unknown"
		}
		if overview.Description == "" {
			overview.Description = "No description available"
		}
		return overview, nil
	})
}

// Series never fails on provider errors; the chart renders empty instead.
func (s *service) Series(ctx context.Context, ticker string) (Series, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return Series{}, err
	}
	series, err := cached(ctx, s, "series:"+ticker, s.cfg.SeriesTTL, func() (Series, error) {
		end := s.now().UTC()
		bars, err := s.bars.Bars(ctx, ticker, BarsQuery{
			Timeframe: "1Hour",
			Limit:     seriesLimit,
			Start:     end.Add(-seriesWindow),
			End:       end,
		})
		if err != nil {
			return Series{}, err
		}
		return toSeries(ticker, bars), nil
	})
	if err != nil {
		s.logger.Warn("series fetch failed, returning empty series", "ticker", ticker, "error", err)
		return toSeries(ticker, nil), nil
	}
	return series, nil
}

func (s *service) Bars(ctx context.Context, ticker string) ([]Bar, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "bars:"+ticker, s.cfg.BarsTTL, func() ([]Bar, error) {
		bars, err := s.bars.Bars(ctx, ticker, BarsQuery{Timeframe: "1Min", Limit: intradayLimit})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMarketData, "Failed to fetch series data", err)
		}
		if bars == nil {
			bars = []Bar{}
		}
		return bars, nil
	})
}

func (s *service) News(ctx context.Context, ticker string) ([]summarizer.Post, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "news:"+ticker, s.cfg.NewsTTL, func() ([]summarizer.Post, error) {
		articles, err := s.reference.News(ctx, ticker, newsLimit)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMarketData, fmt.Sprintf("Failed to fetch news for %s", ticker), err)
		}
		now := s.now()
		posts := make([]summarizer.Post, 0, len(articles))
		for _, a := range articles {
			posts = append(posts, ArticleToPost(a, now))
		}
		return posts, nil
	})
}

func (s *service) Snapshot(ctx context.Context, ticker string) (Snapshot, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Ticker: ticker}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		first error
	)
	record := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if first == nil {
			first = err
		}
	}
	tasks := []func(){
		func() {
			overview, err := s.Overview(ctx, ticker)
			if err != nil {
				record(err)
				return
			}
			snap.Overview = overview
		},
		func() {
			series, _ := s.Series(ctx, ticker)
			snap.Series = series
		},
		func() {
			news, err := s.News(ctx, ticker)
			if err != nil {
				record(err)
				return
			}
			snap.News = news
		},
	}
	for _, task := range tasks {
		task := task
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			record(apperrors.Wrap(apperrors.CodeMarketData, "market worker pool unavailable", err))
		}
	}
	wg.Wait()
	if first != nil {
		return Snapshot{}, first
	}
	return snap, nil
}

// Close releases the worker pool.
func (s *service) Close() {
	s.pool.Release()
}

// cached serves key from the cache or computes and stores it. Cache failures only log.
func cached[T any](ctx context.Context, s *service, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if s.cache != nil {
		if payload, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("market cache read failed", "key", key, "error", err)
		} else if ok {
			var value T
			if err := json.Unmarshal(payload, &value); err == nil {
				return value, nil
			}
		}
	}
	value, err := fetch()
	if err != nil {
		return value, err
	}
	if s.cache != nil && ttl > 0 {
		if payload, err := json.Marshal(value); err == nil {
			if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
				s.logger.Warn("market cache write failed", "key", key, "error", err)
			}
		}
	}
	return value, nil
}

func toSeries(ticker string, bars []Bar) Series {
	series := Series{
		Ticker:     ticker,
		LineData:   make([]float64, 0, len(bars)),
		BarData:    make([]float64, 0, len(bars)),
		Timestamps: make([]time.Time, 0, len(bars)),
	}
	for _, bar := range bars {
		series.LineData = append(series.LineData, bar.Close)
		series.BarData = append(series.BarData, bar.Volume)
		series.Timestamps = append(series.Timestamps, bar.Time)
	}
	return series
}
