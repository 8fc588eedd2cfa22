package market

import (
	"context"
	"errors"
	"time"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

// ErrTickerNotFound is returned by providers for unknown symbols.
var ErrTickerNotFound = errors.New("ticker not found")

// Config tunes caching and fan-out.
type Config struct {
	Workers     int
	OverviewTTL time.Duration
	SeriesTTL   time.Duration
	BarsTTL     time.Duration
	NewsTTL     time.Duration
}

// Overview is the company header shown next to the chart.
type Overview struct {
	StockName   string `json:"stockName"`
	Description string `json:"description"`
	MarketCap   string `json:"marketCap"`
}

// Series holds a week of hourly closes and volumes.
type Series struct {
	Ticker     string      `json:"ticker"`
	LineData   []float64   `json:"lineData"`
	BarData    []float64   `json:"barData"`
	Timestamps []time.Time `json:"timestamps"`
}

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Snapshot bundles everything the dashboard needs for one ticker.
type Snapshot struct {
	Ticker   string            `json:"ticker"`
	Overview Overview          `json:"overview"`
	Series   Series            `json:"series"`
	News     []summarizer.Post `json:"news"`
}

// TickerDetails is the reference data of a listed company.
type TickerDetails struct {
	Name        string
	Description string
	MarketCap   float64
}

// Article is a news headline about a ticker.
type Article struct {
	Title       string
	Publisher   string
	Description string
	ArticleURL  string
	PublishedAt time.Time
}

// BarsQuery selects candles from the bars provider.
type BarsQuery struct {
	Timeframe string
	Limit     int
	Start     time.Time
	End       time.Time
}

// ReferenceProvider serves company details and news.
type ReferenceProvider interface {
	TickerDetails(ctx context.Context, ticker string) (TickerDetails, error)
	News(ctx context.Context, ticker string, limit int) ([]Article, error)
}

// BarsProvider serves price candles.
type BarsProvider interface {
	Bars(ctx context.Context, ticker string, q BarsQuery) ([]Bar, error)
}

// Cache stores encoded responses with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
