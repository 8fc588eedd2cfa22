package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/cashtags/internal/domain/market"
)

const defaultBaseURL = "https://data.alpaca.markets"

// Client fetches stock bars from the Alpaca market data API.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	feed       string
	httpClient *http.Client
}

// NewClient builds an API client. feed may be empty to use the account default.
func NewClient(baseURL, keyID, secretKey, feed string, timeout time.Duration) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		keyID:      strings.TrimSpace(keyID),
		secretKey:  strings.TrimSpace(secretKey),
		feed:       strings.TrimSpace(feed),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Bars loads raw (unadjusted) candles for ticker.
func (c *Client) Bars(ctx context.Context, ticker string, q market.BarsQuery) ([]market.Bar, error) {
	if c.keyID == "" || c.secretKey == "" {
		return nil, errors.New("alpaca api credentials are missing")
	}
	params := url.Values{}
	params.Set("timeframe", q.Timeframe)
	params.Set("adjustment", "raw")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.Start.IsZero() {
		params.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		params.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	if c.feed != "" {
		params.Set("feed", c.feed)
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build alpaca request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("alpaca request error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode alpaca response: %w", err)
	}
	bars := make([]market.Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		bars = append(bars, market.Bar{
			Time:   b.T,
			Open:   b.O,
			High:   b.H,
			Low:    b.L,
			Close:  b.C,
			Volume: b.V,
		})
	}
	return bars, nil
}

type barsResponse struct {
	Bars          []bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}

type bar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

var _ market.BarsProvider = (*Client)(nil)
