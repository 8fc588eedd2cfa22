package polygon

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

const defaultBaseURL = "https://api.polygon.io"

// Client fetches reference data and news from Polygon.io.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds an API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TickerDetails loads the company reference record.
func (c *Client) TickerDetails(ctx context.Context, ticker string) (market.TickerDetails, error) {
	var payload tickerResponse
	endpoint := fmt.Sprintf("%s/v3/reference/tickers/%s", c.baseURL, url.PathEscape(ticker))
	if err := c.get(ctx, endpoint, url.Values{}, &payload); err != nil {
		return market.TickerDetails{}, err
	}
	return market.TickerDetails{
		Name:        payload.Results.Name,
		Description: payload.Results.Description,
		MarketCap:   payload.Results.MarketCap,
	}, nil
}

// News loads the newest articles mentioning ticker.
func (c *Client) News(ctx context.Context, ticker string, limit int) ([]market.Article, error) {
	params := url.Values{}
	params.Set("ticker", strings.ToUpper(ticker))
	params.Set("order", "desc")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "published_utc")

	var payload newsResponse
	if err := c.get(ctx, c.baseURL+"/v2/reference/news", params, &payload); err != nil {
		return nil, err
	}
	articles := make([]market.Article, 0, len(payload.Results))
	for _, item := range payload.Results {
		published, _ := time.Parse(time.RFC3339, item.PublishedUTC)
		articles = append(articles, market.Article{
			Title:       item.Title,
			Publisher:   item.Publisher.Name,
			Description: item.Description,
			ArticleURL:  item.ArticleURL,
			PublishedAt: published,
		})
	}
	return articles, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return errors.New("polygon api key missing")
	}
	params.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build polygon request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polygon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return market.ErrTickerNotFound
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("polygon request error: status=%d body=%s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode polygon response: %w", err)
	}
	return nil
}

type tickerResponse struct {
	Results struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		MarketCap   float64 `json:"market_cap"`
	} `json:"results"`
}

type newsResponse struct {
	Results []newsItem `json:"results"`
}

type newsItem struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ArticleURL   string `json:"article_url"`
	PublishedUTC string `json:"published_utc"`
	Publisher    struct {
		Name string `json:"name"`
	} `json:"publisher"`
}

var _ market.ReferenceProvider = (*Client)(nil)
