package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	LLM          LLMConfig          `yaml:"llm"`
	Summary      SummaryConfig      `yaml:"summary"`
	Auth         AuthConfig         `yaml:"auth"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Market       MarketConfig       `yaml:"market"`
	Tape         TapeConfig         `yaml:"tape"`
	Cache        CacheConfig        `yaml:"cache"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Storage      StorageConfig      `yaml:"storage"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	CORSOrigins  []string        `yaml:"corsOrigins"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
	Retry        RetryConfig     `yaml:"retry"`
}

// RateLimitConfig toggles the per-user tiered limiter. Rates live in SubscriptionConfig.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig contains OpenAI settings.
type LLMConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxRetries  int           `yaml:"maxRetries"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SummaryConfig defines prompts and input budget for the summarizer domain.
type SummaryConfig struct {
	TickerPrompt   string `yaml:"tickerPrompt"`
	TopicPrompt    string `yaml:"topicPrompt"`
	MaxInputTokens int    `yaml:"maxInputTokens"`
	MaxPosts       int    `yaml:"maxPosts"`
	Encoding       string `yaml:"encoding"`
}

// AuthConfig drives token issuance and Google sign-in.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	Issuer          string        `yaml:"issuer"`
	TokenTTL        time.Duration `yaml:"tokenTtl"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTtl"`
	Google          GoogleConfig  `yaml:"google"`
}

// GoogleConfig holds OAuth settings for Google sign-in.
type GoogleConfig struct {
	ClientID             string `yaml:"clientId"`
	ClientSecret         string `yaml:"clientSecret"`
	RedirectURL          string `yaml:"redirectUrl"`
	PostLoginRedirectURL string `yaml:"postLoginRedirectUrl"`
}

// SubscriptionConfig holds the tier quotas.
type SubscriptionConfig struct {
	FreeClickLimit           int `yaml:"freeClickLimit"`
	FreeRequestsPerMinute    int `yaml:"freeRequestsPerMinute"`
	PremiumRequestsPerMinute int `yaml:"premiumRequestsPerMinute"`
}

// MarketConfig configures the market data providers.
type MarketConfig struct {
	Polygon  PolygonConfig  `yaml:"polygon"`
	Alpaca   AlpacaConfig   `yaml:"alpaca"`
	Timeout  time.Duration  `yaml:"timeout"`
	Workers  int            `yaml:"workers"`
	CacheTTL MarketCacheTTL `yaml:"cacheTtl"`
}

// PolygonConfig points at the Polygon.io REST API.
type PolygonConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

// AlpacaConfig points at the Alpaca market data API.
type AlpacaConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	KeyID     string `yaml:"keyId"`
	SecretKey string `yaml:"secretKey"`
	Feed      string `yaml:"feed"`
}

// MarketCacheTTL sets read-through cache lifetimes per data kind.
type MarketCacheTTL struct {
	Overview time.Duration `yaml:"overview"`
	Series   time.Duration `yaml:"series"`
	Bars     time.Duration `yaml:"bars"`
	News     time.Duration `yaml:"news"`
}

// TapeConfig controls the ticker tape refresh schedule.
type TapeConfig struct {
	RealtimeInterval time.Duration `yaml:"realtimeInterval"`
	PolledInterval   time.Duration `yaml:"polledInterval"`
	Calendar         string        `yaml:"calendar"`
}

// CacheConfig contains connection information for the Valkey cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// StorageConfig configures the R2 summary archive.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
}

// Enabled reports whether enough settings are present to talk to R2.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Endpoint) != "" && strings.TrimSpace(s.Bucket) != "" && strings.TrimSpace(s.AccessKeyID) != ""
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	if v := os.Getenv("PORT"); v != "" && os.Getenv("HTTP_ADDRESS") == "" {
		cfg.HTTP.Address = ":" + v
	}
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setBool(&cfg.HTTP.Retry.Enabled, "HTTP_RETRY_ENABLED")
	setInt(&cfg.HTTP.Retry.MaxAttempts, "HTTP_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.HTTP.Retry.BaseBackoff, "HTTP_RETRY_BASE_BACKOFF")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = parsed
		}
	}

	setString(&cfg.Summary.TickerPrompt, "SUMMARY_TICKER_PROMPT")
	setString(&cfg.Summary.TopicPrompt, "SUMMARY_TOPIC_PROMPT")
	setInt(&cfg.Summary.MaxInputTokens, "SUMMARY_MAX_INPUT_TOKENS")

	setString(&cfg.Auth.Secret, "AUTH_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "AUTH_TOKEN_TTL")
	setDuration(&cfg.Auth.RefreshTokenTTL, "AUTH_REFRESH_TOKEN_TTL")
	setString(&cfg.Auth.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Auth.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&cfg.Auth.Google.PostLoginRedirectURL, "GOOGLE_POST_LOGIN_REDIRECT_URL")

	setInt(&cfg.Subscription.FreeClickLimit, "SUBSCRIPTION_FREE_CLICK_LIMIT")
	setInt(&cfg.Subscription.FreeRequestsPerMinute, "SUBSCRIPTION_FREE_RPM")
	setInt(&cfg.Subscription.PremiumRequestsPerMinute, "SUBSCRIPTION_PREMIUM_RPM")

	setString(&cfg.Market.Polygon.APIKey, "POLYGON_API_KEY")
	setString(&cfg.Market.Polygon.BaseURL, "POLYGON_BASE_URL")
	setString(&cfg.Market.Alpaca.KeyID, "ALPACA_KEY_ID")
	setString(&cfg.Market.Alpaca.SecretKey, "ALPACA_SECRET_KEY")
	setString(&cfg.Market.Alpaca.BaseURL, "ALPACA_BASE_URL")
	setInt(&cfg.Market.Workers, "MARKET_WORKERS")

	setDuration(&cfg.Tape.RealtimeInterval, "TAPE_REALTIME_INTERVAL")
	setDuration(&cfg.Tape.PolledInterval, "TAPE_POLLED_INTERVAL")

	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	setBool(&cfg.Cache.Enabled, "VALKEY_ENABLED")

	setString(&cfg.Postgres.DSN, "POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}

	setString(&cfg.Storage.Endpoint, "R2_ENDPOINT")
	setString(&cfg.Storage.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&cfg.Storage.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setString(&cfg.Storage.Bucket, "R2_BUCKET")
	setString(&cfg.Storage.Region, "R2_REGION")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:     ":8080",
			ReadTimeout: 10 * time.Second,
			// Summary streams stay open for as long as the model writes.
			WriteTimeout: 2 * time.Minute,
			RateLimit:    RateLimitConfig{Enabled: true},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/summary",
					"/api/ticker-click",
				},
			},
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1/",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxRetries:  1,
			Timeout:     90 * time.Second,
		},
		Summary: SummaryConfig{
			TickerPrompt:   "You are a financial analyst summarizing social media chatter about the stock ticker ${subject}. Using only the posts provided, write a short summary of what people are saying: the main themes, notable news, and overall sentiment. Use short paragraphs and bold the key points. Do not give investment advice.",
			TopicPrompt:    "You are a financial analyst summarizing social media chatter about the market topic \"{subject}\". Using only the posts provided, write a short summary of the main themes, the tickers mentioned most, and overall sentiment. Use short paragraphs and bold the key points. Do not give investment advice.",
			MaxInputTokens: 12000,
			MaxPosts:       200,
			Encoding:       "cl100k_base",
		},
		Auth: AuthConfig{
			Issuer:          "cashtags",
			TokenTTL:        time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
		},
		Subscription: SubscriptionConfig{
			FreeClickLimit:           10,
			FreeRequestsPerMinute:    10,
			PremiumRequestsPerMinute: 50,
		},
		Market: MarketConfig{
			Polygon: PolygonConfig{BaseURL: "https://api.polygon.io"},
			Alpaca:  AlpacaConfig{BaseURL: "https://data.alpaca.markets", Feed: "iex"},
			Timeout: 10 * time.Second,
			Workers: 16,
			CacheTTL: MarketCacheTTL{
				Overview: 24 * time.Hour,
				Series:   5 * time.Minute,
				Bars:     time.Minute,
				News:     10 * time.Minute,
			},
		},
		Tape: TapeConfig{
			RealtimeInterval: 15 * time.Second,
			PolledInterval:   5 * time.Minute,
			Calendar:         "xnys",
		},
		Cache: CacheConfig{Prefix: "cashtags"},
		Postgres: PostgresConfig{
			MaxConns: 8,
		},
		Storage: StorageConfig{
			Region: "auto",
			Prefix: "summaries",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if !strings.Contains(c.Summary.TickerPrompt, "{subject}") {
		return errors.New("summary.tickerPrompt must contain {subject}")
	}
	if !strings.Contains(c.Summary.TopicPrompt, "{subject}") {
		return errors.New("summary.topicPrompt must contain {subject}")
	}
	if c.Summary.MaxInputTokens <= 0 {
		return errors.New("summary.maxInputTokens must be positive")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("auth token ttls must be positive")
	}
	if c.Subscription.FreeClickLimit <= 0 {
		return errors.New("subscription.freeClickLimit must be positive")
	}
	if c.Subscription.FreeRequestsPerMinute <= 0 || c.Subscription.PremiumRequestsPerMinute <= 0 {
		return errors.New("subscription request limits must be positive")
	}
	if c.Market.Workers <= 0 {
		return errors.New("market.workers must be positive")
	}
	if c.Tape.RealtimeInterval <= 0 || c.Tape.PolledInterval <= 0 {
		return errors.New("tape intervals must be positive")
	}
	if c.Tape.RealtimeInterval > c.Tape.PolledInterval {
		return errors.New("tape.realtimeInterval cannot exceed tape.polledInterval")
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Addr) == "" {
		return errors.New("cache.addr cannot be empty when the valkey cache is enabled")
	}
	return nil
}
