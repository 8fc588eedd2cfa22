package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/market"
	"github.com/yanqian/cashtags/internal/domain/subscription"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/tape"
	"github.com/yanqian/cashtags/internal/domain/topics"
	"github.com/yanqian/cashtags/internal/infra/clickstats"
	"github.com/yanqian/cashtags/internal/infra/config"
	"github.com/yanqian/cashtags/internal/infra/llm/openai"
	"github.com/yanqian/cashtags/internal/infra/marketcache"
	"github.com/yanqian/cashtags/internal/infra/marketclock"
	"github.com/yanqian/cashtags/internal/infra/marketdata/alpaca"
	"github.com/yanqian/cashtags/internal/infra/marketdata/polygon"
	"github.com/yanqian/cashtags/internal/infra/sessionstore"
	"github.com/yanqian/cashtags/internal/infra/subscriptionrepo"
	"github.com/yanqian/cashtags/internal/infra/summaryarchive"
	"github.com/yanqian/cashtags/internal/infra/taperepo"
	"github.com/yanqian/cashtags/internal/infra/tokenizer"
	"github.com/yanqian/cashtags/internal/infra/topicrepo"
	"github.com/yanqian/cashtags/internal/infra/userrepo"
)

func provideSummaryConfig(cfg *config.Config) summarizer.Config {
	return summarizer.Config{
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TickerPrompt:   cfg.Summary.TickerPrompt,
		TopicPrompt:    cfg.Summary.TopicPrompt,
		MaxInputTokens: cfg.Summary.MaxInputTokens,
		MaxPosts:       cfg.Summary.MaxPosts,
	}
}

func provideChatClient(cfg *config.Config) (*openai.Client, error) {
	return openai.NewClient(openai.Options{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: cfg.LLM.MaxRetries,
		Timeout:    cfg.LLM.Timeout,
	})
}

func provideTokenCounter(cfg *config.Config, logger *slog.Logger) *tokenizer.Counter {
	return tokenizer.New(cfg.LLM.Model, cfg.Summary.Encoding, logger)
}

func provideSummaryArchive(cfg *config.Config, logger *slog.Logger) summarizer.Archive {
	if !cfg.Storage.Enabled() {
		logger.Info("r2 storage not configured, keeping summaries in memory")
		return summaryarchive.NewMemoryArchive()
	}
	archive, err := summaryarchive.NewR2Archive(
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKeyID,
		cfg.Storage.SecretAccessKey,
		cfg.Storage.Bucket,
		cfg.Storage.Region,
		cfg.Storage.Prefix,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize r2 archive, keeping summaries in memory", "error", err)
		return summaryarchive.NewMemoryArchive()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.EnsureBucket(ctx); err != nil {
		logger.Warn("r2 bucket check failed", "bucket", cfg.Storage.Bucket, "error", err)
	}
	logger.Info("r2 summary archive enabled", "bucket", cfg.Storage.Bucket)
	return archive
}

// providePostgresPool returns nil when no DSN is configured or the database is unreachable; the
// repository providers then fall back to memory.
func providePostgresPool(cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, func()) {
	noop := func() {}
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory repositories")
		return nil, noop
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repositories", "error", err)
		return nil, noop
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repositories", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repositories", "error", err)
		pool.Close()
		return nil, noop
	}
	logger.Info("postgres repositories enabled")
	return pool, pool.Close
}

// provideValkeyClient returns nil when the cache is disabled or unreachable.
func provideValkeyClient(cfg *config.Config, logger *slog.Logger) (valkey.Client, func()) {
	noop := func() {}
	if !cfg.Cache.Enabled {
		return nil, noop
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory", "error", err)
		return nil, noop
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory", "error", err)
		client.Close()
		return nil, noop
	}
	logger.Info("valkey cache enabled", "addr", cfg.Cache.Addr)
	return client, client.Close
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	if strings.Contains(cfg.Cache.Addr, "://") {
		return valkey.ParseURL(cfg.Cache.Addr)
	}
	return valkey.ClientOption{InitAddress: []string{cfg.Cache.Addr}}, nil
}

func provideAuthConfig(cfg *config.Config, logger *slog.Logger) auth.Config {
	secret := cfg.Auth.Secret
	if strings.TrimSpace(secret) == "" {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		secret = hex.EncodeToString(buf)
		logger.Warn("auth secret not set, generated an ephemeral one; tokens will not survive restarts")
	}
	return auth.Config{
		Secret:          secret,
		Issuer:          cfg.Auth.Issuer,
		TokenTTL:        cfg.Auth.TokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		Google: auth.GoogleConfig{
			ClientID:             cfg.Auth.Google.ClientID,
			ClientSecret:         cfg.Auth.Google.ClientSecret,
			RedirectURL:          cfg.Auth.Google.RedirectURL,
			PostLoginRedirectURL: cfg.Auth.Google.PostLoginRedirectURL,
		},
	}
}

func provideUserRepository(pool *pgxpool.Pool) auth.Repository {
	if pool == nil {
		return userrepo.NewMemoryRepository()
	}
	return userrepo.NewPostgresRepository(pool)
}

// provideTierResolver gives every account a FREE subscription row on sign in and stamps its tier
// into the issued tokens.
func provideTierResolver(subs subscription.Service) auth.TierResolver {
	return func(ctx context.Context, userID int64) (string, error) {
		tier, err := subs.Ensure(ctx, userID)
		return string(tier), err
	}
}

func provideSessionStore(cfg *config.Config, client valkey.Client) auth.SessionStore {
	if client == nil {
		return sessionstore.NewMemoryStore()
	}
	return sessionstore.NewValkeyStore(client, cfg.Cache.Prefix)
}

func provideSubscriptionConfig(cfg *config.Config) subscription.Config {
	return subscription.Config{
		FreeClickLimit:           cfg.Subscription.FreeClickLimit,
		FreeRequestsPerMinute:    cfg.Subscription.FreeRequestsPerMinute,
		PremiumRequestsPerMinute: cfg.Subscription.PremiumRequestsPerMinute,
	}
}

func provideSubscriptionRepository(pool *pgxpool.Pool) subscription.Repository {
	if pool == nil {
		return subscriptionrepo.NewMemoryRepository()
	}
	return subscriptionrepo.NewPostgresRepository(pool)
}

func provideClickCounter(cfg *config.Config, client valkey.Client) subscription.ClickCounter {
	if client == nil {
		return clickstats.NewMemoryCounter()
	}
	return clickstats.NewValkeyCounter(client, cfg.Cache.Prefix)
}

func provideMarketConfig(cfg *config.Config) market.Config {
	return market.Config{
		Workers:     cfg.Market.Workers,
		OverviewTTL: cfg.Market.CacheTTL.Overview,
		SeriesTTL:   cfg.Market.CacheTTL.Series,
		BarsTTL:     cfg.Market.CacheTTL.Bars,
		NewsTTL:     cfg.Market.CacheTTL.News,
	}
}

func providePolygonClient(cfg *config.Config) *polygon.Client {
	return polygon.NewClient(cfg.Market.Polygon.BaseURL, cfg.Market.Polygon.APIKey, cfg.Market.Timeout)
}

func provideAlpacaClient(cfg *config.Config) *alpaca.Client {
	a := cfg.Market.Alpaca
	return alpaca.NewClient(a.BaseURL, a.KeyID, a.SecretKey, a.Feed, cfg.Market.Timeout)
}

func provideMarketCache(cfg *config.Config, client valkey.Client) market.Cache {
	if client == nil {
		return marketcache.NewMemoryCache()
	}
	return marketcache.NewValkeyCache(client, cfg.Cache.Prefix)
}

func provideTopicRepository(pool *pgxpool.Pool) topics.Repository {
	if pool == nil {
		return topicrepo.NewMemoryRepository()
	}
	return topicrepo.NewPostgresRepository(pool)
}

func provideTapeConfig(cfg *config.Config) tape.Config {
	return tape.Config{
		RealtimeInterval: cfg.Tape.RealtimeInterval,
		PolledInterval:   cfg.Tape.PolledInterval,
	}
}

func provideTapeRepository(pool *pgxpool.Pool) tape.Repository {
	if pool == nil {
		return taperepo.NewMemoryRepository()
	}
	return taperepo.NewPostgresRepository(pool)
}

func provideMarketClock(cfg *config.Config, logger *slog.Logger) *marketclock.Clock {
	return marketclock.New(cfg.Tape.Calendar, logger)
}
