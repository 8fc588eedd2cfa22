//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/cashtags/internal/bootstrap"
	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/market"
	"github.com/yanqian/cashtags/internal/domain/subscription"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/tape"
	"github.com/yanqian/cashtags/internal/domain/topics"
	"github.com/yanqian/cashtags/internal/infra/config"
	"github.com/yanqian/cashtags/internal/infra/llm/openai"
	"github.com/yanqian/cashtags/internal/infra/marketclock"
	"github.com/yanqian/cashtags/internal/infra/marketdata/alpaca"
	"github.com/yanqian/cashtags/internal/infra/marketdata/polygon"
	"github.com/yanqian/cashtags/internal/infra/tokenizer"
	httpiface "github.com/yanqian/cashtags/internal/interface/http"
	"github.com/yanqian/cashtags/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		providePostgresPool,
		provideValkeyClient,
		provideSummaryConfig,
		provideChatClient,
		provideTokenCounter,
		provideSummaryArchive,
		provideAuthConfig,
		provideUserRepository,
		provideTierResolver,
		provideSessionStore,
		provideSubscriptionConfig,
		provideSubscriptionRepository,
		provideClickCounter,
		provideMarketConfig,
		providePolygonClient,
		provideAlpacaClient,
		provideMarketCache,
		provideTopicRepository,
		provideTapeConfig,
		provideTapeRepository,
		provideMarketClock,
		summarizer.NewService,
		auth.NewService,
		subscription.NewService,
		market.NewService,
		topics.NewService,
		tape.NewService,
		wire.Bind(new(summarizer.ChatClient), new(*openai.Client)),
		wire.Bind(new(summarizer.TokenCounter), new(*tokenizer.Counter)),
		wire.Bind(new(market.ReferenceProvider), new(*polygon.Client)),
		wire.Bind(new(market.BarsProvider), new(*alpaca.Client)),
		wire.Bind(new(tape.Clock), new(*marketclock.Clock)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
