package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/market"
	"github.com/yanqian/cashtags/internal/domain/tape"
	"github.com/yanqian/cashtags/internal/infra/config"
)

const shutdownTimeout = 10 * time.Second

// App encapsulates the HTTP server and the background tape scheduler.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server
	tape   *tape.Service
	market market.Service
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, tapeSvc *tape.Service, marketSvc market.Service) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With("component", "bootstrap"),
		server: server,
		tape:   tapeSvc,
		market: marketSvc,
	}
}

// Run starts the HTTP server and the tape scheduler and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	schedCtx, stopScheduler := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.tape.Run(schedCtx)
	}()
	defer func() {
		stopScheduler()
		wg.Wait()
		a.market.Close()
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
