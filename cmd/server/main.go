package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/hit-counter/internal/config"
	"github.com/iliyamo/hit-counter/internal/database"
	"github.com/iliyamo/hit-counter/internal/handler"
	"github.com/iliyamo/hit-counter/internal/logging"
	"github.com/iliyamo/hit-counter/internal/middleware"
	"github.com/iliyamo/hit-counter/internal/queue"
	"github.com/iliyamo/hit-counter/internal/repository"
	"github.com/iliyamo/hit-counter/internal/router"
	"github.com/iliyamo/hit-counter/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err) // the zap logger depends on config, so fall back to log here
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	connector, err := database.NewConnector(cfg.DB, logger)
	if err != nil {
		return err
	}
	defer connector.Close()
	if err := connector.Ping(ctx); err != nil {
		// Not fatal: every request reports its own connect failure.
		logger.Warn("database not reachable at startup", zap.Error(err))
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	publisher := service.NewPublisher(cfg.AMQPURL, logger)
	if publisher.Enabled() && cfg.ConsumerEnabled {
		go func() {
			if err := queue.StartHitConsumer(ctx, cfg.AMQPURL, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("hits consumer stopped", zap.Error(err))
			}
		}()
	}

	hits := handler.NewHitsHandler(connector, repository.NewCounterRepo(logger), publisher, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = handler.NewRenderer()
	e.Use(echomw.Recover(), middleware.RequestLogger(logger))

	router.RegisterRoutes(e)
	router.RegisterPages(e, hits, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterAPI(e, hits, middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger))

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db_driver", cfg.DB.Driver))

	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	if derr := hits.Drain(shutdownCtx); derr != nil {
		logger.Warn("hit events still publishing at exit", zap.Error(derr))
	}
	return err
}
