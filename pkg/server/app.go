package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "TradeSim/internal/middleware"
	"TradeSim/internal/service/stream"
	"TradeSim/internal/usecase"
	pkgch "TradeSim/pkg/clickhouse"
	"TradeSim/pkg/config"
	xhttp "TradeSim/pkg/http"
	pkgkafka "TradeSim/pkg/kafka"
	applogger "TradeSim/pkg/logger"
	"TradeSim/pkg/queue"
)

// Closer is implemented by infrastructure clients that need teardown.
type Closer interface {
	Close() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	dashboard *usecase.Dashboard
	pipeline  *mid.TradePipeline
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	hub       *stream.Hub
	chClient  *pkgch.Client

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	logQueue    *queue.RedisQueue
	closers     []Closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	dashboard *usecase.Dashboard,
	pipeline *mid.TradePipeline,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	hub *stream.Hub,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		dashboard: dashboard,
		pipeline:  pipeline,
		consumer:  consumer,
		kh:        kh,
		hub:       hub,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetLogQueue enables aggregated error log shipping through Redis.
func (a *App) SetLogQueue(q *queue.RedisQueue) { a.logQueue = q }

// AddCloser registers an infrastructure client closed on shutdown.
func (a *App) AddCloser(c Closer) { a.closers = append(a.closers, c) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	if a.logQueue != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "error_logs",
			Publisher:      a.logQueue,
		})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start the trade-event pipeline before anything can publish into it.
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	// Select the configured challenge so the dashboard has a portfolio
	// before the first client connects.
	if id := a.startupChallengeID(ctx); id != "" {
		if err := a.dashboard.SelectChallenge(ctx, id); err != nil {
			l.Warn("startup challenge selection failed",
				applogger.String("challenge_id", id),
				applogger.Error(err))
		}
	}

	// Start price polling
	a.dashboard.Start(ctx)
	l.Info("dashboard started",
		applogger.String("market", a.cfg.MarketData.Market),
		applogger.Strings("symbols", a.cfg.MarketData.Symbols))

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// startupChallengeID resolves the challenge to load at boot: an explicit id
// wins, otherwise the user's active challenge.
func (a *App) startupChallengeID(ctx context.Context) string {
	if a.cfg.Challenge.ID != "" {
		return a.cfg.Challenge.ID
	}
	if a.cfg.Challenge.UserID == "" {
		return ""
	}
	ch, err := a.dashboard.ActiveChallengeFor(ctx, a.cfg.Challenge.UserID)
	if err != nil {
		a.logger.Warn("active challenge lookup failed",
			applogger.String("user_id", a.cfg.Challenge.UserID),
			applogger.Error(err))
		return ""
	}
	return ch.ID
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.logger
	l.Info("shutting down...")

	if a.hub != nil {
		a.hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if a.logQueue != nil {
		if err := a.logQueue.Stop(ctx); err != nil {
			l.Warn("log queue stop error", applogger.Error(err))
		}
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			l.Warn("close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
