package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"OracleFeed/internal/cache"
	"OracleFeed/internal/orchestrator"
	"OracleFeed/internal/usecase"
	pkgch "OracleFeed/pkg/clickhouse"
	"OracleFeed/pkg/config"
	xhttp "OracleFeed/pkg/http"
	pkgkafka "OracleFeed/pkg/kafka"
	applogger "OracleFeed/pkg/logger"
	"OracleFeed/pkg/queue"
)

// App encapsulates the entire application lifecycle: orchestrator sweep,
// exchange collectors, optional Kafka consumer and the HTTP API.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	orch        *orchestrator.Orchestrator
	cache       *cache.RealTime
	collector   *usecase.UpdateCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	archiver    *queue.RedisQueue
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	orch *orchestrator.Orchestrator,
	c *cache.RealTime,
	collector *usecase.UpdateCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	archiver *queue.RedisQueue,
) *App {
	return &App{
		cfg:       cfg,
		logger:    lgr,
		orch:      orch,
		cache:     c,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		archiver:  archiver,
	}
}

// SetHTTPHandler allows DI to inject the HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	a.registerHealth()

	// history sink schema before anything writes to it
	if a.chClient != nil {
		if err := a.chClient.Health(ctx); err != nil {
			l.Warn("clickhouse unavailable, history export degraded", applogger.Error(err))
		}
	}

	a.orch.Start(ctx)
	l.Info("orchestrator started", applogger.Int("feeds", len(a.orch.Feeds())))

	if a.archiver != nil {
		if err := a.archiver.Start(); err != nil {
			l.Warn("history archiver unavailable", applogger.Error(err))
		} else {
			l.Info("history archiver started")
		}
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("collector started")
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, l)
}

// registerHealth exposes liveness and readiness probes on the API server.
func (a *App) registerHealth() {
	e := a.httpServer.Echo()
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		ready := a.collector == nil || a.collector.IsConnected()
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "connecting"
		}
		return c.JSON(status, map[string]string{"status": state})
	})
}

// shutdown gracefully stops all services in reverse start order.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.archiver != nil {
		if err := a.archiver.Stop(shutdownCtx); err != nil {
			l.Warn("history archiver stop error", applogger.Error(err))
		}
	}

	a.orch.Close()
	a.cache.Close()

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	l.RemoveCollector()
	return nil
}
