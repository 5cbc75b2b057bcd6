package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BazaarPull/internal/handler/api"
	"BazaarPull/internal/service/ratelimit"
	"BazaarPull/internal/usecase"
	pkgcache "BazaarPull/pkg/cache"
	pkgch "BazaarPull/pkg/clickhouse"
	"BazaarPull/pkg/config"
	xhttp "BazaarPull/pkg/http"
	pkgkafka "BazaarPull/pkg/kafka"
	applogger "BazaarPull/pkg/logger"
	pkgpg "BazaarPull/pkg/postgres"
	"BazaarPull/pkg/queue"
	"BazaarPull/pkg/scheduler"
)

// limiter buckets idle this long are dropped
const limiterIdle = 10 * time.Minute

// Components are the long-lived parts the App starts and stops.
// Consumer, Queue, ClickHouse and Postgres are nil when not configured.
type Components struct {
	Collector *usecase.SnapshotCollector
	Processor *usecase.SnapshotProcessor
	Consumer  *pkgkafka.Consumer
	Runners   []*scheduler.Runner
	Queue     *queue.RedisQueue
	Handler   xhttp.Handler
	Hub       *api.StreamHub
	Limiter   *ratelimit.Limiter

	ClickHouse *pkgch.Client
	Postgres   *pkgpg.Pool
	Cache      pkgcache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l, c: c}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer stop()
		_ = a.shutdown(shutdownCtx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	return a.shutdown(shutdownCtx)
}

func (a *App) start(ctx context.Context) error {
	if err := a.c.Collector.Start(ctx); err != nil {
		return fmt.Errorf("start collector: %w", err)
	}
	a.log.Info("collector started",
		applogger.String("url", a.cfg.Bazaar.URL),
		applogger.String("backend", a.cfg.Backend.Type))

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topic))
	}

	for _, r := range a.c.Runners {
		r.Start(ctx)
	}

	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
	}

	if a.c.Limiter != nil {
		go a.sweepLimiter(ctx)
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.c.Handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
		xhttp.WithHealthCheck(a.health),
	)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.log.Info("app started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("kafka_consumer", a.c.Consumer != nil),
		applogger.Bool("job_queue", a.c.Queue != nil),
		applogger.Bool("postgres", a.c.Postgres != nil),
		applogger.Int("runners", len(a.c.Runners)))
	return nil
}

func (a *App) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.c.Limiter.Sweep(limiterIdle); n > 0 {
				a.log.Debug("rate limiter swept", applogger.Int("buckets", n))
			}
		}
	}
}

// health reports the first unreachable backing store.
func (a *App) health(ctx context.Context) error {
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Health(ctx); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
	}
	if a.c.Postgres != nil {
		if err := a.c.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// shutdown stops components in reverse start order. Errors are logged and joined.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var errs []error
	warn := func(what string, err error) {
		if err != nil {
			a.log.Warn(what+" stop error", applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if a.httpServer != nil {
		warn("http server", a.httpServer.Stop(ctx))
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Queue != nil {
		warn("job queue", a.c.Queue.Stop(ctx))
	}
	for i := len(a.c.Runners) - 1; i >= 0; i-- {
		warn("scheduler "+a.c.Runners[i].Name(), a.c.Runners[i].Stop(ctx))
	}
	if a.c.Consumer != nil {
		warn("kafka consumer", a.c.Consumer.Stop(ctx))
	}
	warn("collector", a.c.Collector.Shutdown(ctx))
	// flushes pending error logs while redis is still open
	a.log.RemoveCollector()

	// closes the kafka producer behind the publisher
	if a.c.Processor != nil {
		a.c.Processor.Close()
	}
	if a.c.ClickHouse != nil {
		warn("clickhouse", a.c.ClickHouse.Close())
	}
	if a.c.Postgres != nil {
		a.c.Postgres.Close()
	}
	if a.c.Cache != nil {
		warn("cache", a.c.Cache.Close())
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
