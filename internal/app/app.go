// Package app wires the shopindex server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/shopindex/internal/config"
	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/event"
	handler "github.com/utafrali/shopindex/internal/handler/http"
	"github.com/utafrali/shopindex/internal/notifier"
	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/internal/synchronizer"
	pkgkafka "github.com/utafrali/shopindex/pkg/kafka"
	"github.com/utafrali/shopindex/pkg/tracing"
)

// Version is reported in traces.
var Version = "0.1.0"

// App wires together all dependencies and runs the shopindex server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	core           *Core
	syncer         *synchronizer.Synchronizer
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	// Initialize OpenTelemetry tracing.
	tcfg := cfg.Tracing
	tcfg.ServiceVersion = Version
	if a.tracerShutdown, err = tracing.InitTracer(ctx, tcfg); err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if a.core, err = NewCore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	// The synchronizer consumes change events, either straight from the
	// notifier or from the Kafka topic the notifier publishes to.
	syncCfg := synchronizer.DefaultConfig()
	syncCfg.Workers = cfg.SyncWorkers
	syncCfg.QueueSize = cfg.SyncQueueSize
	syncCfg.MaxAttempts = cfg.SyncMaxRetries
	syncCfg.EventTimeout = cfg.SyncApplyTimeout

	var sink notifier.Sink
	switch cfg.ChangeTransport {
	case config.TransportKafka:
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.syncer = synchronizer.New(a.core.Builder, a.core.Index, syncCfg, logger,
			synchronizer.WithDropHandler(event.DropHandler(a.dlq, cfg.KafkaGroupID, logger)))
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.ChangesTopic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, event.Handler(a.syncer, logger), a.dlq, logger)
		sink = event.NewSink(a.producer)

		a.core.Health.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka change transport initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", event.ChangesTopic),
		)
	default:
		// Publish runs on request goroutines here, so a full queue must not stall them.
		syncCfg.PublishTimeout = cfg.SyncPublishTimeout
		a.syncer = synchronizer.New(a.core.Builder, a.core.Index, syncCfg, logger,
			synchronizer.WithDropHandler(func(ctx context.Context, ev domain.ChangeEvent, err error) {
				logger.ErrorContext(ctx, "index update dropped, run a mass reindex to recover",
					slog.String("entity", ev.Key()),
					slog.String("error", err.Error()),
				)
			}))
		sink = a.syncer
		logger.Info("in-process change transport initialized",
			slog.Duration("publish_timeout", syncCfg.PublishTimeout))
	}

	records := service.NewRecords(a.core.Store, notifier.New(a.core.Store, sink, logger), logger)

	router := handler.NewRouter(handler.Services{
		Records:   records,
		Search:    a.core.Search,
		Reindexer: a.core.Reindexer,
		Health:    a.core.Health,
	}, handler.RouterConfig{
		ServiceName:       config.ServiceName,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run starts the synchronizer, the change consumer and the HTTP server,
// blocking until the context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Workers outlive ctx so Shutdown can drain queued events.
	a.syncer.Start(context.WithoutCancel(ctx))

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Writes already accepted are
// drained into the index before the backends are closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	closeAll := []struct {
		name string
		fn   func() error
	}{
		{"kafka consumer", closer(a.consumer != nil, func() error { return a.consumer.Close() })},
		{"kafka producer", closer(a.producer != nil, func() error { return a.producer.Close() })},
		{"synchronizer", closer(a.syncer != nil, func() error { return a.syncer.Close() })},
		{"dead-letter producer", closer(a.dlq != nil, func() error { return a.dlq.Close() })},
		{"backends", closer(a.core != nil, func() error { return a.core.Close(ctx) })},
		{"tracer", closer(a.tracerShutdown != nil, func() error { return a.tracerShutdown(ctx) })},
	}
	for _, c := range closeAll {
		if err := c.fn(); err != nil {
			a.logger.Error("close error", slog.String("component", c.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func closer(ok bool, fn func() error) func() error {
	if !ok {
		return func() error { return nil }
	}
	return fn
}
