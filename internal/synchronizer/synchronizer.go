// Package synchronizer keeps the index store in step with the record store by
// applying change events one at a time per entity.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/tracing"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("synchronizer closed")
	// ErrQueueFull marks events dropped because their queue stayed full for PublishTimeout.
	ErrQueueFull = errors.New("synchronizer queue full")
)

// DocumentBuilder re-reads a record and builds its index document.
type DocumentBuilder interface {
	Build(ctx context.Context, ref domain.EntityRef) (*domain.Document, error)
}

// DropFunc is called for every event given up on.
type DropFunc func(ctx context.Context, ev domain.ChangeEvent, err error)

// Config controls worker count and retry behaviour. PublishTimeout bounds how
// long Publish waits on a full queue; zero waits until the caller's context ends.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	EventTimeout   time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      1024,
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		EventTimeout:   30 * time.Second,
	}
}

// Synchronizer applies change events to the index store. Events are sharded
// over workers by entity key, so events for the same record are applied in
// the order they were published.
type Synchronizer struct {
	builder DocumentBuilder
	index   engine.IndexStore
	cfg     Config
	logger  *slog.Logger
	onDrop  DropFunc

	queues []chan domain.ChangeEvent
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDropHandler registers fn to receive dropped events, e.g. for a dead letter queue.
func WithDropHandler(fn DropFunc) Option {
	return func(s *Synchronizer) { s.onDrop = fn }
}

// New creates a synchronizer. Call Start before publishing.
func New(builder DocumentBuilder, index engine.IndexStore, cfg Config, logger *slog.Logger, opts ...Option) *Synchronizer {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = def.EventTimeout
	}

	s := &Synchronizer{
		builder: builder,
		index:   index,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "synchronizer")),
		queues:  make([]chan domain.ChangeEvent, cfg.Workers),
	}
	for i := range s.queues {
		s.queues[i] = make(chan domain.ChangeEvent, cfg.QueueSize/cfg.Workers+1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the workers. They stop when ctx is cancelled or Close is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i, q := range s.queues {
		s.wg.Add(1)
		go s.work(ctx, i, q)
	}
	s.logger.Info("synchronizer started", slog.Int("workers", len(s.queues)))
}

// Close stops accepting events, drains the queues and waits for the workers.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	started := s.started
	s.mu.Unlock()

	if started {
		s.wg.Wait()
		s.cancel()
	}
	s.logger.Info("synchronizer stopped")
	return nil
}

// Publish queues events for their workers. While a queue is full it waits up
// to PublishTimeout, then drops the event and moves on; the returned error
// joins every ErrQueueFull drop.
func (s *Synchronizer) Publish(ctx context.Context, events ...domain.ChangeEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	var dropped []error
	for _, ev := range events {
		err := s.enqueue(ctx, ev)
		if errors.Is(err, ErrQueueFull) {
			queueFull.WithLabelValues(string(ev.Type)).Inc()
			s.drop(ctx, ev, err)
			dropped = append(dropped, err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return errors.Join(dropped...)
}

func (s *Synchronizer) enqueue(ctx context.Context, ev domain.ChangeEvent) error {
	q := s.queues[s.shard(ev)]
	select {
	case q <- ev:
		queueDepth.Inc()
		return nil
	default:
	}

	var expired <-chan time.Time
	if s.cfg.PublishTimeout > 0 {
		t := time.NewTimer(s.cfg.PublishTimeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case q <- ev:
		queueDepth.Inc()
		return nil
	case <-expired:
		return fmt.Errorf("publish %s: %w", ev.Key(), ErrQueueFull)
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", ev.Key(), ctx.Err())
	}
}

func (s *Synchronizer) shard(ev domain.ChangeEvent) int {
	return int(xxhash.Sum64String(ev.Key()) % uint64(len(s.queues)))
}

func (s *Synchronizer) work(ctx context.Context, id int, q <-chan domain.ChangeEvent) {
	defer s.wg.Done()
	for ev := range q {
		queueDepth.Dec()
		if ctx.Err() != nil {
			s.drop(ctx, ev, ctx.Err())
			continue
		}
		_ = s.Apply(ctx, ev)
	}
	s.logger.Debug("synchronizer worker exiting", slog.Int("worker", id))
}

// Apply processes one event synchronously: it retries retriable failures with
// exponential backoff and drops the event once attempts are exhausted. The
// returned error is the one the event was dropped with, or nil.
func (s *Synchronizer) Apply(ctx context.Context, ev domain.ChangeEvent) error {
	ctx, span := tracing.Tracer("synchronizer").Start(ctx, "synchronizer.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity.ref", ev.Key()),
		attribute.String("change.op", string(ev.Op)),
	)

	start := time.Now()
	if ev.Version > 0 {
		lag := start.Sub(time.Unix(0, ev.Version))
		eventLag.WithLabelValues(string(ev.Type)).Observe(lag.Seconds())
		span.SetAttributes(attribute.Int64("change.lag_ms", lag.Milliseconds()))
	}
	defer func() {
		applyDuration.WithLabelValues(string(ev.Type)).Observe(time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = s.cfg.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.applyOnce(ctx, ev)
		if err != nil && !domain.Retriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			retries.WithLabelValues(string(ev.Type)).Inc()
			s.logger.WarnContext(ctx, "index write failed, retrying",
				slog.String("entity", ev.Key()),
				slog.String("op", string(ev.Op)),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.drop(ctx, ev, err)
		return err
	}

	eventsProcessed.WithLabelValues(string(ev.Type), string(ev.Op), "applied").Inc()
	return nil
}

func (s *Synchronizer) applyOnce(ctx context.Context, ev domain.ChangeEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EventTimeout)
	defer cancel()

	ref := ev.Ref()
	if ev.Op == domain.OpDelete {
		return s.delete(ctx, ref)
	}

	doc, err := s.builder.Build(ctx, ref)
	if errors.Is(err, apperrors.ErrNotFound) {
		// The record is gone; whatever the event said, the index must follow.
		return s.delete(ctx, ref)
	}
	if err != nil {
		return err
	}
	if err := s.index.Index(ctx, *doc); err != nil {
		return fmt.Errorf("index %s: %w", ref, err)
	}
	s.logger.DebugContext(ctx, "document indexed", slog.String("entity", ref.String()))
	return nil
}

// delete stamps the removal with the current time. Events are published
// after the record write commits, so any document read earlier is older.
func (s *Synchronizer) delete(ctx context.Context, ref domain.EntityRef) error {
	if err := s.index.Delete(ctx, ref, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	s.logger.DebugContext(ctx, "document deleted", slog.String("entity", ref.String()))
	return nil
}

func (s *Synchronizer) drop(ctx context.Context, ev domain.ChangeEvent, err error) {
	eventsProcessed.WithLabelValues(string(ev.Type), string(ev.Op), "dropped").Inc()
	s.logger.ErrorContext(ctx, "change event dropped",
		slog.String("event_id", ev.EventID.String()),
		slog.String("entity", ev.Key()),
		slog.String("op", string(ev.Op)),
		slog.String("error", err.Error()),
	)
	if s.onDrop != nil {
		s.onDrop(ctx, ev, err)
	}
}
