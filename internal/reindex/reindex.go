// Package reindex rebuilds every index from the record store in the background.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	"github.com/utafrali/shopindex/internal/repository"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

// Config holds the mass indexer tunables.
type Config struct {
	// Target names the index set being rebuilt; one job per target runs at a time.
	Target          string
	BatchSize       int
	LoaderThreads   int
	TypesInParallel int
	// ProgressEvery logs progress each time this many more records are processed.
	ProgressEvery   int
	QPS             float64
	BatchTimeout    time.Duration
	MaxBatchRetries uint
	RetryBackoff    time.Duration
	History         int
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		Target:          "shopindex",
		BatchSize:       500,
		LoaderThreads:   2,
		TypesInParallel: 1,
		ProgressEvery:   1000,
		BatchTimeout:    time.Minute,
		MaxBatchRetries: 3,
		RetryBackoff:    500 * time.Millisecond,
		History:         20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Target == "" {
		c.Target = def.Target
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.LoaderThreads <= 0 {
		c.LoaderThreads = def.LoaderThreads
	}
	if c.TypesInParallel <= 0 {
		c.TypesInParallel = def.TypesInParallel
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = def.ProgressEvery
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	if c.MaxBatchRetries == 0 {
		c.MaxBatchRetries = def.MaxBatchRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.History <= 0 {
		c.History = def.History
	}
	return c
}

// DocumentBuilder renders documents for records read in bulk.
type DocumentBuilder interface {
	BuildFrom(ctx context.Context, e domain.Entity, readAt time.Time) (*domain.Document, error)
}

type pageFunc func(ctx context.Context, after uuid.UUID, limit int) ([]domain.Entity, error)

func pager[T domain.Entity](repo repository.Repository[T]) pageFunc {
	return func(ctx context.Context, after uuid.UUID, limit int) ([]domain.Entity, error) {
		rows, err := repo.ListAfter(ctx, after, limit)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Entity, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out, nil
	}
}

// Reindexer runs mass reindex jobs. At most one job per target is active.
type Reindexer struct {
	pages   map[domain.EntityType]pageFunc
	builder DocumentBuilder
	index   engine.IndexStore
	locker  Locker
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  *Job
	history []*Job
}

// Option configures a Reindexer.
type Option func(*Reindexer)

// WithLocker adds a cluster-wide guard on top of the in-process one.
func WithLocker(l Locker) Option {
	return func(r *Reindexer) { r.locker = l }
}

// New creates a reindexer reading from store and writing to index.
func New(store *repository.Store, builder DocumentBuilder, index engine.IndexStore, cfg Config, logger *slog.Logger, opts ...Option) *Reindexer {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Reindexer{
		pages: map[domain.EntityType]pageFunc{
			domain.TypeAddress:  pager[domain.Address](store.Addresses),
			domain.TypeCustomer: pager[domain.Customer](store.Customers),
			domain.TypeProduct:  pager[domain.Product](store.Products),
			domain.TypeCategory: pager[domain.Category](store.Categories),
			domain.TypeWishList: pager[domain.WishList](store.WishLists),
		},
		builder: builder,
		index:   index,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "reindex")),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.QPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReindexAll starts a job over types (all types when none are given) and
// returns without waiting for it. A job already pending or running for the
// same target yields domain.ErrReindexConflict.
func (r *Reindexer) ReindexAll(ctx context.Context, types ...domain.EntityType) (*Job, error) {
	if len(types) == 0 {
		types = domain.AllTypes
	}
	for _, t := range types {
		if _, ok := r.pages[t]; !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown entity type %q", t))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return nil, fmt.Errorf("reindex: %w", r.ctx.Err())
	}
	if r.active != nil && !r.active.Status().Terminal() {
		return nil, fmt.Errorf("%w: job %s for %s", domain.ErrReindexConflict, r.active.ID(), r.cfg.Target)
	}

	var lease Lease
	if r.locker != nil {
		var err error
		lease, err = r.locker.Acquire(ctx, lockKey(r.cfg.Target))
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s held by another instance", domain.ErrReindexConflict, r.cfg.Target)
		}
		if err != nil {
			return nil, fmt.Errorf("reindex: %w", err)
		}
	}

	job := newJob(r.cfg.Target, types, r.cfg, time.Now())
	r.active = job
	r.history = append(r.history, job)
	if len(r.history) > r.cfg.History {
		r.history = slices.Delete(r.history, 0, len(r.history)-r.cfg.History)
	}

	r.wg.Add(1)
	go r.run(job, lease)

	r.logger.InfoContext(ctx, "mass indexing scheduled",
		slog.String("job_id", job.ID().String()),
		slog.Any("types", types),
	)
	return job, nil
}

func lockKey(target string) string {
	return "reindex:lock:" + target
}

// Get returns a job from the history.
func (r *Reindexer) Get(id uuid.UUID) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.history {
		if j.ID() == id {
			return j, true
		}
	}
	return nil, false
}

// Latest returns the most recently created job.
func (r *Reindexer) Latest() (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return nil, false
	}
	return r.history[len(r.history)-1], true
}

// Close cancels running jobs and waits for them to reach a terminal state.
func (r *Reindexer) Close(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reindexer) run(job *Job, lease Lease) {
	defer r.wg.Done()
	ctx, cancel := context.WithCancelCause(r.ctx)
	defer cancel(nil)
	logger := r.logger.With(slog.String("job_id", job.ID().String()))

	if lease != nil {
		// Another instance may take the target once the lock is gone.
		go func() {
			select {
			case <-lease.Lost():
				logger.Error("reindex lock lost, cancelling job")
				cancel(ErrLockLost)
			case <-ctx.Done():
			}
		}()
	}

	defer func() {
		if lease == nil {
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Error("failed to release reindex lock", slog.String("error", err.Error()))
		}
	}()

	if err := job.transition(domain.JobRunning, time.Now(), ""); err != nil {
		logger.Error("reindex job not started", slog.String("error", err.Error()))
		return
	}
	jobRunning.Set(1)
	defer jobRunning.Set(0)

	snap := job.Snapshot()
	logger.Info("mass indexing started",
		slog.Any("types", snap.Types),
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Int("loader_threads", r.cfg.LoaderThreads),
		slog.Int("types_in_parallel", r.cfg.TypesInParallel),
	)

	mon := &monitor{every: int64(r.cfg.ProgressEvery), logger: logger, start: time.Now()}

	// Types never share a cancellation context: one failing type leaves the others running.
	var (
		g      errgroup.Group
		failMu sync.Mutex
		failed []error
	)
	g.SetLimit(r.cfg.TypesInParallel)
	for _, t := range snap.Types {
		g.Go(func() error {
			if err := r.reindexType(ctx, job, t, mon); err != nil {
				job.failType(t, err)
				logger.Error("mass indexing of type failed",
					slog.String("type", string(t)),
					slog.String("error", err.Error()),
				)
				failMu.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", t, err))
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, ErrLockLost) {
		failed = append(failed, cause)
	}

	status, errMsg := domain.JobSucceeded, ""
	if len(failed) > 0 {
		status = domain.JobFailed
		errMsg = fmt.Errorf("%w: %w", domain.ErrReindexFatal, errors.Join(failed...)).Error()
	}
	if err := job.transition(status, time.Now(), errMsg); err != nil {
		logger.Error("reindex job not finished", slog.String("error", err.Error()))
		return
	}
	jobsTotal.WithLabelValues(string(status)).Inc()

	final := job.Snapshot()
	elapsed := time.Duration(final.ElapsedMs) * time.Millisecond
	if status == domain.JobSucceeded {
		logger.Info("mass indexing succeeded",
			slog.Duration("elapsed", elapsed),
			slog.Int64("processed", mon.total.Load()),
		)
		return
	}
	logger.Error("mass indexing failed",
		slog.Duration("elapsed", elapsed),
		slog.Int64("processed", mon.total.Load()),
		slog.String("error", errMsg),
	)
}

type batch struct {
	entities []domain.Entity
	readAt   time.Time
}

// reindexType scans one type in id order and feeds batches to the loaders.
// Any batch failing after its retries aborts this type only.
func (r *Reindexer) reindexType(ctx context.Context, job *Job, t domain.EntityType, mon *monitor) error {
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan batch, r.cfg.LoaderThreads)

	g.Go(func() error {
		defer close(batches)
		after := uuid.Nil
		for {
			readAt := time.Now()
			rows, err := r.readPage(ctx, t, after)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			select {
			case batches <- batch{entities: rows, readAt: readAt}:
			case <-ctx.Done():
				return ctx.Err()
			}
			if len(rows) < r.cfg.BatchSize {
				return nil
			}
			after = rows[len(rows)-1].Ref().ID
		}
	})

	for i := 0; i < r.cfg.LoaderThreads; i++ {
		g.Go(func() error {
			for b := range batches {
				if err := r.load(ctx, job, t, b, mon); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Reindexer) readPage(ctx context.Context, t domain.EntityType, after uuid.UUID) ([]domain.Entity, error) {
	var rows []domain.Entity
	err := r.retry(ctx, func() error {
		var err error
		rows, err = r.pages[t](ctx, after, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("%w: list %s after %s: %w", domain.ErrRecordRead, t, after, err)
		}
		return nil
	})
	return rows, err
}

func (r *Reindexer) load(ctx context.Context, job *Job, t domain.EntityType, b batch, mon *monitor) error {
	start := time.Now()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	bctx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	docs := make([]domain.Document, 0, len(b.entities))
	skipped := 0
	for _, e := range b.entities {
		var doc *domain.Document
		err := r.retry(bctx, func() error {
			var err error
			doc, err = r.builder.BuildFrom(bctx, e, b.readAt)
			return err
		})
		// Only a record that stays unreadable through every retry is skipped.
		if errors.Is(err, domain.ErrRecordRead) {
			skipped++
			r.logger.WarnContext(ctx, "skipping unreadable record",
				slog.String("entity", e.Ref().String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("build %s: %w", e.Ref(), err)
		}
		docs = append(docs, *doc)
	}

	if err := r.retry(bctx, func() error {
		return r.index.BulkIndex(bctx, docs)
	}); err != nil {
		return fmt.Errorf("bulk index %d %s documents: %w", len(docs), t, err)
	}

	job.addBatch(t, len(b.entities), len(docs), skipped)
	documentsTotal.WithLabelValues(string(t), "indexed").Add(float64(len(docs)))
	documentsTotal.WithLabelValues(string(t), "skipped").Add(float64(skipped))
	batchDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
	mon.add(ctx, t, int64(len(b.entities)))
	return nil
}

func (r *Reindexer) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.RetryBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !domain.Retriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(r.cfg.MaxBatchRetries),
	)
	return err
}

// monitor logs progress every `every` records across the whole job.
type monitor struct {
	every  int64
	total  atomic.Int64
	logger *slog.Logger
	start  time.Time
}

func (m *monitor) add(ctx context.Context, t domain.EntityType, n int64) {
	before := m.total.Add(n) - n
	after := before + n
	if after/m.every == before/m.every {
		return
	}
	elapsed := time.Since(m.start)
	perSec := float64(after) / max(elapsed.Seconds(), 0.001)
	m.logger.InfoContext(ctx, "mass indexing progress",
		slog.Int64("processed", after),
		slog.String("last_type", string(t)),
		slog.Float64("docs_per_second", perSec),
	)
}
