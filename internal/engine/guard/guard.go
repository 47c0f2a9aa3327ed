// Package guard protects an index store with a circuit breaker so a failing
// cluster is not hammered by retries from the synchronizer and the reindexer.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
)

// Config holds configuration for the circuit breaker.
type Config struct {
	// Name identifies this breaker (used in metrics and logs).
	Name string

	// MaxRequests is the maximum number of requests allowed in the half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing internal counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio is the ratio of failures to total requests that trips the breaker.
	FailureRatio float64

	// MinRequests is the minimum number of requests needed before the failure ratio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "index_store_breaker_state",
		Help: "Current state of the index store circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Store wraps an engine.IndexStore. Only retriable failures count against the
// breaker; a malformed query or a mapping error says nothing about cluster health.
type Store struct {
	next    engine.IndexStore
	breaker *gobreaker.CircuitBreaker[*domain.SearchResult]
}

var _ engine.IndexStore = (*Store)(nil)

// New wraps next with a circuit breaker.
func New(next engine.IndexStore, cfg Config, logger *slog.Logger) *Store {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("index store circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.Retriable(err)
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Store{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*domain.SearchResult](settings),
	}
}

// State returns the current breaker state.
func (s *Store) State() gobreaker.State {
	return s.breaker.State()
}

func (s *Store) Index(ctx context.Context, doc domain.Document) error {
	return s.write(func() error { return s.next.Index(ctx, doc) })
}

func (s *Store) BulkIndex(ctx context.Context, docs []domain.Document) error {
	return s.write(func() error { return s.next.BulkIndex(ctx, docs) })
}

func (s *Store) Delete(ctx context.Context, ref domain.EntityRef, version int64) error {
	return s.write(func() error { return s.next.Delete(ctx, ref, version) })
}

func (s *Store) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	res, err := s.breaker.Execute(func() (*domain.SearchResult, error) {
		return s.next.Search(ctx, q)
	})
	if isRejected(err) {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	return res, err
}

// Ping bypasses the breaker so health checks report the real cluster state.
func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *Store) write(fn func() error) error {
	_, err := s.breaker.Execute(func() (*domain.SearchResult, error) {
		return nil, fn()
	})
	if isRejected(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransientIndexWrite, err)
	}
	return err
}

func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
