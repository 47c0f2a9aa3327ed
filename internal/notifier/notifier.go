// Package notifier turns committed record writes into change events for the
// index synchronizer, including one level of cascade to embedding parents.
package notifier

import (
	"context"
	"log/slog"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/repository"
)

// Sink receives change events. Implementations may be in-process or remote.
type Sink interface {
	Publish(ctx context.Context, events ...domain.ChangeEvent) error
}

// Notifier plans and emits change events. It never fails the caller.
type Notifier struct {
	store  *repository.Store
	sink   Sink
	logger *slog.Logger
}

// New creates a notifier that resolves cascades against store and emits to sink.
func New(store *repository.Store, sink Sink, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, sink: sink, logger: logger.With(slog.String("component", "notifier"))}
}

// Plan returns the event for the changed record followed by upserts for every
// parent that embeds it. Pass every available snapshot (before and after an
// update) so parents that gained or lost the record are both refreshed. For a
// delete, Plan must run before the record is removed.
func (n *Notifier) Plan(ctx context.Context, op domain.ChangeOp, snapshots ...domain.Entity) []domain.ChangeEvent {
	var self domain.Entity
	for _, s := range snapshots {
		if s != nil {
			self = s
			break
		}
	}
	if self == nil {
		return nil
	}

	ref := self.Ref()
	events := []domain.ChangeEvent{domain.NewChangeEvent(ref, op)}
	seen := map[domain.EntityRef]bool{ref: true}

	for _, edge := range EdgesFrom(ref.Type) {
		for _, snap := range snapshots {
			if snap == nil {
				continue
			}
			parents, err := edge.Resolve(ctx, n.store, snap)
			if err != nil {
				n.logger.WarnContext(ctx, "cascade resolution failed",
					slog.String("entity", ref.String()),
					slog.String("parent_type", string(edge.Parent)),
					slog.String("path", edge.Path),
					slog.String("error", err.Error()),
				)
				cascadeErrors.WithLabelValues(string(ref.Type), string(edge.Parent)).Inc()
				continue
			}
			for _, id := range parents {
				pref := domain.EntityRef{Type: edge.Parent, ID: id}
				if seen[pref] {
					continue
				}
				seen[pref] = true
				ev := domain.NewChangeEvent(pref, domain.OpUpsert)
				cause := ref
				ev.Cause = &cause
				events = append(events, ev)
			}
		}
	}
	return events
}

// Emit hands events to the sink. Failures are logged and swallowed.
func (n *Notifier) Emit(ctx context.Context, events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		kind := "direct"
		if ev.Cause != nil {
			kind = "cascade"
		}
		eventsEmitted.WithLabelValues(string(ev.Type), string(ev.Op), kind).Inc()
	}
	if err := n.sink.Publish(ctx, events...); err != nil {
		emitErrors.Inc()
		n.logger.ErrorContext(ctx, "failed to emit change events",
			slog.String("entity", events[0].Key()),
			slog.Int("count", len(events)),
			slog.String("error", err.Error()),
		)
	}
}

// Notify plans and emits in one step. Use Plan and Emit separately for deletes.
func (n *Notifier) Notify(ctx context.Context, op domain.ChangeOp, snapshots ...domain.Entity) {
	n.Emit(ctx, n.Plan(ctx, op, snapshots...))
}
