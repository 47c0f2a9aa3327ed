package reindex

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
)

// Job tracks one mass reindex. It is safe for concurrent use.
type Job struct {
	mu       sync.RWMutex
	view     domain.ReindexJob
	progress map[domain.EntityType]*domain.TypeProgress
	done     chan struct{}
}

func newJob(target string, types []domain.EntityType, cfg Config, now time.Time) *Job {
	j := &Job{
		view: domain.ReindexJob{
			ID:              uuid.New(),
			Target:          target,
			Status:          domain.JobPending,
			Types:           slices.Clone(types),
			CreatedAt:       now,
			BatchSize:       cfg.BatchSize,
			LoaderThreads:   cfg.LoaderThreads,
			TypesInParallel: cfg.TypesInParallel,
		},
		progress: make(map[domain.EntityType]*domain.TypeProgress, len(types)),
		done:     make(chan struct{}),
	}
	for _, t := range types {
		j.progress[t] = &domain.TypeProgress{Type: t}
	}
	return j
}

// ID returns the job id.
func (j *Job) ID() uuid.UUID {
	return j.view.ID
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the current state.
func (j *Job) Status() domain.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view.Status
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() domain.ReindexJob {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := j.view
	out.Types = slices.Clone(j.view.Types)
	out.Progress = make([]domain.TypeProgress, 0, len(j.view.Types))
	for _, t := range j.view.Types {
		out.Progress = append(out.Progress, *j.progress[t])
	}
	switch {
	case out.FinishedAt != nil && out.StartedAt != nil:
		out.ElapsedMs = out.FinishedAt.Sub(*out.StartedAt).Milliseconds()
	case out.StartedAt != nil:
		out.ElapsedMs = time.Since(*out.StartedAt).Milliseconds()
	}
	return out
}

func (j *Job) transition(next domain.JobStatus, now time.Time, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.view.Status.CanTransition(next) {
		return fmt.Errorf("reindex job %s: invalid transition %s -> %s", j.view.ID, j.view.Status, next)
	}
	j.view.Status = next
	switch {
	case next == domain.JobRunning:
		j.view.StartedAt = &now
	case next.Terminal():
		j.view.FinishedAt = &now
		if j.view.StartedAt == nil {
			j.view.StartedAt = &now
		}
		j.view.Error = errMsg
		close(j.done)
	}
	return nil
}

func (j *Job) addBatch(t domain.EntityType, processed, indexed, skipped int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress[t]
	p.Processed += int64(processed)
	p.Indexed += int64(indexed)
	p.Skipped += int64(skipped)
	p.Batches++
}

func (j *Job) failType(t domain.EntityType, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress[t]
	p.Failed = true
	p.Error = err.Error()
}
