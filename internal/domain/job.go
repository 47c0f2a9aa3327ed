package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a reindex job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// CanTransition reports whether pending -> running -> {succeeded, failed} allows s -> next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next == JobFailed
	case JobRunning:
		return next == JobSucceeded || next == JobFailed
	}
	return false
}

// TypeProgress holds the counters for one entity type within a job.
type TypeProgress struct {
	Type      EntityType `json:"type"`
	Processed int64      `json:"processed"`
	Indexed   int64      `json:"indexed"`
	Skipped   int64      `json:"skipped"`
	Batches   int64      `json:"batches"`
	Failed    bool       `json:"failed"`
	Error     string     `json:"error,omitempty"`
}

// ReindexJob is a point-in-time view of a mass reindex.
type ReindexJob struct {
	ID              uuid.UUID      `json:"id"`
	Target          string         `json:"target"`
	Status          JobStatus      `json:"status"`
	Types           []EntityType   `json:"types"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	ElapsedMs       int64          `json:"elapsed_ms"`
	Progress        []TypeProgress `json:"progress"`
	BatchSize       int            `json:"batch_size"`
	LoaderThreads   int            `json:"loader_threads"`
	TypesInParallel int            `json:"types_in_parallel"`
	Error           string         `json:"error,omitempty"`
}
