package reindex

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/domain"
)

func TestJob_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	j := newJob("shopindex", []domain.EntityType{domain.TypeAddress, domain.TypeCustomer}, cfg, now)

	snap := j.Snapshot()
	assert.Equal(t, domain.JobPending, snap.Status)
	assert.Equal(t, 500, snap.BatchSize)
	assert.Nil(t, snap.StartedAt)
	require.Len(t, snap.Progress, 2)

	require.NoError(t, j.transition(domain.JobRunning, now.Add(time.Second), ""))
	j.addBatch(domain.TypeAddress, 10, 9, 1)
	j.addBatch(domain.TypeAddress, 5, 5, 0)
	j.failType(domain.TypeCustomer, errors.New("boom"))

	require.NoError(t, j.transition(domain.JobFailed, now.Add(3*time.Second), "customer: boom"))

	select {
	case <-j.Done():
	default:
		t.Fatal("done channel not closed")
	}

	snap = j.Snapshot()
	assert.Equal(t, domain.JobFailed, snap.Status)
	assert.Equal(t, int64(2000), snap.ElapsedMs)
	assert.Equal(t, "customer: boom", snap.Error)
	assert.Equal(t, domain.TypeProgress{Type: domain.TypeAddress, Processed: 15, Indexed: 14, Skipped: 1, Batches: 2}, snap.Progress[0])
	assert.True(t, snap.Progress[1].Failed)
	assert.Equal(t, "boom", snap.Progress[1].Error)
}

func TestJob_TerminalStatesAreFinal(t *testing.T) {
	j := newJob("shopindex", domain.AllTypes, DefaultConfig(), time.Now())
	require.NoError(t, j.transition(domain.JobRunning, time.Now(), ""))
	require.NoError(t, j.transition(domain.JobSucceeded, time.Now(), ""))

	assert.Error(t, j.transition(domain.JobFailed, time.Now(), "late"))
	assert.Error(t, j.transition(domain.JobRunning, time.Now(), ""))
	assert.Equal(t, domain.JobSucceeded, j.Status())
}

func TestJob_CannotSkipRunning(t *testing.T) {
	j := newJob("shopindex", domain.AllTypes, DefaultConfig(), time.Now())
	assert.Error(t, j.transition(domain.JobSucceeded, time.Now(), ""))
}

func TestJob_SnapshotIsCopy(t *testing.T) {
	j := newJob("shopindex", []domain.EntityType{domain.TypeAddress}, DefaultConfig(), time.Now())
	snap := j.Snapshot()
	snap.Progress[0].Processed = 99
	snap.Types[0] = domain.TypeCustomer

	again := j.Snapshot()
	assert.Equal(t, int64(0), again.Progress[0].Processed)
	assert.Equal(t, domain.TypeAddress, again.Types[0])
}
