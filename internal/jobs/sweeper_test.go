package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/testsupport"
)

func TestSweeper_Sweep(t *testing.T) {
	store := testsupport.NewMemStore()
	sweeper := NewSweeper(store, 30*time.Minute, 5*time.Minute)

	stuck := seedPhrase(store, "u1", func(p *phrase.Phrase) {
		job := "stale-job"
		started := time.Now().Add(-time.Hour)
		p.CurrentJobID = &job
		p.JobStartedAt = &started
	})
	recent := seedPhrase(store, "u1", func(p *phrase.Phrase) {
		job := "fresh-job"
		started := time.Now().Add(-time.Minute)
		p.CurrentJobID = &job
		p.JobStartedAt = &started
	})
	settled := seedPhrase(store, "u1", func(p *phrase.Phrase) {
		p.Status = phrase.StatusPendingReview
		p.CreatedAt = time.Now().Add(-24 * time.Hour)
	})

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got := store.Snapshot(stuck.ID)
	assert.Equal(t, phrase.StatusFailed, got.Status)
	assert.False(t, got.JobInFlight(), "reaping clears the slot so late results are rejected")
	require.NotNil(t, got.LastError)
	assert.Equal(t, "job timed out", *got.LastError)

	assert.Equal(t, phrase.StatusProcessing, store.Snapshot(recent.ID).Status)
	assert.Equal(t, phrase.StatusPendingReview, store.Snapshot(settled.ID).Status)
}

func TestSweeper_Sweep_FallsBackToCreatedAt(t *testing.T) {
	store := testsupport.NewMemStore()
	sweeper := NewSweeper(store, 30*time.Minute, 5*time.Minute)

	// Stuck in processing with no job slot at all, e.g. a crash between
	// Create and BeginJob. Age is judged by creation time.
	orphan := seedPhrase(store, "u1", func(p *phrase.Phrase) {
		p.CreatedAt = time.Now().Add(-time.Hour)
	})

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, phrase.StatusFailed, store.Snapshot(orphan.ID).Status)
}

func TestSweeper_Sweep_Idempotent(t *testing.T) {
	store := testsupport.NewMemStore()
	sweeper := NewSweeper(store, 30*time.Minute, 5*time.Minute)

	seedPhrase(store, "u1", func(p *phrase.Phrase) {
		job := "stale-job"
		started := time.Now().Add(-time.Hour)
		p.CurrentJobID = &job
		p.JobStartedAt = &started
	})

	count, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a reaped phrase no longer matches the sweep conditions")
}
