package phrase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for phrases that do not exist or are not owned by the
// caller. The two cases are deliberately indistinguishable so that probing for
// other owners' phrase IDs leaks nothing.
var ErrNotFound = errors.New("phrase not found")

// ErrInvalidTransition is returned when an operation would move a phrase along
// an edge the lifecycle graph does not have, e.g. approving a phrase that is
// still processing.
var ErrInvalidTransition = errors.New("invalid status transition")

// ListFilters narrows an owner-scoped listing.
type ListFilters struct {
	Status   Status
	Language string
	Limit    int
}

// FieldUpdate carries optional review-time edits. Nil pointers leave the
// column untouched.
type FieldUpdate struct {
	SourceText        *string
	Transliteration   *string
	Translation       *string
	Notes             *string
	Vocab             []VocabEntry
	Language          *string
	ExcludeFromExport *bool
}

// ResultMerge is the full set of derived fields accepted from a successful
// enrichment result.
type ResultMerge struct {
	SourceText      string
	Transliteration string
	Translation     string
	Notes           string
	Vocab           []VocabEntry
	Language        string
	Confidence      float64
	AudioKey        string // empty leaves the stored audio reference alone
}

// Store is the durable phrase store. Every mutation that participates in job
// arbitration (BeginJob, ClearJob, the Apply* family, SweepTimedOut) must be a
// single atomic conditional write: races between the dispatcher, the webhook,
// and the sweeper are resolved by the database, never by read-then-write.
type Store interface {
	Create(ctx context.Context, p *Phrase) error
	Get(ctx context.Context, owner string, id uuid.UUID) (*Phrase, error)
	// GetForCallback resolves a phrase without owner context. Webhook
	// deliveries carry no caller identity, so this is the only read that can
	// see legacy (nil-owner) phrases.
	GetForCallback(ctx context.Context, id uuid.UUID) (*Phrase, error)
	List(ctx context.Context, owner string, f ListFilters) ([]Phrase, error)
	Update(ctx context.Context, owner string, id uuid.UUID, u FieldUpdate) (*Phrase, error)
	// Delete removes the phrase and returns its final state so callers can
	// best-effort-delete referenced artifacts.
	Delete(ctx context.Context, owner string, id uuid.UUID) (*Phrase, error)

	// BeginJob atomically claims the job slot: sets current_job_id, bumps
	// job_attempts, stamps job_started_at, clears last_error and the progress
	// step, and optionally forces status=processing.
	BeginJob(ctx context.Context, owner string, id uuid.UUID, jobID string, forceProcessing bool) (*Phrase, error)
	// ClearJob reverts a dispatch that never reached the enrichment service.
	// Conditioned on current_job_id = jobID so it can never clobber a
	// superseding dispatch.
	ClearJob(ctx context.Context, id uuid.UUID, jobID string, status Status, lastError string) error

	// The Apply* family merges webhook deliveries. Each is conditioned on
	// current_job_id = jobID and reports applied=false for stale, duplicate,
	// or superseded deliveries. Acceptance clears the job slot in the same
	// statement, so a NULL slot matches nothing.
	ApplyResult(ctx context.Context, id uuid.UUID, jobID string, m ResultMerge) (applied bool, err error)
	ApplyAudioResult(ctx context.Context, id uuid.UUID, jobID string, sourceText, audioKey string) (applied bool, err error)
	ApplyFailure(ctx context.Context, id uuid.UUID, jobID string, message string) (applied bool, err error)
	// AdvanceStep moves the progress marker forward, never backward, and never
	// touches status.
	AdvanceStep(ctx context.Context, id uuid.UUID, jobID string, step Step) (applied bool, err error)

	// SweepTimedOut reaps phrases stuck in processing since before cutoff.
	SweepTimedOut(ctx context.Context, cutoff time.Time) (int, error)

	Approve(ctx context.Context, owner string, id uuid.UUID) (*Phrase, error)
	// MarkExported marks approved phrases exported. Already-exported phrases
	// count as marked (idempotent); other states are skipped.
	MarkExported(ctx context.Context, owner string, ids []uuid.UUID) ([]Phrase, error)
}
