// Package phrase defines the captured-phrase model and its lifecycle rules.
package phrase

import (
	"time"

	"github.com/google/uuid"
)

// Status is the review lifecycle state of a phrase.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusExported      Status = "exported"
	StatusFailed        Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusPendingReview, StatusApproved, StatusExported, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle graph permits moving from s to next.
// The graph is closed: processing resolves to pending_review (webhook) or failed
// (sweeper timeout); review advances pending_review -> approved -> exported; and any
// settled state can re-enter processing through a retry, regeneration, or language
// change. Exported -> exported is allowed so that re-marking an export is a no-op
// rather than an error.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusProcessing:
		return next == StatusPendingReview || next == StatusFailed || next == StatusProcessing
	case StatusPendingReview:
		return next == StatusApproved || next == StatusProcessing || next == StatusPendingReview
	case StatusApproved:
		return next == StatusExported || next == StatusProcessing
	case StatusExported:
		return next == StatusExported || next == StatusProcessing
	case StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// Step is a pipeline progress marker reported by the enrichment service.
// Steps are ordered and only ever advance.
type Step string

const (
	StepExtracting      Step = "extracting"
	StepAnalyzing       Step = "analyzing"
	StepGeneratingAudio Step = "generating_audio"
)

// Order returns the position of the step in the pipeline, or 0 for an
// unknown/empty step.
func (s Step) Order() int {
	switch s {
	case StepExtracting:
		return 1
	case StepAnalyzing:
		return 2
	case StepGeneratingAudio:
		return 3
	}
	return 0
}

// Valid reports whether s is a known pipeline step.
func (s Step) Valid() bool {
	return s.Order() > 0
}

// After reports whether s is strictly later in the pipeline than other.
// An empty other means "no step recorded yet", so any valid step is after it.
func (s Step) After(other Step) bool {
	return s.Order() > other.Order()
}

// SourceKind identifies what kind of raw material the phrase was captured from.
type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourceImage SourceKind = "image"
	SourceAudio SourceKind = "audio"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceText || k == SourceImage || k == SourceAudio
}

// VocabEntry is one analyzed vocabulary item from the grammar breakdown.
type VocabEntry struct {
	Word       string `json:"word"`
	Root       string `json:"root,omitempty"`
	Meaning    string `json:"meaning"`
	Gender     string `json:"gender,omitempty"`
	Declension string `json:"declension,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Phrase is the enrichable record: raw captured material plus the derived
// content produced by the enrichment pipeline.
type Phrase struct {
	ID      uuid.UUID `json:"id"`
	OwnerID *string   `json:"owner_id,omitempty"` // nil marks a legacy phrase, hidden from owner-scoped reads
	Status  Status    `json:"status"`

	SourceKind SourceKind `json:"source_kind"`
	Language   string     `json:"language"`

	SourceText      string       `json:"source_text,omitempty"`
	Transliteration string       `json:"transliteration,omitempty"`
	Translation     string       `json:"translation,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Vocab           []VocabEntry `json:"vocab,omitempty"`
	Confidence      float64      `json:"confidence,omitempty"`

	OriginalKey string `json:"original_key,omitempty"` // object key of the uploaded artifact
	AudioKey    string `json:"audio_key,omitempty"`    // object key of the generated audio

	CurrentJobID   *string    `json:"current_job_id,omitempty"`
	JobAttempts    int        `json:"job_attempts"`
	JobStartedAt   *time.Time `json:"job_started_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	ProcessingStep Step       `json:"processing_step,omitempty"`

	ExcludeFromExport bool       `json:"exclude_from_export"`
	CreatedAt         time.Time  `json:"created_at"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
	ExportedAt        *time.Time `json:"exported_at,omitempty"`
}

// JobInFlight reports whether a dispatched job is still awaiting its result.
func (p *Phrase) JobInFlight() bool {
	return p.CurrentJobID != nil && *p.CurrentJobID != ""
}

// OwnedBy reports whether the phrase belongs to the given owner. Legacy
// phrases (nil owner) belong to nobody.
func (p *Phrase) OwnedBy(owner string) bool {
	return p.OwnerID != nil && *p.OwnerID == owner
}
