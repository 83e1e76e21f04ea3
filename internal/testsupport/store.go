// Package testsupport provides shared in-memory fakes for tests.
package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ankicapture/backend/internal/phrase"
)

// MemStore is an in-memory phrase.Store with the same conditional-update
// semantics as the SQL implementation: every job-arbitration mutation checks
// its condition and applies under one lock, so tests exercise the same
// arbitration rules the database enforces.
type MemStore struct {
	mu      sync.Mutex
	phrases map[uuid.UUID]*phrase.Phrase
}

var _ phrase.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{phrases: make(map[uuid.UUID]*phrase.Phrase)}
}

// Seed inserts a phrase directly, bypassing Create's defaults.
func (m *MemStore) Seed(p *phrase.Phrase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phrases[p.ID] = clone(p)
}

// Snapshot returns a copy of the stored phrase, or nil.
func (m *MemStore) Snapshot(id uuid.UUID) *phrase.Phrase {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok {
		return nil
	}
	return clone(p)
}

func clone(p *phrase.Phrase) *phrase.Phrase {
	c := *p
	if p.OwnerID != nil {
		owner := *p.OwnerID
		c.OwnerID = &owner
	}
	if p.CurrentJobID != nil {
		job := *p.CurrentJobID
		c.CurrentJobID = &job
	}
	if p.JobStartedAt != nil {
		t := *p.JobStartedAt
		c.JobStartedAt = &t
	}
	if p.LastError != nil {
		e := *p.LastError
		c.LastError = &e
	}
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		c.ReviewedAt = &t
	}
	if p.ExportedAt != nil {
		t := *p.ExportedAt
		c.ExportedAt = &t
	}
	if p.Vocab != nil {
		c.Vocab = append([]phrase.VocabEntry(nil), p.Vocab...)
	}
	return &c
}

func (m *MemStore) Create(_ context.Context, p *phrase.Phrase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := clone(p)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.phrases[c.ID] = c
	return nil
}

func (m *MemStore) Get(_ context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !p.OwnedBy(owner) {
		return nil, phrase.ErrNotFound
	}
	return clone(p), nil
}

func (m *MemStore) GetForCallback(_ context.Context, id uuid.UUID) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok {
		return nil, phrase.ErrNotFound
	}
	return clone(p), nil
}

func (m *MemStore) List(_ context.Context, owner string, f phrase.ListFilters) ([]phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []phrase.Phrase
	for _, p := range m.phrases {
		if !p.OwnedBy(owner) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Language != "" && p.Language != f.Language {
			continue
		}
		out = append(out, *clone(p))
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemStore) Update(_ context.Context, owner string, id uuid.UUID, u phrase.FieldUpdate) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !p.OwnedBy(owner) {
		return nil, phrase.ErrNotFound
	}
	if u.SourceText != nil {
		p.SourceText = *u.SourceText
	}
	if u.Transliteration != nil {
		p.Transliteration = *u.Transliteration
	}
	if u.Translation != nil {
		p.Translation = *u.Translation
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if u.Vocab != nil {
		p.Vocab = append([]phrase.VocabEntry(nil), u.Vocab...)
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.ExcludeFromExport != nil {
		p.ExcludeFromExport = *u.ExcludeFromExport
	}
	return clone(p), nil
}

func (m *MemStore) Delete(_ context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !p.OwnedBy(owner) {
		return nil, phrase.ErrNotFound
	}
	delete(m.phrases, id)
	return clone(p), nil
}

func (m *MemStore) BeginJob(_ context.Context, owner string, id uuid.UUID, jobID string, forceProcessing bool) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !p.OwnedBy(owner) {
		return nil, phrase.ErrNotFound
	}
	now := time.Now()
	p.CurrentJobID = &jobID
	p.JobAttempts++
	p.JobStartedAt = &now
	p.LastError = nil
	p.ProcessingStep = ""
	if forceProcessing {
		p.Status = phrase.StatusProcessing
	}
	return clone(p), nil
}

func (m *MemStore) ClearJob(_ context.Context, id uuid.UUID, jobID string, status phrase.Status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || p.CurrentJobID == nil || *p.CurrentJobID != jobID {
		return nil
	}
	p.CurrentJobID = nil
	p.ProcessingStep = ""
	p.Status = status
	p.LastError = nil
	if lastError != "" {
		p.LastError = &lastError
	}
	return nil
}

func (m *MemStore) jobMatches(p *phrase.Phrase, jobID string) bool {
	return p.CurrentJobID != nil && *p.CurrentJobID == jobID && jobID != ""
}

func (m *MemStore) ApplyResult(_ context.Context, id uuid.UUID, jobID string, r phrase.ResultMerge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !m.jobMatches(p, jobID) {
		return false, nil
	}
	p.SourceText = r.SourceText
	p.Transliteration = r.Transliteration
	p.Translation = r.Translation
	p.Notes = r.Notes
	p.Vocab = append([]phrase.VocabEntry(nil), r.Vocab...)
	if r.Language != "" {
		p.Language = r.Language
	}
	p.Confidence = r.Confidence
	if r.AudioKey != "" {
		p.AudioKey = r.AudioKey
	}
	p.Status = phrase.StatusPendingReview
	p.LastError = nil
	p.ProcessingStep = ""
	p.CurrentJobID = nil
	return true, nil
}

func (m *MemStore) ApplyAudioResult(_ context.Context, id uuid.UUID, jobID string, sourceText, audioKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !m.jobMatches(p, jobID) {
		return false, nil
	}
	if sourceText != "" {
		p.SourceText = sourceText
	}
	if audioKey != "" {
		p.AudioKey = audioKey
	}
	p.LastError = nil
	p.ProcessingStep = ""
	p.CurrentJobID = nil
	return true, nil
}

func (m *MemStore) ApplyFailure(_ context.Context, id uuid.UUID, jobID string, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !m.jobMatches(p, jobID) {
		return false, nil
	}
	marker := "[processing failed: " + message + "]"
	if p.Notes == "" {
		p.Notes = marker
	} else {
		p.Notes += "\n\n" + marker
	}
	p.Status = phrase.StatusPendingReview
	p.LastError = &message
	p.ProcessingStep = ""
	p.CurrentJobID = nil
	return true, nil
}

func (m *MemStore) AdvanceStep(_ context.Context, id uuid.UUID, jobID string, step phrase.Step) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !m.jobMatches(p, jobID) || !step.Valid() || !step.After(p.ProcessingStep) {
		return false, nil
	}
	p.ProcessingStep = step
	return true, nil
}

func (m *MemStore) SweepTimedOut(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.phrases {
		if p.Status != phrase.StatusProcessing {
			continue
		}
		started := p.CreatedAt
		if p.JobStartedAt != nil {
			started = *p.JobStartedAt
		}
		if !started.Before(cutoff) {
			continue
		}
		msg := "job timed out"
		p.Status = phrase.StatusFailed
		p.LastError = &msg
		p.CurrentJobID = nil
		p.ProcessingStep = ""
		count++
	}
	return count, nil
}

func (m *MemStore) Approve(_ context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.phrases[id]
	if !ok || !p.OwnedBy(owner) {
		return nil, phrase.ErrNotFound
	}
	if p.Status != phrase.StatusPendingReview {
		return nil, phrase.ErrInvalidTransition
	}
	now := time.Now()
	p.Status = phrase.StatusApproved
	p.ReviewedAt = &now
	return clone(p), nil
}

func (m *MemStore) MarkExported(_ context.Context, owner string, ids []uuid.UUID) ([]phrase.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[uuid.UUID]bool{}
	for _, id := range ids {
		wanted[id] = true
	}

	var out []phrase.Phrase
	for id, p := range m.phrases {
		if !p.OwnedBy(owner) || p.ExcludeFromExport {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		if p.Status != phrase.StatusApproved && p.Status != phrase.StatusExported {
			continue
		}
		p.Status = phrase.StatusExported
		if p.ExportedAt == nil {
			now := time.Now()
			p.ExportedAt = &now
		}
		out = append(out, *clone(p))
	}
	return out, nil
}
