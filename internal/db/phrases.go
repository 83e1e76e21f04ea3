package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ankicapture/backend/internal/phrase"
)

var _ phrase.Store = (*DB)(nil)

// phraseColumns is the canonical select list; scanPhrase must match it.
const phraseColumns = `id, owner_id, status, source_kind, language, source_text,
	transliteration, translation, notes, vocab, confidence, original_key, audio_key,
	current_job_id, job_attempts, job_started_at, last_error, processing_step,
	exclude_from_export, created_at, reviewed_at, exported_at`

// stepOrderSQL maps the stored step to its pipeline position for forward-only
// comparisons inside a single UPDATE.
const stepOrderSQL = `COALESCE(CASE processing_step
	WHEN 'extracting' THEN 1
	WHEN 'analyzing' THEN 2
	WHEN 'generating_audio' THEN 3
	END, 0)`

func scanPhrase(row pgx.Row) (*phrase.Phrase, error) {
	var p phrase.Phrase
	var vocabJSON []byte
	var step *string

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Status, &p.SourceKind, &p.Language, &p.SourceText,
		&p.Transliteration, &p.Translation, &p.Notes, &vocabJSON, &p.Confidence,
		&p.OriginalKey, &p.AudioKey,
		&p.CurrentJobID, &p.JobAttempts, &p.JobStartedAt, &p.LastError, &step,
		&p.ExcludeFromExport, &p.CreatedAt, &p.ReviewedAt, &p.ExportedAt,
	)
	if err != nil {
		return nil, err
	}

	if step != nil {
		p.ProcessingStep = phrase.Step(*step)
	}
	if len(vocabJSON) > 0 {
		if err := json.Unmarshal(vocabJSON, &p.Vocab); err != nil {
			return nil, fmt.Errorf("failed to decode vocab for phrase %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func marshalVocab(vocab []phrase.VocabEntry) ([]byte, error) {
	if vocab == nil {
		return nil, nil
	}
	data, err := json.Marshal(vocab)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vocab: %w", err)
	}
	return data, nil
}

// Create inserts a new phrase.
func (db *DB) Create(ctx context.Context, p *phrase.Phrase) error {
	vocabJSON, err := marshalVocab(p.Vocab)
	if err != nil {
		return err
	}

	var step *string
	if p.ProcessingStep != "" {
		s := string(p.ProcessingStep)
		step = &s
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO phrases (id, owner_id, status, source_kind, language, source_text,
		     transliteration, translation, notes, vocab, confidence, original_key, audio_key,
		     current_job_id, job_attempts, job_started_at, last_error, processing_step,
		     exclude_from_export, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		     $14, $15, $16, $17, $18, $19, NOW())`,
		p.ID, p.OwnerID, p.Status, p.SourceKind, p.Language, p.SourceText,
		p.Transliteration, p.Translation, p.Notes, vocabJSON, p.Confidence,
		p.OriginalKey, p.AudioKey,
		p.CurrentJobID, p.JobAttempts, p.JobStartedAt, p.LastError, step,
		p.ExcludeFromExport,
	)
	if err != nil {
		return fmt.Errorf("failed to create phrase: %w", err)
	}
	return nil
}

// Get retrieves a phrase scoped to its owner. Legacy (NULL-owner) phrases are
// invisible here by design.
func (db *DB) Get(ctx context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+phraseColumns+` FROM phrases WHERE id = $1 AND owner_id = $2`,
		id, owner,
	)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, phrase.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get phrase: %w", err)
	}
	return p, nil
}

// GetForCallback retrieves a phrase without owner context; callback flows do
// not carry user identity.
func (db *DB) GetForCallback(ctx context.Context, id uuid.UUID) (*phrase.Phrase, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+phraseColumns+` FROM phrases WHERE id = $1`,
		id,
	)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, phrase.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get phrase: %w", err)
	}
	return p, nil
}

// List retrieves the owner's phrases, newest first, with optional filters.
func (db *DB) List(ctx context.Context, owner string, f phrase.ListFilters) ([]phrase.Phrase, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	query := `SELECT ` + phraseColumns + ` FROM phrases WHERE owner_id = $1`
	args := []any{owner}
	argNum := 2

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, f.Status)
		argNum++
	}
	if f.Language != "" {
		query += fmt.Sprintf(" AND language = $%d", argNum)
		args = append(args, f.Language)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, f.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer rows.Close()

	var phrases []phrase.Phrase
	for rows.Next() {
		p, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phrase: %w", err)
		}
		phrases = append(phrases, *p)
	}
	return phrases, rows.Err()
}

// Update applies review-time field edits, scoped to the owner.
func (db *DB) Update(ctx context.Context, owner string, id uuid.UUID, u phrase.FieldUpdate) (*phrase.Phrase, error) {
	sets := []string{}
	args := []any{id, owner}
	argNum := 3

	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, value)
		argNum++
	}

	if u.SourceText != nil {
		set("source_text", *u.SourceText)
	}
	if u.Transliteration != nil {
		set("transliteration", *u.Transliteration)
	}
	if u.Translation != nil {
		set("translation", *u.Translation)
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.Vocab != nil {
		vocabJSON, err := marshalVocab(u.Vocab)
		if err != nil {
			return nil, err
		}
		set("vocab", vocabJSON)
	}
	if u.Language != nil {
		set("language", *u.Language)
	}
	if u.ExcludeFromExport != nil {
		set("exclude_from_export", *u.ExcludeFromExport)
	}

	if len(sets) == 0 {
		return db.Get(ctx, owner, id)
	}

	query := "UPDATE phrases SET " + joinSets(sets) +
		" WHERE id = $1 AND owner_id = $2 RETURNING " + phraseColumns

	p, err := scanPhrase(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, phrase.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update phrase: %w", err)
	}
	return p, nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// Delete removes the phrase and returns its final state so callers can clean
// up referenced artifacts.
func (db *DB) Delete(ctx context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	row := db.pool.QueryRow(ctx,
		`DELETE FROM phrases WHERE id = $1 AND owner_id = $2 RETURNING `+phraseColumns,
		id, owner,
	)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, phrase.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete phrase: %w", err)
	}
	return p, nil
}

// BeginJob atomically claims the job slot for a new dispatch. One statement:
// two concurrent dispatch attempts cannot both believe they own the slot.
func (db *DB) BeginJob(ctx context.Context, owner string, id uuid.UUID, jobID string, forceProcessing bool) (*phrase.Phrase, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE phrases SET
		     current_job_id = $3,
		     job_attempts = job_attempts + 1,
		     job_started_at = NOW(),
		     last_error = NULL,
		     processing_step = NULL,
		     status = CASE WHEN $4 THEN 'processing' ELSE status END
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+phraseColumns,
		id, owner, jobID, forceProcessing,
	)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, phrase.ErrNotFound
		}
		return nil, fmt.Errorf("failed to begin job: %w", err)
	}
	return p, nil
}

// ClearJob reverts a dispatch whose outbound call failed. Conditioned on the
// job identity so a superseding dispatch is never clobbered.
func (db *DB) ClearJob(ctx context.Context, id uuid.UUID, jobID string, status phrase.Status, lastError string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE phrases SET
		     current_job_id = NULL,
		     processing_step = NULL,
		     status = $3,
		     last_error = NULLIF($4, '')
		 WHERE id = $1 AND current_job_id = $2`,
		id, jobID, status, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to clear job: %w", err)
	}
	return nil
}

// ApplyResult merges a successful full enrichment result. The WHERE clause is
// the idempotency gate: only the current job's identity matches, and the match
// clears the slot, so duplicates and stale deliveries apply nothing. A NULL
// slot matches no delivery at all.
func (db *DB) ApplyResult(ctx context.Context, id uuid.UUID, jobID string, m phrase.ResultMerge) (bool, error) {
	vocabJSON, err := marshalVocab(m.Vocab)
	if err != nil {
		return false, err
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE phrases SET
		     source_text = $3,
		     transliteration = $4,
		     translation = $5,
		     notes = $6,
		     vocab = $7,
		     language = CASE WHEN $8 <> '' THEN $8 ELSE language END,
		     confidence = $9,
		     audio_key = CASE WHEN $10 <> '' THEN $10 ELSE audio_key END,
		     status = 'pending_review',
		     last_error = NULL,
		     processing_step = NULL,
		     current_job_id = NULL
		 WHERE id = $1 AND current_job_id = $2`,
		id, jobID, m.SourceText, m.Transliteration, m.Translation, m.Notes,
		vocabJSON, m.Language, m.Confidence, m.AudioKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyAudioResult merges an audio-only regeneration result: source text and
// the audio reference change, every other derived field stays untouched.
func (db *DB) ApplyAudioResult(ctx context.Context, id uuid.UUID, jobID string, sourceText, audioKey string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE phrases SET
		     source_text = CASE WHEN $3 <> '' THEN $3 ELSE source_text END,
		     audio_key = CASE WHEN $4 <> '' THEN $4 ELSE audio_key END,
		     last_error = NULL,
		     processing_step = NULL,
		     current_job_id = NULL
		 WHERE id = $1 AND current_job_id = $2`,
		id, jobID, sourceText, audioKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply audio result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyFailure records a business-level failure from the enrichment service.
// The phrase lands in pending_review with the error visible in its notes.
func (db *DB) ApplyFailure(ctx context.Context, id uuid.UUID, jobID string, message string) (bool, error) {
	marker := "[processing failed: " + message + "]"
	tag, err := db.pool.Exec(ctx,
		`UPDATE phrases SET
		     status = 'pending_review',
		     last_error = $3,
		     notes = CASE WHEN notes = '' THEN $4 ELSE notes || E'\n\n' || $4 END,
		     processing_step = NULL,
		     current_job_id = NULL
		 WHERE id = $1 AND current_job_id = $2`,
		id, jobID, message, marker,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply failure: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AdvanceStep moves the progress marker strictly forward. Status never changes
// on a progress update.
func (db *DB) AdvanceStep(ctx context.Context, id uuid.UUID, jobID string, step phrase.Step) (bool, error) {
	if !step.Valid() {
		return false, nil
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE phrases SET processing_step = $3
		 WHERE id = $1 AND current_job_id = $2 AND `+stepOrderSQL+` < $4`,
		id, jobID, string(step), step.Order(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepTimedOut reaps phrases stuck in processing since before cutoff. Safe to
// run repeatedly and concurrently: the WHERE clause makes it idempotent.
func (db *DB) SweepTimedOut(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE phrases SET
		     status = 'failed',
		     last_error = 'job timed out',
		     current_job_id = NULL,
		     processing_step = NULL
		 WHERE status = 'processing' AND COALESCE(job_started_at, created_at) < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep timed-out jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Approve moves a phrase from pending_review to approved.
func (db *DB) Approve(ctx context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE phrases SET status = 'approved', reviewed_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = 'pending_review'
		 RETURNING `+phraseColumns,
		id, owner,
	)
	p, err := scanPhrase(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to approve phrase: %w", err)
	}

	// Distinguish "not yours / missing" from "wrong state".
	if _, getErr := db.Get(ctx, owner, id); getErr != nil {
		return nil, getErr
	}
	return nil, phrase.ErrInvalidTransition
}

// MarkExported marks approved phrases as exported. Already-exported phrases
// are re-returned without change (idempotent); excluded phrases are skipped.
// An empty ids slice exports everything approved for the owner.
func (db *DB) MarkExported(ctx context.Context, owner string, ids []uuid.UUID) ([]phrase.Phrase, error) {
	query := `UPDATE phrases SET
	     status = 'exported',
	     exported_at = COALESCE(exported_at, NOW())
	 WHERE owner_id = $1 AND status IN ('approved', 'exported')
	   AND exclude_from_export = FALSE`
	args := []any{owner}

	if len(ids) > 0 {
		query += " AND id = ANY($2)"
		args = append(args, ids)
	}
	query += " RETURNING " + phraseColumns

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark exported: %w", err)
	}
	defer rows.Close()

	var phrases []phrase.Phrase
	for rows.Next() {
		p, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phrase: %w", err)
		}
		phrases = append(phrases, *p)
	}
	return phrases, rows.Err()
}
