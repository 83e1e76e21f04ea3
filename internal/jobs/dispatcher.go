// Package jobs orchestrates enrichment jobs: dispatch, retry, audio
// regeneration, and timeout sweeping.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ankicapture/backend/internal/enrich"
	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/sign"
)

// signedURLTTL bounds how long the enrichment service can fetch an uploaded
// artifact. Pipeline runs finish in minutes; an hour leaves room for its
// internal retries.
const signedURLTTL = time.Hour

// Trigger starts a job on the external enrichment service.
type Trigger interface {
	Dispatch(ctx context.Context, job enrich.Job) error
}

// Dispatcher claims a phrase's job slot and triggers the enrichment service.
type Dispatcher struct {
	store          phrase.Store
	trigger        Trigger
	signer         *sign.Signer
	publicBaseURL  string
	callbackSecret string
}

// NewDispatcher wires a dispatcher. publicBaseURL is this service's externally
// reachable base URL, used for both the callback URL and signed artifact URLs.
func NewDispatcher(store phrase.Store, trigger Trigger, signer *sign.Signer, publicBaseURL, callbackSecret string) *Dispatcher {
	return &Dispatcher{
		store:          store,
		trigger:        trigger,
		signer:         signer,
		publicBaseURL:  publicBaseURL,
		callbackSecret: callbackSecret,
	}
}

type dispatchOptions struct {
	forceProcessing  bool
	audioOnly        bool
	textOverride     string
	languageOverride string
}

// Dispatch starts the initial enrichment job for a freshly created phrase.
func (d *Dispatcher) Dispatch(ctx context.Context, owner string, p *phrase.Phrase) (*phrase.Phrase, error) {
	return d.dispatch(ctx, owner, p, dispatchOptions{forceProcessing: true})
}

// Retry supersedes any in-flight job and re-dispatches from the phrase's
// stored original input. A phrase the owner does not hold is indistinguishable
// from a missing one.
func (d *Dispatcher) Retry(ctx context.Context, owner string, id uuid.UUID) (*phrase.Phrase, error) {
	p, err := d.store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, owner, p, dispatchOptions{forceProcessing: true})
}

// RegenerateAudio re-dispatches only the speech-synthesis stage. The phrase
// keeps its status: an approved card stays approved while its audio is redone.
func (d *Dispatcher) RegenerateAudio(ctx context.Context, owner string, id uuid.UUID, textOverride, languageOverride string) (*phrase.Phrase, error) {
	p, err := d.store.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, owner, p, dispatchOptions{
		audioOnly:        true,
		textOverride:     textOverride,
		languageOverride: languageOverride,
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, owner string, p *phrase.Phrase, opts dispatchOptions) (*phrase.Phrase, error) {
	jobID := uuid.New().String()

	claimed, err := d.store.BeginJob(ctx, owner, p.ID, jobID, opts.forceProcessing)
	if err != nil {
		return nil, err
	}

	job := enrich.Job{
		PhraseID:       p.ID.String(),
		SourceKind:     string(claimed.SourceKind),
		Language:       claimed.Language,
		CallbackURL:    d.publicBaseURL + "/webhook/enrichment",
		JobID:          jobID,
		CallbackSecret: d.callbackSecret,
		AudioOnly:      opts.audioOnly,
	}
	if opts.languageOverride != "" {
		job.Language = opts.languageOverride
	}

	if err := d.setJobInput(&job, claimed, opts); err != nil {
		return nil, d.rollback(ctx, claimed, jobID, err)
	}

	if err := d.trigger.Dispatch(ctx, job); err != nil {
		return nil, d.rollback(ctx, claimed, jobID, err)
	}

	return claimed, nil
}

// setJobInput picks the job's input: a capability-signed URL for file-based
// phrases, inline text otherwise. Audio-only jobs always carry text.
func (d *Dispatcher) setJobInput(job *enrich.Job, p *phrase.Phrase, opts dispatchOptions) error {
	if opts.audioOnly {
		job.SourceText = p.SourceText
		if opts.textOverride != "" {
			job.SourceText = opts.textOverride
		}
		if job.SourceText == "" {
			return &enrich.DispatchError{Message: "phrase has no source text to synthesize"}
		}
		return nil
	}

	if p.SourceKind != phrase.SourceText && p.OriginalKey != "" {
		signedURL := d.signer.SignedURL(d.publicBaseURL, p.OriginalKey, signedURLTTL, time.Now())
		if signedURL == "" {
			// Fail closed: without a signing key the external service has no
			// authorized way to fetch the artifact.
			return &enrich.DispatchError{Message: "file signing key not configured; cannot dispatch file-based job"}
		}
		job.FileURL = signedURL
		return nil
	}

	if p.SourceText == "" {
		return &enrich.DispatchError{Message: "phrase has neither an artifact nor source text"}
	}
	job.SourceText = p.SourceText
	return nil
}

// rollback reverts the job slot after a dispatch that never reached the
// service. The phrase must land in a terminal, retryable state immediately;
// waiting for the sweeper would strand it in processing for the full timeout.
func (d *Dispatcher) rollback(ctx context.Context, p *phrase.Phrase, jobID string, cause error) error {
	// A phrase that has content to review goes back to review; a phrase that
	// never completed a job has nothing to show and is failed.
	status := phrase.StatusFailed
	if p.Translation != "" || p.ReviewedAt != nil {
		status = phrase.StatusPendingReview
	}

	if err := d.store.ClearJob(ctx, p.ID, jobID, status, cause.Error()); err != nil {
		log.Printf("failed to roll back job %s for phrase %s: %v", jobID, p.ID, err)
	}

	var de *enrich.DispatchError
	if errors.As(cause, &de) {
		return de
	}
	return fmt.Errorf("dispatch failed: %w", cause)
}
