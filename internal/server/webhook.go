package server

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/enrich"
	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/schemas"
	"github.com/ankicapture/backend/internal/server/middleware"
)

// WebhookPayload is what the enrichment service POSTs back: a terminal result
// (success or business failure) or an in-flight progress update.
type WebhookPayload struct {
	PhraseID  string          `json:"phrase_id"`
	JobID     string          `json:"job_id,omitempty"`
	Type      string          `json:"type,omitempty"` // "progress" for step updates
	Step      string          `json:"step,omitempty"`
	Success   bool            `json:"success"`
	AudioOnly bool            `json:"audio_only,omitempty"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type webhookResponse struct {
	Received bool `json:"received"`
	Ignored  bool `json:"ignored,omitempty"`
}

// secretEqual compares shared secrets in constant time. Hashing first keeps
// the comparison length-independent.
func secretEqual(presented, expected string) bool {
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// handleWebhook ingests a delivery from the enrichment service.
//
// Deliveries may arrive duplicated, late, or out of order. The idempotency
// gate is the job identity: only a delivery carrying the phrase's current
// job_id mutates anything, and accepting a terminal delivery clears the slot,
// so every other delivery is acknowledged and dropped. Business-level failure
// is not a protocol error; the endpoint still returns 200 for it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !secretEqual(middleware.BearerToken(r), s.callbackSecret) {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if payload.PhraseID == "" {
		s.errorResponse(w, http.StatusBadRequest, "phrase_id is required")
		return
	}
	id, err := uuid.Parse(payload.PhraseID)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid phrase_id format")
		return
	}

	// Callbacks carry no user identity; resolve without owner context.
	p, err := s.store.GetForCallback(r.Context(), id)
	if err != nil {
		if errors.Is(err, phrase.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Phrase not found")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	// Identity gate. A cleared slot matches nothing: results for reaped or
	// superseded jobs are dropped here rather than accepted as wildcards.
	if payload.JobID == "" || !p.JobInFlight() || *p.CurrentJobID != payload.JobID {
		s.jsonResponse(w, http.StatusOK, webhookResponse{Received: true, Ignored: true})
		return
	}

	switch {
	case payload.Type == "progress":
		s.ingestProgress(w, r, p, payload)
	case payload.Success:
		s.ingestSuccess(w, r, p, payload)
	default:
		s.ingestFailure(w, r, p, payload)
	}
}

// ingestProgress advances the processing step, forward only, never touching
// status.
func (s *Server) ingestProgress(w http.ResponseWriter, r *http.Request, p *phrase.Phrase, payload WebhookPayload) {
	step := phrase.Step(payload.Step)
	if !step.Valid() {
		s.jsonResponse(w, http.StatusOK, webhookResponse{Received: true, Ignored: true})
		return
	}

	applied, err := s.store.AdvanceStep(r.Context(), p.ID, payload.JobID, step)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, webhookResponse{Received: true, Ignored: !applied})
}

// ingestSuccess validates the result against its schema, stores any inline
// audio, and merges the derived fields.
func (s *Server) ingestSuccess(w http.ResponseWriter, r *http.Request, p *phrase.Phrase, payload WebhookPayload) {
	if len(payload.Result) == 0 || bytes.Equal(payload.Result, []byte("null")) {
		s.errorResponse(w, http.StatusBadRequest, "result is required for a successful delivery")
		return
	}

	// Audio-only jobs only synthesize speech; their results carry no
	// translation or analysis and are held to the narrower schema.
	validateResult := schemas.ValidateEnrichmentResult
	if payload.AudioOnly {
		validateResult = schemas.ValidateAudioResult
	}
	if err := validateResult(payload.Result); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			s.errorResponse(w, http.StatusBadRequest, ve.Error())
			return
		}
		log.Printf("result validation error: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to validate result")
		return
	}

	var result enrich.Result
	if err := json.Unmarshal(payload.Result, &result); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid result: "+err.Error())
		return
	}

	audioKey, err := s.storeResultAudio(r, p, payload.JobID, result.AudioData)
	if err != nil {
		var be *badAudioError
		if errors.As(err, &be) {
			s.errorResponse(w, http.StatusBadRequest, be.Error())
			return
		}
		log.Printf("failed to store audio for phrase %s: %v", p.ID, err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to store audio artifact")
		return
	}
	if audioKey == "" && p.SourceKind == phrase.SourceAudio {
		// Audio submissions already are the audio; the original artifact is
		// the playable reference.
		audioKey = p.OriginalKey
	}

	var applied bool
	if payload.AudioOnly {
		applied, err = s.store.ApplyAudioResult(r.Context(), p.ID, payload.JobID, result.SourceText, audioKey)
	} else {
		vocab := make([]phrase.VocabEntry, 0, len(result.Vocab))
		for _, v := range result.Vocab {
			vocab = append(vocab, phrase.VocabEntry{
				Word:       v.Word,
				Root:       v.Root,
				Meaning:    v.Meaning,
				Gender:     v.Gender,
				Declension: v.Declension,
				Notes:      v.Notes,
			})
		}
		applied, err = s.store.ApplyResult(r.Context(), p.ID, payload.JobID, phrase.ResultMerge{
			SourceText:      result.SourceText,
			Transliteration: result.Transliteration,
			Translation:     result.Translation,
			Notes:           result.GrammarNotes,
			Vocab:           vocab,
			Language:        result.Language,
			Confidence:      result.Confidence,
			AudioKey:        audioKey,
		})
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, webhookResponse{Received: true, Ignored: !applied})
}

// ingestFailure records a business-level failure: the phrase goes to review
// with the error visible, and the delivery is still a 200.
func (s *Server) ingestFailure(w http.ResponseWriter, r *http.Request, p *phrase.Phrase, payload WebhookPayload) {
	message := payload.Error
	if message == "" {
		message = "enrichment failed"
	}

	applied, err := s.store.ApplyFailure(r.Context(), p.ID, payload.JobID, message)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, webhookResponse{Received: true, Ignored: !applied})
}

type badAudioError struct{ cause error }

func (e *badAudioError) Error() string { return "invalid audio_data: " + e.cause.Error() }
func (e *badAudioError) Unwrap() error { return e.cause }

// storeResultAudio decodes inline audio bytes and stores them as a new
// artifact. The key embeds the job identity, so even a pathological duplicate
// acceptance could not overwrite an earlier object. The namespace comes from
// the original artifact's key, falling back to the record's owner, then to a
// legacy key for orphaned phrases.
func (s *Server) storeResultAudio(r *http.Request, p *phrase.Phrase, jobID, audioData string) (string, error) {
	if audioData == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(audioData)
	if err != nil {
		return "", &badAudioError{cause: err}
	}

	filename := fmt.Sprintf("audio/%s-%s.mp3", p.ID, jobID)

	var key blob.Key
	switch {
	case p.OriginalKey != "" && !blob.ParseKey(p.OriginalKey).IsLegacy():
		key = blob.Namespaced(blob.ParseKey(p.OriginalKey).Owner(), filename)
	case p.OwnerID != nil && *p.OwnerID != "":
		key = blob.Namespaced(*p.OwnerID, filename)
	default:
		key = blob.Legacy(filename)
	}

	if err := s.blobs.Put(r.Context(), key, "audio/mpeg", bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store audio object: %w", err)
	}
	return key.String(), nil
}
