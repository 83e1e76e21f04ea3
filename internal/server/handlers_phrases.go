package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/enrich"
	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/server/middleware"
)

// maxUploadBytes bounds a single artifact upload (audio clips and photos).
const maxUploadBytes = 25 << 20

// CreatePhraseRequest is the body for POST /phrases (typed-text submission).
type CreatePhraseRequest struct {
	SourceText string `json:"source_text" validate:"required,min=1"`
	Language   string `json:"language,omitempty"`
}

// Validate validates the CreatePhraseRequest using the validator.
func (r *CreatePhraseRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdatePhraseRequest is the body for PATCH /phrases/{id}. Absent fields are
// left untouched.
type UpdatePhraseRequest struct {
	SourceText        *string             `json:"source_text,omitempty"`
	Transliteration   *string             `json:"transliteration,omitempty"`
	Translation       *string             `json:"translation,omitempty"`
	Notes             *string             `json:"notes,omitempty"`
	Vocab             []phrase.VocabEntry `json:"vocab,omitempty"`
	Language          *string             `json:"language,omitempty"`
	ExcludeFromExport *bool               `json:"exclude_from_export,omitempty"`
}

// RegenerateAudioRequest is the optional body for POST /phrases/{id}/regenerate-audio.
type RegenerateAudioRequest struct {
	SourceText string `json:"source_text,omitempty"`
	Language   string `json:"language,omitempty"`
}

// ExportRequest is the body for POST /export. Empty IDs export everything
// approved.
type ExportRequest struct {
	PhraseIDs []uuid.UUID `json:"phrase_ids,omitempty"`
}

// ExportResponse reports the phrases marked exported.
type ExportResponse struct {
	Exported int             `json:"exported"`
	Phrases  []phrase.Phrase `json:"phrases"`
}

func (s *Server) ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := middleware.GetOwnerID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return owner, true
}

func (s *Server) phraseIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid phrase ID format")
		return uuid.Nil, false
	}
	return id, true
}

// respondStoreError maps store errors onto the HTTP taxonomy. Not-owned and
// nonexistent phrases are the same 404.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, phrase.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "Phrase not found")
	case errors.Is(err, phrase.ErrInvalidTransition):
		s.errorResponse(w, http.StatusConflict, "Phrase is not in a state that allows this operation")
	default:
		log.Printf("store error: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Database error")
	}
}

// respondDispatchError surfaces a failed trigger call as an upstream error.
// The dispatcher has already rolled the job slot back.
func (s *Server) respondDispatchError(w http.ResponseWriter, err error) {
	var de *enrich.DispatchError
	if errors.As(err, &de) {
		log.Printf("dispatch failed: %v", de)
		s.errorResponse(w, http.StatusBadGateway, "Enrichment service is unavailable; the phrase can be retried")
		return
	}
	s.respondStoreError(w, err)
}

// handleCreatePhrase creates a phrase from typed text and dispatches its
// enrichment job.
func (s *Server) handleCreatePhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req CreatePhraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "source_text is required")
		return
	}

	p := &phrase.Phrase{
		ID:         uuid.New(),
		OwnerID:    &owner,
		Status:     phrase.StatusProcessing,
		SourceKind: phrase.SourceText,
		SourceText: strings.TrimSpace(req.SourceText),
		Language:   req.Language,
	}
	if err := s.store.Create(r.Context(), p); err != nil {
		s.respondStoreError(w, err)
		return
	}

	claimed, err := s.dispatcher.Dispatch(r.Context(), owner, p)
	if err != nil {
		s.respondDispatchError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, claimed)
}

// handleUploadPhrase creates a phrase from an uploaded image or audio clip.
// The artifact is stored under the uploader's namespace before dispatch.
func (s *Server) handleUploadPhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	kind := phrase.SourceKind(r.FormValue("source_kind"))
	if kind != phrase.SourceImage && kind != phrase.SourceAudio {
		s.errorResponse(w, http.StatusBadRequest, "source_kind must be image or audio")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	id := uuid.New()
	ext := path.Ext(header.Filename)
	key := blob.Namespaced(owner, fmt.Sprintf("uploads/%s%s", id, ext))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = blob.ContentTypeForKey(key.String())
	}
	if err := s.blobs.Put(r.Context(), key, contentType, file); err != nil {
		log.Printf("failed to store upload: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	p := &phrase.Phrase{
		ID:          id,
		OwnerID:     &owner,
		Status:      phrase.StatusProcessing,
		SourceKind:  kind,
		Language:    r.FormValue("language"),
		OriginalKey: key.String(),
	}
	if err := s.store.Create(r.Context(), p); err != nil {
		s.respondStoreError(w, err)
		return
	}

	claimed, err := s.dispatcher.Dispatch(r.Context(), owner, p)
	if err != nil {
		s.respondDispatchError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, claimed)
}

// handleListPhrases lists the caller's phrases with optional filters.
func (s *Server) handleListPhrases(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}

	filters := phrase.ListFilters{Language: r.URL.Query().Get("language")}
	if v := r.URL.Query().Get("status"); v != "" {
		status := phrase.Status(v)
		if !status.Valid() {
			s.errorResponse(w, http.StatusBadRequest, "Unknown status filter: "+v)
			return
		}
		filters.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}

	phrases, err := s.store.List(r.Context(), owner, filters)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if phrases == nil {
		phrases = []phrase.Phrase{}
	}
	s.jsonResponse(w, http.StatusOK, phrases)
}

// handleGetPhrase returns one phrase.
func (s *Server) handleGetPhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := s.store.Get(r.Context(), owner, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleUpdatePhrase applies review-time edits.
func (s *Server) handleUpdatePhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	var req UpdatePhraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, err := s.store.Update(r.Context(), owner, id, phrase.FieldUpdate{
		SourceText:        req.SourceText,
		Transliteration:   req.Transliteration,
		Translation:       req.Translation,
		Notes:             req.Notes,
		Vocab:             req.Vocab,
		Language:          req.Language,
		ExcludeFromExport: req.ExcludeFromExport,
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleDeletePhrase deletes the phrase and best-effort-deletes its artifacts.
func (s *Server) handleDeletePhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := s.store.Delete(r.Context(), owner, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	for _, raw := range []string{p.OriginalKey, p.AudioKey} {
		if raw == "" {
			continue
		}
		if err := s.blobs.Delete(r.Context(), blob.ParseKey(raw)); err != nil {
			log.Printf("failed to delete artifact %s for phrase %s: %v", raw, id, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleApprovePhrase moves a reviewed phrase to approved.
func (s *Server) handleApprovePhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := s.store.Approve(r.Context(), owner, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleRetryPhrase supersedes any in-flight job and re-dispatches from the
// stored original input.
func (s *Server) handleRetryPhrase(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	p, err := s.dispatcher.Retry(r.Context(), owner, id)
	if err != nil {
		s.respondDispatchError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleRegenerateAudio re-dispatches only the speech synthesis stage.
func (s *Server) handleRegenerateAudio(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := s.phraseIDFromPath(w, r)
	if !ok {
		return
	}

	var req RegenerateAudioRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	p, err := s.dispatcher.RegenerateAudio(r.Context(), owner, id, req.SourceText, req.Language)
	if err != nil {
		s.respondDispatchError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleExport marks approved phrases exported. Re-exporting an exported
// phrase is a no-op, not an error.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req ExportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	phrases, err := s.store.MarkExported(r.Context(), owner, req.PhraseIDs)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if phrases == nil {
		phrases = []phrase.Phrase{}
	}
	s.jsonResponse(w, http.StatusOK, ExportResponse{Exported: len(phrases), Phrases: phrases})
}
