package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/server/middleware"
)

// handleGetFile streams a binary artifact after layered authorization:
//
//  1. a present, unexpired, valid capability signature for the exact
//     requested key allows access;
//  2. otherwise an authenticated identity that owns the key's namespace
//     allows access, but never for legacy keys, which predate namespacing
//     and are reachable only through signed capabilities;
//  3. otherwise the request is denied.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("key")
	if raw == "" {
		s.errorResponse(w, http.StatusBadRequest, "file key is required")
		return
	}
	key := blob.ParseKey(raw)

	if !s.authorizeFile(r, raw, key) {
		if middleware.BearerToken(r) == "" && r.URL.Query().Get("sig") == "" {
			s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.errorResponse(w, http.StatusForbidden, "Forbidden")
		return
	}

	obj, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "File not found")
			return
		}
		log.Printf("failed to read object %s: %v", key, err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Printf("failed to stream object %s: %v", key, err)
	}
}

func (s *Server) authorizeFile(r *http.Request, raw string, key blob.Key) bool {
	// (a) capability signature over the exact requested key.
	q := r.URL.Query()
	if sig := q.Get("sig"); sig != "" {
		expiry, err := strconv.ParseInt(q.Get("e"), 10, 64)
		if err == nil && s.signer.Verify(raw, expiry, sig, time.Now()) {
			return true
		}
		// Invalid or expired signature falls through to identity auth.
	}

	// (b) authenticated namespace match. Legacy keys never match: exposing
	// pre-namespacing objects to every authenticated caller would leak data
	// that was written before tenants existed.
	token := middleware.BearerToken(r)
	if token == "" {
		return false
	}
	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return false
	}
	return key.OwnedBy(claims.GetOwnerID())
}
