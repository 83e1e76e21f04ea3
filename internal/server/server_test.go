package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankicapture/backend/internal/blob"
	"github.com/ankicapture/backend/internal/config"
	"github.com/ankicapture/backend/internal/enrich"
	"github.com/ankicapture/backend/internal/jobs"
	"github.com/ankicapture/backend/internal/phrase"
	"github.com/ankicapture/backend/internal/sign"
	"github.com/ankicapture/backend/internal/testsupport"
)

const (
	testJWTSecret      = "test-secret-key-for-jwt-signing-minimum-32-bytes"
	testCallbackSecret = "test-callback-secret"
)

type fakeTrigger struct {
	jobs []enrich.Job
	err  error
}

func (f *fakeTrigger) Dispatch(_ context.Context, job enrich.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type testServer struct {
	*Server
	phrases *testsupport.MemStore
	objects *blob.MemoryStore
	trigger *fakeTrigger
	sig     *sign.Signer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	phrases := testsupport.NewMemStore()
	objects := blob.NewMemoryStore()
	signer := sign.New("test-signing-key")
	trigger := &fakeTrigger{}
	dispatcher := jobs.NewDispatcher(phrases, trigger, signer, "https://api.example.com", testCallbackSecret)

	srv, err := New(Config{
		Port:           0,
		Store:          phrases,
		Blobs:          objects,
		Signer:         signer,
		Dispatcher:     dispatcher,
		JWT:            &config.JWTConfig{Secret: testJWTSecret},
		CallbackSecret: testCallbackSecret,
	})
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)

	return &testServer{Server: srv, phrases: phrases, objects: objects, trigger: trigger, sig: signer}
}

// mintToken issues a token the way the external identity provider would.
func mintToken(t *testing.T, owner string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

// seedPhrase stores a pending_review phrase owned by owner and returns it.
func (ts *testServer) seedPhrase(owner string, mutate func(*phrase.Phrase)) *phrase.Phrase {
	p := &phrase.Phrase{
		ID:         uuid.New(),
		OwnerID:    &owner,
		Status:     phrase.StatusPendingReview,
		SourceKind: phrase.SourceText,
		SourceText: "guten Morgen",
		Language:   "de",
		CreatedAt:  time.Now(),
	}
	if mutate != nil {
		mutate(p)
	}
	ts.phrases.Seed(p)
	return p
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{
		Store:      testsupport.NewMemStore(),
		Blobs:      blob.NewMemoryStore(),
		Signer:     sign.New("k"),
		Dispatcher: jobs.NewDispatcher(testsupport.NewMemStore(), &fakeTrigger{}, sign.New("k"), "", ""),
	})
	assert.Error(t, err, "JWT config is required")
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.handleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRoutes_AuthRequired(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.routes()

	r := httptest.NewRequest(http.MethodGet, "/phrases", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/phrases", nil)
	r.Header.Set("Authorization", "Bearer "+mintToken(t, "u1"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_RejectsForeignSignature(t *testing.T) {
	ts := newTestServer(t)
	handler := ts.routes()

	// Signed with a different secret than the server validates against.
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/phrases", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
