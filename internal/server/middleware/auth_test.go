package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	owner string
	err   error
}

type fakeClaims struct{ owner string }

func (c fakeClaims) GetOwnerID() string { return c.owner }

func (v fakeValidator) ValidateToken(tokenString string) (OwnerIDGetter, error) {
	if v.err != nil {
		return nil, v.err
	}
	return fakeClaims{owner: v.owner}, nil
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"BEARER abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"Bearer a b", ""},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, BearerToken(r), "header=%q", tc.header)
	}
}

func TestAuthMiddleware_PassesOwnerThrough(t *testing.T) {
	mw := AuthMiddleware(fakeValidator{owner: "u1"})

	var gotOwner string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := GetOwnerID(r)
		require.NoError(t, err)
		gotOwner = owner
	}))

	r := httptest.NewRequest(http.MethodGet, "/phrases", nil)
	r.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", gotOwner)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	mw := AuthMiddleware(fakeValidator{owner: "u1"})
	handler := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	r := httptest.NewRequest(http.MethodGet, "/phrases", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	mw := AuthMiddleware(fakeValidator{err: fmt.Errorf("bad signature")})
	handler := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/phrases", nil)
	r.Header.Set("Authorization", "Bearer bogus")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOwnerID_NotSet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetOwnerID(r)
	assert.Error(t, err)
}

func TestWithOwnerID(t *testing.T) {
	r := WithOwnerID(httptest.NewRequest(http.MethodGet, "/", nil), "u1")
	owner, err := GetOwnerID(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
}
