package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

type stubProfiles struct {
	profiles map[string]*models.Profile
	err      error
}

func (s stubProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, services.ErrProfileNotFound
	}
	return p, nil
}

type gateFixture struct {
	gate    *SessionGate
	tokens  *session.TokenManager
	revoker *session.MemoryRevoker
}

func newGate(profiles ProfileGetter) *gateFixture {
	f := &gateFixture{
		tokens:  session.NewTokenManager("gate-secret", time.Hour),
		revoker: session.NewMemoryRevoker(),
	}
	f.gate = NewSessionGate(f.tokens, f.revoker, profiles, logger.Nop())
	return f
}

func (f *gateFixture) token(t *testing.T, uid string) (string, *session.Claims) {
	t.Helper()
	tok, claims, err := f.tokens.Issue(session.Identity{UserID: uid, Email: uid + "@x.io"})
	require.NoError(t, err)
	return tok, claims
}

func echoSession(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if !assert.NotNil(t, sess) {
			return
		}
		name := ""
		if sess.Profile != nil {
			name = sess.Profile.FirstName
		}
		writeJSON(w, http.StatusOK, map[string]string{"user": sess.UserID(), "name": name})
	})
}

func TestSessionGate_AllowsBearerAndCookie(t *testing.T) {
	f := newGate(stubProfiles{profiles: map[string]*models.Profile{"u1": {ID: "u1", FirstName: "Ana"}}})
	h := f.gate.Require(echoSession(t))
	tok, _ := f.token(t, "u1")

	for _, setAuth := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) },
		func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok}) },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		setAuth(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "u1", body["user"])
		assert.Equal(t, "Ana", body["name"])
	}
}

func TestSessionGate_Denials(t *testing.T) {
	f := newGate(stubProfiles{profiles: map[string]*models.Profile{"u1": {ID: "u1", FirstName: "Ana"}}})
	h := f.gate.Require(echoSession(t))

	_, claims := f.token(t, "u1")
	orphan, _ := f.token(t, "no-profile")
	revoked, revokedClaims := f.token(t, "u1")
	require.NoError(t, f.revoker.Revoke(context.Background(), revokedClaims.ID, revokedClaims.Expiry()))
	require.NotEqual(t, claims.ID, revokedClaims.ID)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong scheme", "Basic abc"},
		{"no profile", "Bearer " + orphan},
		{"revoked", "Bearer " + revoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var resp models.APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, models.PageIndex, resp.Redirect)
		})
	}
}

func TestSessionGate_RedirectsPages(t *testing.T) {
	f := newGate(stubProfiles{})
	req := httptest.NewRequest(http.MethodGet, "/Profile.html", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()

	f.gate.Require(echoSession(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/index.html", rec.Header().Get("Location"))
}

func TestSessionGate_ProfileErrorKeepsSession(t *testing.T) {
	f := newGate(stubProfiles{err: errors.New("backend down")})
	tok, _ := f.token(t, "u1")
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	f.gate.Require(echoSession(t)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["user"])
	assert.Empty(t, body["name"])
}

func TestMetrics_PassesThrough(t *testing.T) {
	h := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
