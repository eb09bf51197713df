package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

// SessionCookie carries the session token for page requests.
const SessionCookie = "session"

var errNoSession = errors.New("no session")

// ProfileGetter is the profile read used by the gate.
type ProfileGetter interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// SessionGate resolves the caller's session and profile once per request.
type SessionGate struct {
	tokens   *session.TokenManager
	revoker  session.Revoker
	profiles ProfileGetter
	log      logger.Logger
}

func NewSessionGate(tokens *session.TokenManager, revoker session.Revoker, profiles ProfileGetter, log logger.Logger) *SessionGate {
	return &SessionGate{tokens: tokens, revoker: revoker, profiles: profiles, log: log}
}

// Require lets a request through only with a valid session whose profile
// exists. Everyone else is sent back to the index page.
func (g *SessionGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.Resolve(r)
		if err != nil {
			g.deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

// Resolve authenticates r. A missing profile is treated as no session; any
// other profile read error leaves Session.Profile nil.
func (g *SessionGate) Resolve(r *http.Request) (*session.Session, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, errNoSession
	}

	claims, err := g.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := g.revoker.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		g.log.Warn("revocation check failed", zap.String("user", claims.UserID), zap.Error(err))
	}
	if revoked {
		return nil, errNoSession
	}

	sess := &session.Session{
		Identity:  claims.Identity(),
		TokenID:   claims.ID,
		ExpiresAt: claims.Expiry(),
	}

	prof, err := g.profiles.GetProfile(r.Context(), claims.UserID)
	switch {
	case errors.Is(err, services.ErrProfileNotFound):
		return nil, err
	case err != nil:
		g.log.Error("profile fetch failed", err, zap.String("user", claims.UserID))
	default:
		sess.Profile = prof
	}
	return sess, nil
}

func (g *SessionGate) deny(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/"+models.PageIndex, http.StatusFound)
		return
	}
	resp := models.NewRedirectResponse(false, models.PageIndex, nil)
	resp.Error = "Unauthorized"
	writeJSON(w, http.StatusUnauthorized, resp)
}

// TokenFromRequest reads a Bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
