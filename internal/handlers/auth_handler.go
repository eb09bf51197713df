package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/middleware"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

type AuthHandler struct {
	accounts     *services.AccountService
	gate         *middleware.SessionGate
	secureCookie bool
	log          logger.Logger
}

func NewAuthHandler(accounts *services.AccountService, gate *middleware.SessionGate, secureCookie bool, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		gate:         gate,
		secureCookie: secureCookie,
		log:          log.With(zap.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Normalize()
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	prof, err := h.accounts.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			writeError(w, http.StatusConflict, "Email Address Already Exists !!!")
			return
		}
		h.log.Error("register failed", err, zap.String("email", req.Email))
		writeError(w, http.StatusInternalServerError, "unable to create User")
		return
	}

	resp := models.NewRedirectResponse(true, models.PageLogin, prof)
	resp.Message = "Account created"
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	auth, err := h.accounts.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Incorrect Email or Password")
			return
		}
		h.log.Warn("login failed", zap.String("email", req.Email), zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Account does not Exist")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    auth.Token,
		Path:     "/",
		Expires:  auth.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, models.NewRedirectResponse(true, models.PageServices, auth))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	if err := h.accounts.Logout(ctx, sess); err != nil {
		h.log.Error("logout failed", err, zap.String("user", sess.UserID()))
		writeError(w, http.StatusInternalServerError, "Failed to sign out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, models.NewRedirectResponse(true, models.PageIndex, nil))
}

// State reports the caller's current auth state without requiring a session.
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	sess, err := h.gate.Resolve(r)
	if err != nil {
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(session.SignedOut("")))
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(session.SignedIn(sess.UserID())))
}
