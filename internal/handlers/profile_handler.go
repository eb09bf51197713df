package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

type ProfileHandler struct {
	profiles *services.ProfileService
	log      logger.Logger
}

func NewProfileHandler(profiles *services.ProfileService, log logger.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, log: log.With(zap.String("handler", "profile"))}
}

// GetProfile returns the display fields the gate loaded for this request.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	view := models.NewProfileView(sess.UserID(), sess.Identity.Email, sess.Profile)
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(view))
}

func (h *ProfileHandler) UpdateAboutMe(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.UpdateAboutMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AboutMe == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	text, err := h.profiles.UpdateAboutMe(ctx, sess.UserID(), *req.AboutMe)
	if err != nil {
		h.log.Error("update about me failed", err, zap.String("user", sess.UserID()))
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	if sess.Profile != nil {
		sess.Profile.AboutMe = text
	}
	writeJSON(w, http.StatusOK, models.NewMessageResponse("About Me updated successfully!",
		models.NewProfileView(sess.UserID(), sess.Identity.Email, sess.Profile)))
}
