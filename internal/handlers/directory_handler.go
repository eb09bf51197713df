package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

const SearchTokenHeader = "X-Search-Token"

type DirectoryHandler struct {
	directory *services.DirectoryService
	log       logger.Logger
}

func NewDirectoryHandler(directory *services.DirectoryService, log logger.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, log: log.With(zap.String("handler", "directory"))}
}

// ListUsers serves the first page, or a search when q is present. Both take
// a search token, so a page load also supersedes an older search.
func (h *DirectoryHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	term := r.URL.Query().Get("q")

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	res, err := h.directory.Search(ctx, sess.UserID(), term)
	if errors.Is(err, services.ErrSuperseded) {
		// 409 tells the page to drop this response; a newer one is coming.
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.log.Error("list users failed", err, zap.String("user", sess.UserID()), zap.String("q", term))
		msg := "Failed to search users. Please try again."
		if term == "" {
			msg = "Failed to load users. Please try again."
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	w.Header().Set(SearchTokenHeader, strconv.FormatUint(res.Token, 10))
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(res.Users))
}

func (h *DirectoryHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId")
		return
	}

	ctx, cancel := requestContext(r, requestTimeout)
	defer cancel()

	detail, err := h.directory.Detail(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.log.Error("load user failed", err, zap.String("target", userID))
		writeError(w, http.StatusInternalServerError, "Failed to load users. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(detail))
}
