package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/uniapp/backend/internal/models"
)

const (
	requestTimeout = 10 * time.Second
	uploadTimeout  = 60 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError sends the failure envelope with message as the page's status line.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.NewErrorResponse(message))
}

// requestContext bounds the downstream calls made for r.
func requestContext(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
