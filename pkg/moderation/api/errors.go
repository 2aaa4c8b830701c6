package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-moderation/pkg/moderation"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
}

// StatusFor maps an error onto an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, moderation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, moderation.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, moderation.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, moderation.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
		message = http.StatusText(status)
	} else {
		slog.Info("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Message:   message,
		Details:   "uri=" + r.URL.Path,
	})
}
