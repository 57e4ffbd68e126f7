package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/media"
	"github.com/clipstream/backend/internal/repositories"
)

// envelope is the uniform success payload. The HTTP status is mirrored in the
// body so frontend clients can branch without inspecting transport details.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func respond(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx).Error("encode response", "error", err)
	}
}

func fail(ctx context.Context, w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := errorEnvelope{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     []string{},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx).Error("encode error response", "error", err)
	}
}

// failFromError maps sentinel errors onto the envelope taxonomy. Unknown
// errors become an opaque 500 and are logged with their cause.
func failFromError(ctx context.Context, w http.ResponseWriter, err error, notFoundMsg, conflictMsg string) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		fail(ctx, w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, repositories.ErrConflict):
		fail(ctx, w, http.StatusConflict, conflictMsg)
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
		fail(ctx, w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, media.ErrProbeFailed):
		fail(ctx, w, http.StatusBadRequest, "unreadable video file")
	default:
		logging.FromContext(ctx).Error("request failed", "error", err)
		fail(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}
