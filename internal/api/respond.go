package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/budgetlink/budgetlink-service/internal/app"
	"github.com/budgetlink/budgetlink-service/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError translates a service error into the JSON error envelope.
// fallback is the message used for unclassified failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var rateErr *app.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		writeJSONError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
	case errors.Is(err, domain.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, domain.ErrInvalidToken):
		writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrNoEnrollments):
		writeJSONError(w, http.StatusNotFound, "No valid enrollments found for this user")
	case errors.Is(err, domain.ErrEmailTaken):
		writeJSONError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, domain.ErrAggregatorOffline):
		logger.ErrorContext(r.Context(), "aggregator not configured", "path", r.URL.Path)
		writeJSONError(w, http.StatusInternalServerError, "Teller API credentials not properly configured")
	default:
		logger.ErrorContext(r.Context(), fallback, "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, fallback)
	}
}
