package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/budgetlink/budgetlink-service/internal/app"
	"github.com/budgetlink/budgetlink-service/internal/domain"
)

// UserHandler holds the dependencies for registration and login.
type UserHandler struct {
	service *app.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service *app.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// registeredUser is the echo returned by registration; a new user has no
// enrollments to show.
type registeredUser struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type registerResponse struct {
	Message string         `json:"message"`
	User    registeredUser `json:"user"`
}

type loginResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    domain.PublicUser `json:"user"`
}

// Register handles POST /api/user/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Database operation failed")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "User registered successfully",
		User:    registeredUser{UserID: user.ID, Email: user.Email, Name: user.Name},
	})
}

// Login handles POST /api/user/login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Authentication service error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User.Public(),
	})
}
