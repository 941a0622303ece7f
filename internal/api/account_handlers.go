package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/budgetlink/budgetlink-service/internal/app"
	"github.com/budgetlink/budgetlink-service/internal/domain"
)

// AccountHandler holds the dependencies for enrollment and transaction handlers.
type AccountHandler struct {
	enrollments  *app.EnrollmentService
	transactions *app.TransactionService
	logger       *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(enrollments *app.EnrollmentService, transactions *app.TransactionService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{enrollments: enrollments, transactions: transactions, logger: logger}
}

// EnrollRequest is the body of PUT /api/account/enroll.
type EnrollRequest struct {
	UserID      string          `json:"userId"`
	Enrollments json.RawMessage `json:"enrollments"`
}

type enrollmentData struct {
	UserID      string              `json:"userId"`
	Enrollments []domain.Enrollment `json:"enrollments"`
}

type messageResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Enroll handles PUT /api/account/enroll.
func (h *AccountHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || len(req.Enrollments) == 0 || string(req.Enrollments) == "null" {
		writeJSONError(w, http.StatusBadRequest, "userId and enrollments are required")
		return
	}
	if !h.authorized(w, r, req.UserID) {
		return
	}

	user, err := h.enrollments.Enroll(r.Context(), req.UserID, req.Enrollments)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error while updating user enrollments")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "User enrollments updated successfully",
		Data:    enrollmentData{UserID: user.ID, Enrollments: user.Enrollments},
	})
}

// GetData handles GET /api/account/getData.
func (h *AccountHandler) GetData(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !h.authorized(w, r, userID) {
		return
	}

	txns, err := h.transactions.GetAllTransactions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Error retrieving transactions")
		return
	}

	if len(txns) == 0 {
		writeJSON(w, http.StatusOK, messageResponse{
			Message: "No transactions found for the enrolled accounts",
			Data:    []domain.Transaction{},
		})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Transactions retrieved successfully",
		Data:    txns,
	})
}

// authorized checks that the token's user matches the requested user.
func (h *AccountHandler) authorized(w http.ResponseWriter, r *http.Request, userID string) bool {
	if GetUserIDFromContext(r.Context()) != userID {
		writeJSONError(w, http.StatusForbidden, "Token does not grant access to this user")
		return false
	}
	return true
}
