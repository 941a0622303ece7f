package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/budgetlink/budgetlink-service/internal/store"
	"github.com/budgetlink/budgetlink-service/pkg/rabbitmq"
)

// EnrollmentService persists and reads a user's bank-link enrollments.
type EnrollmentService struct {
	repo      store.UserRepository
	publisher rabbitmq.Publisher
	logger    *slog.Logger
}

// NewEnrollmentService creates a new instance of EnrollmentService.
func NewEnrollmentService(repo store.UserRepository, publisher rabbitmq.Publisher, logger *slog.Logger) *EnrollmentService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = &rabbitmq.NoopPublisher{Logger: logger}
	}
	return &EnrollmentService{repo: repo, publisher: publisher, logger: logger}
}

// Enroll appends the submitted enrollments to the user's stored list. The
// payload may be one object, a JSON-encoded string, or an array of either.
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, payload json.RawMessage) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || isEmptyPayload(payload) {
		return nil, fmt.Errorf("%w: userId and enrollments are required", domain.ErrValidation)
	}

	enrollments, errs := store.NormalizeEnrollments(payload)
	for _, err := range errs {
		s.logger.WarnContext(ctx, "dropping unparseable submitted enrollment", "user_id", userID, "error", err)
	}
	if len(enrollments) == 0 {
		return nil, fmt.Errorf("%w: no valid enrollment in request", domain.ErrValidation)
	}

	user, err := s.repo.AppendEnrollments(ctx, userID, enrollments)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "enrollments linked", "user_id", userID, "added", len(enrollments), "total", len(user.Enrollments))

	institutions := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		institutions = append(institutions, e.InstitutionName())
	}
	event := domain.EnrollmentLinkedEvent{UserID: userID, Institutions: institutions, OccurredAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, domain.EnrollmentLinkedRoutingKey, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish enrollment.linked", "user_id", userID, "error", err)
	}
	return user, nil
}

// GetEnrollments returns the user's normalized enrollments. A user whose list
// normalizes to nothing yields domain.ErrNoEnrollments.
func (s *EnrollmentService) GetEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Enrollments) == 0 {
		return nil, domain.ErrNoEnrollments
	}
	return user.Enrollments, nil
}

func isEmptyPayload(payload json.RawMessage) bool {
	s := strings.TrimSpace(string(payload))
	return s == "" || s == "null" || s == `""` || s == "[]" || s == "{}"
}
