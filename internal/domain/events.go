package domain

import "time"

// Routing keys published on the events exchange.
const (
	UserRegisteredRoutingKey   = "user.registered"
	EnrollmentLinkedRoutingKey = "enrollment.linked"
)

// UserRegisteredEvent is published after a user record is created.
type UserRegisteredEvent struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EnrollmentLinkedEvent is published after enrollments are appended to a user.
type EnrollmentLinkedEvent struct {
	UserID       string    `json:"user_id"`
	Institutions []string  `json:"institutions"`
	OccurredAt   time.Time `json:"occurred_at"`
}
