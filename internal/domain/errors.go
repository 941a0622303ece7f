package domain

import "errors"

var (
	// request validation
	ErrValidation = errors.New("validation failed")

	// lookups
	ErrUserNotFound  = errors.New("user not found")
	ErrNoEnrollments = errors.New("no valid enrollments found for this user")

	// authentication and authorization
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many attempts")

	ErrEmailTaken = errors.New("email already registered")

	// external services
	ErrUpstream          = errors.New("upstream service error")
	ErrAggregatorOffline = errors.New("teller API credentials not properly configured")
)
