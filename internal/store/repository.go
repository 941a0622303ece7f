/**
 * @description
 * This file defines the storage contract for BudgetLink user records. Two
 * implementations exist: the TiDB Cloud Data API client used in production and a
 * PostgreSQL repository for self-hosted deployments.
 */
package store

import (
	"context"

	"github.com/budgetlink/budgetlink-service/internal/domain"
)

// UserRepository defines the interface for user and enrollment storage.
type UserRepository interface {
	// CreateUser stores a new user and returns it with its assigned ID.
	CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error)
	// FindUserByEmail returns domain.ErrUserNotFound when no user matches.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindUserByID returns domain.ErrUserNotFound when no user matches.
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	// AppendEnrollments adds enrollments to the user's list, keeping existing ones.
	AppendEnrollments(ctx context.Context, userID string, enrollments []domain.Enrollment) (*domain.User, error)
}
