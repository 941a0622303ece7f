/**
 * @description
 * This file defines the user model for BudgetLink along with the request and
 * response payloads used by the registration and login endpoints.
 *
 * @notes
 * - The user ID is assigned by the backing store and treated as an opaque string.
 * - PasswordHash never leaves the service; PublicUser is what clients see.
 */
package domain

// User represents a BudgetLink account holder as held by the user store.
type User struct {
	ID           string       `json:"userId"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Name         string       `json:"name"`
	Enrollments  []Enrollment `json:"enrollments"`
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	UserID      string       `json:"userId,omitempty"`
	Email       string       `json:"email"`
	Name        string       `json:"name,omitempty"`
	Enrollments []Enrollment `json:"enrollments"`
}

// Public returns the client-facing projection of the user.
func (u *User) Public() PublicUser {
	enrollments := u.Enrollments
	if enrollments == nil {
		enrollments = []Enrollment{}
	}
	return PublicUser{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Enrollments: enrollments,
	}
}

// RegisterRequest is the body of POST /api/user/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the body of POST /api/user/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
