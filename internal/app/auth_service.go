/**
 * @description
 * This file contains the registration and login logic. It coordinates the user
 * store, the password verifier, the token issuer and the optional login rate limiter.
 *
 * @notes
 * - An unknown email and a wrong password produce the same error so the login
 *   endpoint does not reveal which accounts exist.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/budgetlink/budgetlink-service/internal/store"
	"github.com/budgetlink/budgetlink-service/pkg/rabbitmq"
)

const loginRateLimitScope = "login"

// RateLimitError reports a rejected attempt and when to retry.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }

// LoginResult is returned on successful login.
type LoginResult struct {
	Token string
	User  *domain.User
}

// AuthService provides registration and login.
type AuthService struct {
	repo      store.UserRepository
	tokens    *TokenIssuer
	publisher rabbitmq.Publisher
	logger    *slog.Logger

	limiter        RateLimiter
	loginPerMinute int
}

// NewAuthService creates a new instance of AuthService.
func NewAuthService(repo store.UserRepository, tokens *TokenIssuer, publisher rabbitmq.Publisher, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = &rabbitmq.NoopPublisher{Logger: logger}
	}
	return &AuthService{repo: repo, tokens: tokens, publisher: publisher, logger: logger}
}

// SetLoginRateLimiter enables per-email login throttling. A successful login
// clears the email's failed attempts.
func (s *AuthService) SetLoginRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.loginPerMinute = perMinute
}

// Register creates a user with a hashed password.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := strings.TrimSpace(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, fmt.Errorf("%w: missing required fields", domain.ErrValidation)
	}

	existing, err := s.repo.FindUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, domain.ErrEmailTaken
	case err != nil && !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, email, hash, name)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)

	event := domain.UserRegisteredEvent{UserID: user.ID, Email: user.Email, OccurredAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, domain.UserRegisteredRoutingKey, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// Login verifies credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}

	if s.limiter != nil && s.loginPerMinute > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, loginRateLimitScope, email, s.loginPerMinute, time.Minute)
		if err != nil {
			s.logger.WarnContext(ctx, "login rate limiter unavailable", "error", err)
		} else if count > s.loginPerMinute {
			return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			VerifyPassword(req.Password, dummyPasswordHash)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		s.logger.ErrorContext(ctx, "stored user has no password hash", "user_id", user.ID)
		return nil, fmt.Errorf("%w: invalid user data", domain.ErrUpstream)
	}
	if !VerifyPassword(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.ResetRateLimit(ctx, loginRateLimitScope, email); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login attempts", "user_id", user.ID, "error", err)
		}
	}
	return &LoginResult{Token: token, User: user}, nil
}

// Authenticate validates a bearer token and returns its user ID.
func (s *AuthService) Authenticate(token string) (string, error) {
	return s.tokens.Validate(token)
}
