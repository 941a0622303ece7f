package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(repo *memoryRepo, pub *recordingPublisher) *AuthService {
	return NewAuthService(repo, NewTokenIssuer("test-secret", time.Hour), pub, discardLogger())
}

func TestPasswordVerify(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, VerifyPassword("secret123", hash))
	assert.False(t, VerifyPassword("wrong", hash))
	assert.False(t, VerifyPassword("secret123", "not-a-hash"))
}

func TestRegisterThenLogin(t *testing.T) {
	repo := newMemoryRepo()
	pub := &recordingPublisher{}
	svc := newTestAuthService(repo, pub)
	ctx := context.Background()

	user, err := svc.Register(ctx, domain.RegisterRequest{Email: " ada@example.com ", Password: "secret123", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, []string{domain.UserRegisteredRoutingKey}, pub.events)

	result, err := svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)

	subject, err := svc.Authenticate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)
}

func TestRegister_Errors(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAuthService(repo, &recordingPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "secret123", Name: "Ada"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "other", Name: "Ada 2"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	repo.err = errors.New("db down")
	_, err = svc.Register(ctx, domain.RegisterRequest{Email: "bob@example.com", Password: "secret123", Name: "Bob"})
	assert.EqualError(t, err, "db down")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAuthService(repo, &recordingPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "secret123", Name: "Ada"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin_MissingPasswordHash(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(t, "u1")
	svc := newTestAuthService(repo, &recordingPublisher{})

	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "u1@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestLogin_RateLimited(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAuthService(repo, &recordingPublisher{})
	limiter := &fakeLimiter{}
	svc.SetLoginRateLimiter(limiter, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "x"})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 42, rle.RetryAfterSeconds)
}

func TestLogin_LimiterFailureDoesNotBlock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAuthService(repo, &recordingPublisher{})
	svc.SetLoginRateLimiter(&fakeLimiter{err: errors.New("redis down")}, 1)

	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "ada@example.com", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestAuthService(repo, &recordingPublisher{})
	limiter := &fakeLimiter{}
	svc.SetLoginRateLimiter(limiter, 2)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Email: "ada@example.com", Password: "secret123", Name: "Ada"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Zero(t, limiter.counts["login:ada@example.com"])

	for i := 0; i < 2; i++ {
		_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "wrong"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err = svc.Login(ctx, domain.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
