package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/budgetlink/budgetlink-service/internal/store"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryRepo is an in-memory store.UserRepository.
type memoryRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int
	err    error
}

var _ store.UserRepository = (*memoryRepo)(nil)

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]*domain.User{}}
}

func (m *memoryRepo) CreateUser(_ context.Context, email, passwordHash, name string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}
	m.nextID++
	u := &domain.User{ID: strconv.Itoa(m.nextID), Email: email, PasswordHash: passwordHash, Name: name}
	m.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *memoryRepo) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memoryRepo) FindUserByID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryRepo) AppendEnrollments(_ context.Context, userID string, enrollments []domain.Enrollment) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Enrollments = append(append([]domain.Enrollment{}, u.Enrollments...), enrollments...)
	copied := *u
	return &copied, nil
}

func (m *memoryRepo) seed(t *testing.T, id string, enrollments ...string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &domain.User{ID: id, Email: id + "@example.com", Name: id}
	for _, raw := range enrollments {
		var e domain.Enrollment
		require.NoError(t, json.Unmarshal([]byte(raw), &e))
		u.Enrollments = append(u.Enrollments, e)
	}
	m.users[id] = u
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) Close() {}

// fakeAggregator serves canned Teller responses keyed by token and account id.
type fakeAggregator struct {
	mu           sync.Mutex
	accounts     map[string][]domain.Account
	transactions map[string][]domain.Transaction
	failTokens   map[string]bool
	failAccounts map[string]bool
	calls        []string
}

func (f *fakeAggregator) ListAccounts(_ context.Context, accessToken string) ([]domain.Account, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "accounts:"+accessToken)
	f.mu.Unlock()
	if f.failTokens[accessToken] {
		return nil, fmt.Errorf("list accounts for %s: boom", accessToken)
	}
	return f.accounts[accessToken], nil
}

func (f *fakeAggregator) ListTransactions(_ context.Context, accessToken, accountID string) ([]domain.Transaction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "transactions:"+accountID)
	f.mu.Unlock()
	if f.failAccounts[accountID] {
		return nil, fmt.Errorf("list transactions for %s: boom", accountID)
	}
	src := f.transactions[accountID]
	out := make([]domain.Transaction, len(src))
	copy(out, src)
	return out, nil
}

// fakeLimiter counts attempts in memory.
type fakeLimiter struct {
	counts map[string]int
	err    error
}

func (l *fakeLimiter) ConsumeRateLimit(_ context.Context, scope, subject string, _ int, _ time.Duration) (int, int, error) {
	if l.err != nil {
		return 0, 0, l.err
	}
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	key := scope + ":" + subject
	l.counts[key]++
	return l.counts[key], 42, nil
}

func (l *fakeLimiter) ResetRateLimit(_ context.Context, scope, subject string) error {
	if l.err != nil {
		return l.err
	}
	delete(l.counts, scope+":"+subject)
	return nil
}
