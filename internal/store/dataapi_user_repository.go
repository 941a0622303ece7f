package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/budgetlink/budgetlink-service/pkg/dataapi"
)

const (
	usersEndpoint = "users"
	loginEndpoint = "login"
)

// DataAPIUserRepository stores users through TiDB Cloud Data API endpoints.
//
// The data app exposes GET users?userId=, GET login?email=, POST users and
// PUT users. There is no transactional append on this backend, so
// AppendEnrollments reads the current list, merges and writes it back.
type DataAPIUserRepository struct {
	client *dataapi.Client
	logger *slog.Logger
}

// NewDataAPIUserRepository creates a repository backed by the given Data API client.
func NewDataAPIUserRepository(client *dataapi.Client, logger *slog.Logger) *DataAPIUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataAPIUserRepository{client: client, logger: logger}
}

// userRow mirrors a row of the users table. TiDB returns most columns as strings
// but numeric ids may come back as numbers.
type userRow struct {
	UserID      flexString      `json:"userId"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	Name        string          `json:"name"`
	Enrollments json.RawMessage `json:"enrollments"`
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// CreateUser inserts the user and reads it back to learn the assigned ID.
func (r *DataAPIUserRepository) CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error) {
	body := map[string]string{
		"email":       email,
		"password":    passwordHash,
		"name":        name,
		"enrollments": "[]",
	}
	resp, err := r.client.Post(ctx, usersEndpoint, body)
	if err != nil {
		return nil, r.classify("create user", err)
	}

	user, err := r.FindUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	// The insert succeeded but the row is not visible yet; fall back to the
	// insert id reported by the endpoint.
	if id := resp.Data.Result.LastInsertID; id != nil {
		return &domain.User{ID: strconv.FormatInt(*id, 10), Email: email, PasswordHash: passwordHash, Name: name}, nil
	}
	return nil, fmt.Errorf("%w: created user not found", domain.ErrUpstream)
}

// FindUserByEmail looks a user up through the login endpoint.
func (r *DataAPIUserRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	resp, err := r.client.Get(ctx, loginEndpoint, url.Values{"email": {email}})
	if err != nil {
		return nil, r.classify("find user by email", err)
	}
	return r.firstUser(ctx, resp)
}

// FindUserByID looks a user up through the users endpoint.
func (r *DataAPIUserRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	resp, err := r.client.Get(ctx, usersEndpoint, url.Values{"userId": {userID}})
	if err != nil {
		return nil, r.classify("find user by id", err)
	}
	return r.firstUser(ctx, resp)
}

// AppendEnrollments merges new enrollments into the stored list.
func (r *DataAPIUserRepository) AppendEnrollments(ctx context.Context, userID string, enrollments []domain.Enrollment) (*domain.User, error) {
	user, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := append(append([]domain.Enrollment{}, user.Enrollments...), enrollments...)
	encoded, err := EncodeEnrollments(merged)
	if err != nil {
		return nil, err
	}

	body := map[string]string{
		"userId":      userID,
		"enrollments": string(encoded),
	}
	if _, err := r.client.Put(ctx, usersEndpoint, body); err != nil {
		return nil, r.classify("update enrollments", err)
	}

	user.Enrollments = merged
	return user, nil
}

func (r *DataAPIUserRepository) firstUser(ctx context.Context, resp *dataapi.Response) (*domain.User, error) {
	if len(resp.Data.Rows) == 0 {
		return nil, domain.ErrUserNotFound
	}

	var row userRow
	if err := json.Unmarshal(resp.Data.Rows[0], &row); err != nil {
		return nil, fmt.Errorf("%w: decode user row: %v", domain.ErrUpstream, err)
	}

	enrollments, errs := NormalizeEnrollments(row.Enrollments)
	for _, perr := range errs {
		r.logger.WarnContext(ctx, "dropping unparseable enrollment", "user_id", string(row.UserID), "error", perr)
	}

	return &domain.User{
		ID:           string(row.UserID),
		Email:        row.Email,
		PasswordHash: row.Password,
		Name:         row.Name,
		Enrollments:  enrollments,
	}, nil
}

func (r *DataAPIUserRepository) classify(op string, err error) error {
	var statusErr *dataapi.StatusError
	if errors.As(err, &statusErr) && strings.Contains(statusErr.Body, "Duplicate entry") {
		return domain.ErrEmailTaken
	}
	r.logger.Error("data API operation failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %v", op, domain.ErrUpstream, err)
}
