package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/budgetlink/budgetlink-service/internal/domain"
	"github.com/budgetlink/budgetlink-service/internal/store/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// PostgresUserRepository is the PostgreSQL implementation of the UserRepository.
type PostgresUserRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new instance of PostgresUserRepository.
func NewPostgresUserRepository(db *pgxpool.Pool, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRepository{db: db, logger: logger}
}

// RunMigrations applies the embedded goose migrations through the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// CreateUser inserts a new user record and returns it with its generated ID.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error) {
	query := `
        INSERT INTO users (email, password_hash, name)
        VALUES ($1, $2, $3)
        RETURNING id::text
    `
	var userID string
	err := r.db.QueryRow(ctx, query, email, passwordHash, name).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrEmailTaken
		}
		r.logger.ErrorContext(ctx, "inserting user", "error", err)
		return nil, fmt.Errorf("create user: %w: %v", domain.ErrUpstream, err)
	}

	return &domain.User{ID: userID, Email: email, PasswordHash: passwordHash, Name: name, Enrollments: []domain.Enrollment{}}, nil
}

// FindUserByEmail fetches a user by exact email.
func (r *PostgresUserRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `
        SELECT id::text, email, password_hash, name, enrollments
        FROM users WHERE email = $1
    `, email)
}

// FindUserByID fetches a user by ID.
func (r *PostgresUserRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return r.findOne(ctx, `
        SELECT id::text, email, password_hash, name, enrollments
        FROM users WHERE id::text = $1
    `, userID)
}

// AppendEnrollments concatenates the new enrollments onto the stored JSONB array
// in a single statement.
func (r *PostgresUserRepository) AppendEnrollments(ctx context.Context, userID string, enrollments []domain.Enrollment) (*domain.User, error) {
	encoded, err := EncodeEnrollments(enrollments)
	if err != nil {
		return nil, err
	}

	query := `
        UPDATE users
        SET enrollments = CASE jsonb_typeof(enrollments)
                WHEN 'array' THEN enrollments
                ELSE '[]'::jsonb
            END || $2::jsonb,
            updated_at = NOW()
        WHERE id::text = $1
        RETURNING id::text, email, password_hash, name, enrollments
    `
	return r.findOne(ctx, query, userID, string(encoded))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		user domain.User
		raw  []byte
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		r.logger.ErrorContext(ctx, "querying user", "error", err)
		return nil, fmt.Errorf("query user: %w: %v", domain.ErrUpstream, err)
	}

	enrollments, errs := NormalizeEnrollments(json.RawMessage(raw))
	for _, perr := range errs {
		r.logger.WarnContext(ctx, "dropping unparseable enrollment", "user_id", user.ID, "error", perr)
	}
	user.Enrollments = enrollments
	return &user, nil
}
