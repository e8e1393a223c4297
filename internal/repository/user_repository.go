package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/pkg/database"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, fhir_patient_id, timezone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FHIRPatientID,
		user.Timezone,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, fhir_patient_id, timezone, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.DB.QueryRowContext(ctx, query, id), fmt.Sprintf("user with id %s", id))
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, fhir_patient_id, timezone, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.db.DB.QueryRowContext(ctx, query, email), fmt.Sprintf("user with email %s", email))
}

func (r *userRepository) scanOne(row *sql.Row, what string) (*domain.User, error) {
	user := &domain.User{}
	var patientID sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&patientID,
		&user.Timezone,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s not found: %w", what, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}

	if patientID.Valid {
		user.FHIRPatientID = &patientID.String
	}

	return user, nil
}
