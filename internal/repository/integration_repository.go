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
	"github.com/lib/pq"
)

const integrationColumns = `id, user_id, vendor, is_active, sync_status, sync_job_id,
	vendor_user_id, last_sync_at, last_successful_sync_at, created_at, updated_at`

// integrationRepository implements IntegrationRepository interface
type integrationRepository struct {
	db *database.Postgres
}

// NewIntegrationRepository creates a new vendor integration repository
func NewIntegrationRepository(db *database.Postgres) IntegrationRepository {
	return &integrationRepository{db: db}
}

// Create creates a new vendor integration
func (r *integrationRepository) Create(ctx context.Context, integration *domain.Integration) error {
	query := `
		INSERT INTO vendor_integrations (id, user_id, vendor, is_active, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	if integration.SyncStatus == "" {
		integration.SyncStatus = domain.SyncStatusIdle
	}

	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	if integration.UpdatedAt.IsZero() {
		integration.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		integration.ID,
		integration.UserID,
		integration.Vendor,
		integration.IsActive,
		integration.SyncStatus,
		integration.CreatedAt,
		integration.UpdatedAt,
	)
	if err != nil {
		// Check for unique constraint violation (duplicate user + vendor)
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("integration for vendor %s already exists: %w", integration.Vendor, ErrDuplicateIntegration)
			}
		}
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

// GetByID retrieves an integration by ID
func (r *integrationRepository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM vendor_integrations WHERE id = $1`

	integration, err := scanIntegration(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("integration with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get integration by id: %w", err)
	}
	return integration, nil
}

// GetByUserVendor retrieves the integration for a (user, vendor) pairing
func (r *integrationRepository) GetByUserVendor(ctx context.Context, userID, vendor string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM vendor_integrations WHERE user_id = $1 AND vendor = $2`

	integration, err := scanIntegration(r.db.DB.QueryRowContext(ctx, query, userID, vendor))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("integration for vendor %s not found: %w", vendor, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return integration, nil
}

// ListByUser retrieves integrations for a user, optionally only active ones
func (r *integrationRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM vendor_integrations WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations by user: %w", err)
	}
	defer rows.Close()

	return collectIntegrations(rows)
}

// SetActive activates or deactivates an integration
func (r *integrationRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE vendor_integrations SET is_active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, id, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update integration active flag: %w", err)
	}
	return requireRowAffected(result, fmt.Sprintf("integration with id %s", id))
}

// SetVendorUserID records the vendor-assigned user id after token exchange
func (r *integrationRepository) SetVendorUserID(ctx context.Context, id string, vendorUserID string) error {
	query := `UPDATE vendor_integrations SET vendor_user_id = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, id, vendorUserID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update vendor user id: %w", err)
	}
	return requireRowAffected(result, fmt.Sprintf("integration with id %s", id))
}

func scanIntegration(row *sql.Row) (*domain.Integration, error) {
	integration := &domain.Integration{}
	var jobID, vendorUserID sql.NullString
	var lastSync, lastOK sql.NullTime

	err := row.Scan(
		&integration.ID,
		&integration.UserID,
		&integration.Vendor,
		&integration.IsActive,
		&integration.SyncStatus,
		&jobID,
		&vendorUserID,
		&lastSync,
		&lastOK,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	applyIntegrationNulls(integration, jobID, vendorUserID, lastSync, lastOK)
	return integration, nil
}

func collectIntegrations(rows *sql.Rows) ([]*domain.Integration, error) {
	var integrations []*domain.Integration
	for rows.Next() {
		integration := &domain.Integration{}
		var jobID, vendorUserID sql.NullString
		var lastSync, lastOK sql.NullTime

		err := rows.Scan(
			&integration.ID,
			&integration.UserID,
			&integration.Vendor,
			&integration.IsActive,
			&integration.SyncStatus,
			&jobID,
			&vendorUserID,
			&lastSync,
			&lastOK,
			&integration.CreatedAt,
			&integration.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}

		applyIntegrationNulls(integration, jobID, vendorUserID, lastSync, lastOK)
		integrations = append(integrations, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate integrations: %w", err)
	}

	return integrations, nil
}

func applyIntegrationNulls(integration *domain.Integration, jobID, vendorUserID sql.NullString, lastSync, lastOK sql.NullTime) {
	if jobID.Valid {
		integration.SyncJobID = &jobID.String
	}
	if vendorUserID.Valid {
		integration.VendorUserID = &vendorUserID.String
	}
	if lastSync.Valid {
		integration.LastSyncAt = &lastSync.Time
	}
	if lastOK.Valid {
		integration.LastSuccessfulSyncAt = &lastOK.Time
	}
}

func requireRowAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %w", what, ErrNotFound)
	}
	return nil
}
