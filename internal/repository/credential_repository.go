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

// credentialRepository implements CredentialRepository interface
type credentialRepository struct {
	db *database.Postgres
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *database.Postgres) CredentialRepository {
	return &credentialRepository{db: db}
}

// Upsert stores a credential, replacing any prior credential for the
// integration. An integration has at most one active credential set.
func (r *credentialRepository) Upsert(ctx context.Context, credential *domain.Credential) error {
	query := `
		INSERT INTO oauth_credentials
			(id, integration_id, encrypted_access_token, encrypted_refresh_token,
			 token_type, scope, expires_at, vendor_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (integration_id) DO UPDATE SET
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			vendor_user_id = EXCLUDED.vendor_user_id,
			updated_at = EXCLUDED.updated_at
	`

	if credential.ID == "" {
		credential.ID = uuid.New().String()
	}
	if credential.TokenType == "" {
		credential.TokenType = "Bearer"
	}

	now := time.Now()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = now

	_, err := r.db.DB.ExecContext(ctx, query,
		credential.ID,
		credential.IntegrationID,
		credential.EncryptedAccessToken,
		credential.EncryptedRefreshToken,
		credential.TokenType,
		credential.Scope,
		credential.ExpiresAt,
		credential.VendorUserID,
		credential.CreatedAt,
		credential.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// GetByIntegrationID retrieves the credential for an integration
func (r *credentialRepository) GetByIntegrationID(ctx context.Context, integrationID string) (*domain.Credential, error) {
	query := `
		SELECT id, integration_id, encrypted_access_token, encrypted_refresh_token,
		       token_type, scope, expires_at, vendor_user_id, created_at, updated_at
		FROM oauth_credentials
		WHERE integration_id = $1
	`

	credential := &domain.Credential{}
	var refresh, scope, vendorUserID sql.NullString
	var expiresAt sql.NullTime

	err := r.db.DB.QueryRowContext(ctx, query, integrationID).Scan(
		&credential.ID,
		&credential.IntegrationID,
		&credential.EncryptedAccessToken,
		&refresh,
		&credential.TokenType,
		&scope,
		&expiresAt,
		&vendorUserID,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential for integration %s not found: %w", integrationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if refresh.Valid {
		credential.EncryptedRefreshToken = &refresh.String
	}
	if scope.Valid {
		credential.Scope = &scope.String
	}
	if expiresAt.Valid {
		credential.ExpiresAt = &expiresAt.Time
	}
	if vendorUserID.Valid {
		credential.VendorUserID = &vendorUserID.String
	}

	return credential, nil
}

// DeleteByIntegrationID deletes the credential for an integration.
// Returns false when no credential existed.
func (r *credentialRepository) DeleteByIntegrationID(ctx context.Context, integrationID string) (bool, error) {
	query := `DELETE FROM oauth_credentials WHERE integration_id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, integrationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
