package domain

import "time"

// Supported vendor keys. The ingestion registry rejects anything else.
const (
	VendorFitbit = "fitbit"
)

// Sync status mirror kept on the integration row. It tracks the latest
// job's state so status reads don't need to join sync_jobs.
const (
	SyncStatusIdle    = "idle"
	SyncStatusQueued  = "queued"
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// Integration represents a user's connection to one wearable vendor.
// It relates to jobs only through SyncJobID and the status mirror;
// neither side owns the other.
type Integration struct {
	ID                   string     `json:"id" db:"id"`
	UserID               string     `json:"user_id" db:"user_id"`
	Vendor               string     `json:"vendor" db:"vendor"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	SyncStatus           string     `json:"sync_status" db:"sync_status"`
	SyncJobID            *string    `json:"sync_job_id" db:"sync_job_id"`
	VendorUserID         *string    `json:"vendor_user_id" db:"vendor_user_id"`
	LastSyncAt           *time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at" db:"last_successful_sync_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// Watermark returns the timestamp after which vendor data counts as
// unsynced, falling back to the legacy last_sync_at field.
func (i *Integration) Watermark() *time.Time {
	if i.LastSuccessfulSyncAt != nil {
		return i.LastSuccessfulSyncAt
	}
	return i.LastSyncAt
}

// Credential holds one integration's OAuth tokens, encrypted at rest.
// Access and refresh tokens are stored only as AES-GCM ciphertext.
type Credential struct {
	ID                    string     `json:"id" db:"id"`
	IntegrationID         string     `json:"integration_id" db:"integration_id"`
	EncryptedAccessToken  string     `json:"-" db:"encrypted_access_token"`
	EncryptedRefreshToken *string    `json:"-" db:"encrypted_refresh_token"`
	TokenType             string     `json:"token_type" db:"token_type"`
	Scope                 *string    `json:"scope" db:"scope"`
	ExpiresAt             *time.Time `json:"expires_at" db:"expires_at"`
	VendorUserID          *string    `json:"vendor_user_id" db:"vendor_user_id"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}
