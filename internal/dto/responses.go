package dto

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// IntegrationResponse represents a vendor integration in responses
type IntegrationResponse struct {
	ID                   string     `json:"id"`
	Vendor               string     `json:"vendor"`
	IsActive             bool       `json:"is_active"`
	SyncStatus           string     `json:"sync_status"`
	SyncJobID            *string    `json:"sync_job_id"`
	LastSyncAt           *time.Time `json:"last_sync_at"`
	LastSuccessfulSyncAt *time.Time `json:"last_successful_sync_at"`
	VendorUserID         *string    `json:"vendor_user_id"`
	CreatedAt            time.Time  `json:"created_at"`
}

// JobResponse represents a sync job in responses
type JobResponse struct {
	ID         string     `json:"id"`
	Vendor     string     `json:"vendor"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	LastError  *string    `json:"last_error"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EnqueueSyncResponse is returned when a manual sync is accepted
type EnqueueSyncResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// VendorSyncStatus pairs an integration with its latest job
type VendorSyncStatus struct {
	Integration IntegrationResponse `json:"integration"`
	LatestJob   *JobResponse        `json:"latest_job"`
}

// SyncStatusResponse represents per-vendor sync state for a user
type SyncStatusResponse struct {
	Vendors []VendorSyncStatus `json:"vendors"`
}

// AuthorizeURLResponse carries the vendor authorization URL
type AuthorizeURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackResponse is returned after a completed OAuth callback
type CallbackResponse struct {
	Message      string `json:"message"`
	Vendor       string `json:"vendor"`
	VendorUserID string `json:"vendor_user_id,omitempty"`
}
