package repository

import (
	"context"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// IntegrationRepository defines methods for vendor integration operations
type IntegrationRepository interface {
	Create(ctx context.Context, integration *domain.Integration) error
	GetByID(ctx context.Context, id string) (*domain.Integration, error)
	GetByUserVendor(ctx context.Context, userID, vendor string) (*domain.Integration, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Integration, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetVendorUserID(ctx context.Context, id string, vendorUserID string) error
}

// CredentialRepository defines methods for encrypted OAuth credential storage
type CredentialRepository interface {
	Upsert(ctx context.Context, credential *domain.Credential) error
	GetByIntegrationID(ctx context.Context, integrationID string) (*domain.Credential, error)
	DeleteByIntegrationID(ctx context.Context, integrationID string) (bool, error)
}

// JobRepository defines methods for the durable sync-job queue
type JobRepository interface {
	Enqueue(ctx context.Context, userID, vendor, trigger string, scheduledAt *time.Time, maxAttempts int) (*domain.Job, error)
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	GetLatest(ctx context.Context, userID, vendor string) (*domain.Job, error)
	ClaimNext(ctx context.Context) (*domain.Job, error)
	MarkSuccess(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	HasPending(ctx context.Context, userID, vendor string) (bool, error)
	MaybeEnqueueScheduledJobs(ctx context.Context, minHoursBetweenRuns, maxAttempts int) (int, error)
}
