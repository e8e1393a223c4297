package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/repository"
)

// IntegrationService manages the user-vendor pairings: selection,
// disconnection and status reads.
type IntegrationService struct {
	integrations repository.IntegrationRepository
	jobs         repository.JobRepository
	vault        *TokenVault
}

// NewIntegrationService creates a new integration service
func NewIntegrationService(
	integrations repository.IntegrationRepository,
	jobs repository.JobRepository,
	vault *TokenVault,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		jobs:         jobs,
		vault:        vault,
	}
}

// NormalizeVendor canonicalizes a vendor key for lookups
func NormalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}

// Select creates a new integration for the (user, vendor) pairing, or
// reactivates a previously disconnected one.
func (s *IntegrationService) Select(ctx context.Context, userID, vendor string) (*domain.Integration, error) {
	vendorKey := NormalizeVendor(vendor)

	existing, err := s.integrations.GetByUserVendor(ctx, userID, vendorKey)
	if err == nil {
		if !existing.IsActive {
			if err := s.integrations.SetActive(ctx, existing.ID, true); err != nil {
				return nil, fmt.Errorf("failed to reactivate integration: %w", err)
			}
			existing.IsActive = true
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing integration: %w", err)
	}

	integration := &domain.Integration{
		UserID:   userID,
		Vendor:   vendorKey,
		IsActive: true,
	}
	if err := s.integrations.Create(ctx, integration); err != nil {
		return nil, err
	}

	return integration, nil
}

// Get returns the integration for a (user, vendor) pairing
func (s *IntegrationService) Get(ctx context.Context, userID, vendor string) (*domain.Integration, error) {
	return s.integrations.GetByUserVendor(ctx, userID, NormalizeVendor(vendor))
}

// List returns a user's integrations
func (s *IntegrationService) List(ctx context.Context, userID string, activeOnly bool) ([]*domain.Integration, error) {
	return s.integrations.ListByUser(ctx, userID, activeOnly)
}

// Disconnect deactivates the integration and deletes its credentials.
// The integration row is kept so history and re-connection survive.
func (s *IntegrationService) Disconnect(ctx context.Context, userID, vendor string) error {
	integration, err := s.integrations.GetByUserVendor(ctx, userID, NormalizeVendor(vendor))
	if err != nil {
		return err
	}

	if err := s.integrations.SetActive(ctx, integration.ID, false); err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}

	if _, err := s.vault.Delete(ctx, integration.ID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	return nil
}

// LinkVendorAccount records the vendor-side account id on the
// integration after a completed OAuth exchange.
func (s *IntegrationService) LinkVendorAccount(ctx context.Context, integrationID, vendorUserID string) error {
	if err := s.integrations.SetVendorUserID(ctx, integrationID, vendorUserID); err != nil {
		return fmt.Errorf("failed to link vendor account: %w", err)
	}
	return nil
}

// ErrSyncAlreadyPending is returned when a pairing already has a
// queued or running job.
var ErrSyncAlreadyPending = errors.New("a sync job is already pending for this vendor")

// EnqueueSync enqueues a manual sync job for the pairing. The
// integration must be active and must not already have a pending job.
func (s *IntegrationService) EnqueueSync(ctx context.Context, userID, vendor string, maxAttempts int) (*domain.Job, error) {
	vendorKey := NormalizeVendor(vendor)

	integration, err := s.integrations.GetByUserVendor(ctx, userID, vendorKey)
	if err != nil {
		return nil, err
	}
	if !integration.IsActive {
		return nil, fmt.Errorf("integration for vendor %q is not active", vendorKey)
	}

	pending, err := s.jobs.HasPending(ctx, userID, vendorKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending jobs: %w", err)
	}
	if pending {
		return nil, ErrSyncAlreadyPending
	}

	return s.jobs.Enqueue(ctx, userID, vendorKey, domain.TriggerManual, nil, maxAttempts)
}

// LatestJob returns the most recent job for the pairing, or nil when no
// job has ever run.
func (s *IntegrationService) LatestJob(ctx context.Context, userID, vendor string) (*domain.Job, error) {
	job, err := s.jobs.GetLatest(ctx, userID, NormalizeVendor(vendor))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}
