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

const jobColumns = `id, user_id, vendor, trigger, status, attempts, max_attempts,
	scheduled_at, started_at, finished_at, last_error, created_at, updated_at`

// jobRepository implements JobRepository over the sync_jobs table.
// Jobs are an audit trail: rows are only ever inserted and transitioned,
// never deleted.
type jobRepository struct {
	db *database.Postgres
}

// NewJobRepository creates a new sync job repository
func NewJobRepository(db *database.Postgres) JobRepository {
	return &jobRepository{db: db}
}

// Enqueue inserts a queued job and mirrors the state onto the integration
func (r *jobRepository) Enqueue(ctx context.Context, userID, vendor, trigger string, scheduledAt *time.Time, maxAttempts int) (*domain.Job, error) {
	now := time.Now()
	job := &domain.Job{
		ID:          uuid.New().String(),
		UserID:      userID,
		Vendor:      vendor,
		Trigger:     trigger,
		Status:      domain.JobStatusQueued,
		MaxAttempts: maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO sync_jobs (id, user_id, vendor, trigger, status, attempts, max_attempts, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
	`
	_, err := r.db.DB.ExecContext(ctx, query,
		job.ID, job.UserID, job.Vendor, job.Trigger, job.Status, job.MaxAttempts, job.ScheduledAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	// Best-effort status mirror; the job row is the source of truth.
	mirror := `
		UPDATE vendor_integrations SET sync_status = $3, sync_job_id = $4, updated_at = $5
		WHERE user_id = $1 AND vendor = $2
	`
	if _, err := r.db.DB.ExecContext(ctx, mirror, userID, vendor, domain.SyncStatusQueued, job.ID, now); err != nil {
		return nil, fmt.Errorf("failed to mirror queued status: %w", err)
	}

	return job, nil
}

// GetByID retrieves a job by ID
func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = $1`

	job, err := scanJob(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job with id %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job by id: %w", err)
	}
	return job, nil
}

// GetLatest retrieves the most recent job for a (user, vendor) pairing
func (r *jobRepository) GetLatest(ctx context.Context, userID, vendor string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE user_id = $1 AND vendor = $2 ORDER BY created_at DESC LIMIT 1`

	job, err := scanJob(r.db.DB.QueryRowContext(ctx, query, userID, vendor))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no jobs for vendor %s: %w", vendor, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return job, nil
}

// ClaimNext claims the oldest queued job with a single conditional update.
// The WHERE status = 'queued' guard makes the claim atomic: if another
// worker won the race the update affects zero rows and we report no job
// instead of retrying, leaving the next poll to pick up remaining work.
func (r *jobRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	query := `
		UPDATE sync_jobs
		SET status = $1, started_at = $2, attempts = attempts + 1, updated_at = $2
		WHERE id = (
			SELECT id FROM sync_jobs WHERE status = $3 ORDER BY created_at ASC LIMIT 1
		) AND status = $3
		RETURNING ` + jobColumns

	now := time.Now().UTC()
	job, err := scanJob(r.db.DB.QueryRowContext(ctx, query, domain.JobStatusRunning, now, domain.JobStatusQueued))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	// Best-effort status mirror on the owning integration.
	mirror := `
		UPDATE vendor_integrations SET sync_status = $3, sync_job_id = $4, updated_at = $5
		WHERE user_id = $1 AND vendor = $2
	`
	if _, err := r.db.DB.ExecContext(ctx, mirror, job.UserID, job.Vendor, domain.SyncStatusRunning, job.ID, now); err != nil {
		return nil, fmt.Errorf("failed to mirror running status: %w", err)
	}

	return job, nil
}

// MarkSuccess transitions a running job to success and advances the
// integration watermark.
func (r *jobRepository) MarkSuccess(ctx context.Context, jobID string) error {
	now := time.Now().UTC()

	query := `
		UPDATE sync_jobs SET status = $2, finished_at = $3, last_error = NULL, updated_at = $3
		WHERE id = $1
		RETURNING user_id, vendor
	`
	var userID, vendor string
	err := r.db.DB.QueryRowContext(ctx, query, jobID, domain.JobStatusSuccess, now).Scan(&userID, &vendor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job with id %s not found: %w", jobID, ErrNotFound)
		}
		return fmt.Errorf("failed to mark job success: %w", err)
	}

	mirror := `
		UPDATE vendor_integrations
		SET sync_status = $3, sync_job_id = $4, last_sync_at = $5, last_successful_sync_at = $5, updated_at = $5
		WHERE user_id = $1 AND vendor = $2
	`
	if _, err := r.db.DB.ExecContext(ctx, mirror, userID, vendor, domain.SyncStatusSuccess, jobID, now); err != nil {
		return fmt.Errorf("failed to mirror success status: %w", err)
	}

	return nil
}

// MarkFailed transitions a running job to failed, recording the error text
func (r *jobRepository) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	now := time.Now().UTC()

	query := `
		UPDATE sync_jobs SET status = $2, finished_at = $3, last_error = $4, updated_at = $3
		WHERE id = $1
		RETURNING user_id, vendor
	`
	var userID, vendor string
	err := r.db.DB.QueryRowContext(ctx, query, jobID, domain.JobStatusFailed, now, errMsg).Scan(&userID, &vendor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job with id %s not found: %w", jobID, ErrNotFound)
		}
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	mirror := `
		UPDATE vendor_integrations SET sync_status = $3, sync_job_id = $4, updated_at = $5
		WHERE user_id = $1 AND vendor = $2
	`
	if _, err := r.db.DB.ExecContext(ctx, mirror, userID, vendor, domain.SyncStatusFailed, jobID, now); err != nil {
		return fmt.Errorf("failed to mirror failed status: %w", err)
	}

	return nil
}

// HasPending reports whether a queued or running job exists for the pairing
func (r *jobRepository) HasPending(ctx context.Context, userID, vendor string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sync_jobs
			WHERE user_id = $1 AND vendor = $2 AND status IN ($3, $4)
		)
	`

	var exists bool
	err := r.db.DB.QueryRowContext(ctx, query, userID, vendor, domain.JobStatusQueued, domain.JobStatusRunning).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending jobs: %w", err)
	}
	return exists, nil
}

// MaybeEnqueueScheduledJobs enqueues a scheduled job for every active
// integration whose last successful sync is absent or older than
// minHoursBetweenRuns, skipping integrations with pending work.
// Returns the number of jobs enqueued.
func (r *jobRepository) MaybeEnqueueScheduledJobs(ctx context.Context, minHoursBetweenRuns, maxAttempts int) (int, error) {
	dueBefore := time.Now().UTC().Add(-time.Duration(minHoursBetweenRuns) * time.Hour)

	query := `
		SELECT user_id, vendor FROM vendor_integrations
		WHERE is_active = TRUE
		  AND (last_successful_sync_at IS NULL OR last_successful_sync_at <= $1)
		  AND NOT EXISTS (
			SELECT 1 FROM sync_jobs j
			WHERE j.user_id = vendor_integrations.user_id
			  AND j.vendor = vendor_integrations.vendor
			  AND j.status IN ($2, $3)
		  )
	`

	rows, err := r.db.DB.QueryContext(ctx, query, dueBefore, domain.JobStatusQueued, domain.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to find due integrations: %w", err)
	}
	defer rows.Close()

	type pairing struct{ userID, vendor string }
	var due []pairing
	for rows.Next() {
		var p pairing
		if err := rows.Scan(&p.userID, &p.vendor); err != nil {
			return 0, fmt.Errorf("failed to scan due integration: %w", err)
		}
		due = append(due, p)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate due integrations: %w", err)
	}

	enqueued := 0
	for _, p := range due {
		if _, err := r.Enqueue(ctx, p.userID, p.vendor, domain.TriggerScheduled, nil, maxAttempts); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	return enqueued, nil
}

func scanJob(row *sql.Row) (*domain.Job, error) {
	job := &domain.Job{}
	var scheduledAt, startedAt, finishedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Vendor,
		&job.Trigger,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&scheduledAt,
		&startedAt,
		&finishedAt,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduledAt.Valid {
		job.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}

	return job, nil
}
