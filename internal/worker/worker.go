package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/healthbridge/vendorsync/internal/config"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/ingest"
	"github.com/healthbridge/vendorsync/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Worker is the single polling loop: enqueue due scheduled jobs on the
// schedule tick, claim the oldest queued job, run its vendor ingestion,
// mark the terminal state. Claiming and execution use separate
// statements so a slow vendor fetch never holds a queue lock.
type Worker struct {
	users        repository.UserRepository
	integrations repository.IntegrationRepository
	jobs         repository.JobRepository
	registry     *ingest.Registry
	cfg          config.SyncConfig
	logger       *zap.Logger

	jobsProcessed       metric.Int64Counter
	observationsCounter metric.Int64Counter
	scheduledEnqueued   metric.Int64Counter
}

// New creates a new sync worker
func New(
	users repository.UserRepository,
	integrations repository.IntegrationRepository,
	jobs repository.JobRepository,
	registry *ingest.Registry,
	cfg config.SyncConfig,
	logger *zap.Logger,
) (*Worker, error) {
	meter := otel.Meter("vendorsync/worker")

	jobsProcessed, err := meter.Int64Counter("sync_jobs_processed_total",
		metric.WithDescription("Sync jobs processed by terminal status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs counter: %w", err)
	}

	observations, err := meter.Int64Counter("sync_observations_total",
		metric.WithDescription("Observations published by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create observations counter: %w", err)
	}

	scheduled, err := meter.Int64Counter("sync_scheduled_jobs_enqueued_total",
		metric.WithDescription("Jobs enqueued by the schedule tick"))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled counter: %w", err)
	}

	return &Worker{
		users:               users,
		integrations:        integrations,
		jobs:                jobs,
		registry:            registry,
		cfg:                 cfg,
		logger:              logger,
		jobsProcessed:       jobsProcessed,
		observationsCounter: observations,
		scheduledEnqueued:   scheduled,
	}, nil
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("sync worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval.Duration),
		zap.Duration("schedule_tick", w.cfg.ScheduleTick.Duration),
		zap.Strings("vendors", w.registry.Vendors()),
	)

	var nextScheduleTick time.Time
	for {
		if ctx.Err() != nil {
			w.logger.Info("sync worker stopped")
			return
		}

		if !time.Now().Before(nextScheduleTick) {
			w.runScheduleTick(ctx)
			nextScheduleTick = time.Now().Add(w.cfg.ScheduleTick.Duration)
		}

		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim job", zap.Error(err))
			w.sleep(ctx, w.cfg.PollInterval.Duration)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.cfg.PollInterval.Duration)
			continue
		}

		w.process(ctx, job)
	}
}

// runScheduleTick enqueues scheduled jobs for integrations due a sync.
func (w *Worker) runScheduleTick(ctx context.Context) {
	count, err := w.jobs.MaybeEnqueueScheduledJobs(ctx, w.cfg.MinHoursBetweenRuns, w.cfg.MaxAttempts)
	if err != nil {
		w.logger.Error("failed to enqueue scheduled jobs", zap.Error(err))
		return
	}
	if count > 0 {
		w.scheduledEnqueued.Add(ctx, int64(count))
		w.logger.Info("enqueued scheduled sync jobs", zap.Int("count", count))
	}
}

// process runs one claimed job to a terminal state. A panic inside
// ingestion fails the job instead of killing the loop.
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.String("vendor", job.Vendor),
		zap.String("trigger", job.Trigger),
	)
	logger.Info("processing sync job", zap.Int("attempt", job.Attempts))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync job panicked", zap.Any("panic", r))
			w.fail(ctx, job, fmt.Sprintf("panic: %v", r), logger)
		}
	}()

	result, err := w.execute(ctx, job)
	if err != nil {
		logger.Warn("sync job failed", zap.Error(err))
		w.fail(ctx, job, err.Error(), logger)
		return
	}

	w.observationsCounter.Add(ctx, int64(result.ObservationsCreated),
		metric.WithAttributes(attribute.String("outcome", "created")))
	w.observationsCounter.Add(ctx, int64(result.ObservationsSkipped),
		metric.WithAttributes(attribute.String("outcome", "skipped")))

	if !result.Success {
		logger.Warn("sync job finished with publish failures", zap.Strings("errors", result.Errors))
		w.fail(ctx, job, strings.Join(result.Errors, "; "), logger)
		return
	}

	if err := w.jobs.MarkSuccess(ctx, job.ID); err != nil {
		logger.Error("failed to mark job success", zap.Error(err))
		return
	}
	w.jobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", domain.JobStatusSuccess)))
	logger.Info("sync job succeeded",
		zap.Int("observations_created", result.ObservationsCreated),
		zap.Int("observations_skipped", result.ObservationsSkipped),
		zap.Int("tolerated_errors", len(result.Errors)),
	)
}

// execute resolves the job's user, integration and vendor service, then
// runs ingestion against the integration's watermark.
func (w *Worker) execute(ctx context.Context, job *domain.Job) (*ingest.Result, error) {
	svc, err := w.registry.Resolve(job.Vendor)
	if err != nil {
		return nil, err
	}

	user, err := w.users.GetByID(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	integration, err := w.integrations.GetByUserVendor(ctx, job.UserID, job.Vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if !integration.IsActive {
		return nil, fmt.Errorf("integration %s is not active", integration.ID)
	}

	return svc.Ingest(ctx, user, integration, integration.Watermark())
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, message string, logger *zap.Logger) {
	if err := w.jobs.MarkFailed(ctx, job.ID, message); err != nil {
		logger.Error("failed to mark job failed", zap.Error(err))
		return
	}
	w.jobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", domain.JobStatusFailed)))
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
