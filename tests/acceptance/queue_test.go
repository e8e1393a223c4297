package acceptance

import (
	"context"
	"sync"

	"github.com/healthbridge/vendorsync/internal/domain"
)

func (s *Suite) TestQueue_EnqueueMirrorsIntegrationStatus() {
	ctx := context.Background()
	user, _ := s.createUser("queue-enqueue@example.com")
	integration := s.createIntegration(user.ID)

	job, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	s.Equal(domain.JobStatusQueued, job.Status)
	s.Equal(0, job.Attempts)

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusQueued, refreshed.SyncStatus)
	s.Require().NotNil(refreshed.SyncJobID)
	s.Equal(job.ID, *refreshed.SyncJobID)
}

func (s *Suite) TestQueue_ClaimNextTransitionsJob() {
	ctx := context.Background()
	user, _ := s.createUser("queue-claim@example.com")
	integration := s.createIntegration(user.ID)

	enqueued, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	claimed, err := s.Repos.Job.ClaimNext(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	s.Equal(enqueued.ID, claimed.ID)
	s.Equal(domain.JobStatusRunning, claimed.Status)
	s.Equal(1, claimed.Attempts)
	s.NotNil(claimed.StartedAt)

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusRunning, refreshed.SyncStatus)
}

func (s *Suite) TestQueue_ClaimNextEmptyQueue() {
	claimed, err := s.Repos.Job.ClaimNext(context.Background())
	s.Require().NoError(err)
	s.Nil(claimed)
}

func (s *Suite) TestQueue_ClaimNextIsExclusive() {
	ctx := context.Background()
	user, _ := s.createUser("queue-exclusive@example.com")
	s.createIntegration(user.ID)

	_, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	const claimers = 8
	var wg sync.WaitGroup
	claims := make([]*domain.Job, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			job, err := s.Repos.Job.ClaimNext(ctx)
			s.NoError(err)
			claims[idx] = job
		}(i)
	}
	wg.Wait()

	won := 0
	for _, job := range claims {
		if job != nil {
			won++
			s.Equal(1, job.Attempts)
		}
	}
	s.Equal(1, won, "Exactly one claimer should win the job")
}

func (s *Suite) TestQueue_MarkSuccessAdvancesWatermark() {
	ctx := context.Background()
	user, _ := s.createUser("queue-success@example.com")
	integration := s.createIntegration(user.ID)

	_, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	claimed, err := s.Repos.Job.ClaimNext(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	err = s.Repos.Job.MarkSuccess(ctx, claimed.ID)
	s.Require().NoError(err)

	job, err := s.Repos.Job.GetByID(ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(domain.JobStatusSuccess, job.Status)
	s.NotNil(job.FinishedAt)
	s.Nil(job.LastError)

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusSuccess, refreshed.SyncStatus)
	s.NotNil(refreshed.LastSyncAt)
	s.NotNil(refreshed.LastSuccessfulSyncAt)
}

func (s *Suite) TestQueue_MarkFailedKeepsAttemptsAndError() {
	ctx := context.Background()
	user, _ := s.createUser("queue-failed@example.com")
	integration := s.createIntegration(user.ID)

	_, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	claimed, err := s.Repos.Job.ClaimNext(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	err = s.Repos.Job.MarkFailed(ctx, claimed.ID, "heart_rate 2026-08-20: rate limited; spo2 2026-08-20: rate limited")
	s.Require().NoError(err)

	job, err := s.Repos.Job.GetByID(ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(domain.JobStatusFailed, job.Status)
	s.Equal(1, job.Attempts)
	s.NotNil(job.FinishedAt)
	s.Require().NotNil(job.LastError)
	s.Contains(*job.LastError, "rate limited")

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusFailed, refreshed.SyncStatus)
	s.Nil(refreshed.LastSuccessfulSyncAt, "Failed sync must not advance the watermark")
}

func (s *Suite) TestQueue_HasPending() {
	ctx := context.Background()
	user, _ := s.createUser("queue-pending@example.com")
	s.createIntegration(user.ID)

	pending, err := s.Repos.Job.HasPending(ctx, user.ID, domain.VendorFitbit)
	s.Require().NoError(err)
	s.False(pending)

	_, err = s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	pending, err = s.Repos.Job.HasPending(ctx, user.ID, domain.VendorFitbit)
	s.Require().NoError(err)
	s.True(pending, "Queued job counts as pending")

	claimed, err := s.Repos.Job.ClaimNext(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	pending, err = s.Repos.Job.HasPending(ctx, user.ID, domain.VendorFitbit)
	s.Require().NoError(err)
	s.True(pending, "Running job counts as pending")

	err = s.Repos.Job.MarkSuccess(ctx, claimed.ID)
	s.Require().NoError(err)

	pending, err = s.Repos.Job.HasPending(ctx, user.ID, domain.VendorFitbit)
	s.Require().NoError(err)
	s.False(pending)
}

func (s *Suite) TestQueue_ScheduledJobsForNeverSyncedIntegration() {
	ctx := context.Background()
	user, _ := s.createUser("queue-sched-due@example.com")
	s.createIntegration(user.ID)

	enqueued, err := s.Repos.Job.MaybeEnqueueScheduledJobs(ctx, 6, 5)
	s.Require().NoError(err)
	s.Equal(1, enqueued)

	job, err := s.Repos.Job.GetLatest(ctx, user.ID, domain.VendorFitbit)
	s.Require().NoError(err)
	s.Equal(domain.TriggerScheduled, job.Trigger)
	s.Equal(domain.JobStatusQueued, job.Status)
}

func (s *Suite) TestQueue_ScheduledJobsSkipRecentlySynced() {
	ctx := context.Background()
	user, _ := s.createUser("queue-sched-recent@example.com")
	s.createIntegration(user.ID)

	_, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)
	claimed, err := s.Repos.Job.ClaimNext(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	err = s.Repos.Job.MarkSuccess(ctx, claimed.ID)
	s.Require().NoError(err)

	enqueued, err := s.Repos.Job.MaybeEnqueueScheduledJobs(ctx, 6, 5)
	s.Require().NoError(err)
	s.Equal(0, enqueued, "Fresh watermark should suppress scheduling")
}

func (s *Suite) TestQueue_ScheduledJobsSkipPendingWork() {
	ctx := context.Background()
	user, _ := s.createUser("queue-sched-pending@example.com")
	s.createIntegration(user.ID)

	_, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	enqueued, err := s.Repos.Job.MaybeEnqueueScheduledJobs(ctx, 6, 5)
	s.Require().NoError(err)
	s.Equal(0, enqueued, "Pending job should suppress scheduling")
}

func (s *Suite) TestQueue_ScheduledJobsSkipInactiveIntegrations() {
	ctx := context.Background()
	user, _ := s.createUser("queue-sched-inactive@example.com")
	integration := s.createIntegration(user.ID)

	err := s.Repos.Integration.SetActive(ctx, integration.ID, false)
	s.Require().NoError(err)

	enqueued, err := s.Repos.Job.MaybeEnqueueScheduledJobs(ctx, 6, 5)
	s.Require().NoError(err)
	s.Equal(0, enqueued)
}
