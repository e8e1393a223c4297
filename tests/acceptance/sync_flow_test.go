package acceptance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/healthbridge/vendorsync/internal/config"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/fhir"
	"github.com/healthbridge/vendorsync/internal/fitbit"
	"github.com/healthbridge/vendorsync/internal/ingest"
	"github.com/healthbridge/vendorsync/internal/service"
	"github.com/healthbridge/vendorsync/internal/worker"
	"go.uber.org/zap"
)

// TestSyncFlow_EndToEnd walks a queued job through a dedicated worker
// against fake vendor and FHIR servers: claim, fetch, normalize,
// publish, mark success, advance the watermark. A second job then runs
// against the fresh watermark without re-sending vendor-timestamped
// observations.
func (s *Suite) TestSyncFlow_EndToEnd() {
	ctx := context.Background()
	user, _ := s.createUser("flow@example.com")
	integration := s.createIntegration(user.ID)

	refreshToken := "flow-refresh-token"
	_, err := s.Vault.Store(ctx, integration.ID, service.StoreParams{
		AccessToken:  "flow-access-token",
		RefreshToken: &refreshToken,
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	})
	s.Require().NoError(err)

	today := time.Now().UTC().Format("2006-01-02")

	var vendorRequests atomic.Int64
	vendorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vendorRequests.Add(1)
		s.Equal("Bearer flow-access-token", r.Header.Get("Authorization"))

		switch {
		case strings.Contains(r.URL.Path, "/activities/heart/"):
			fmt.Fprint(w, `{"activities-heart":[{"value":{"restingHeartRate":61}}],"activities-heart-intraday":{"dataset":[{"time":"00:00:00","value":64},{"time":"00:15:00","value":71}]}}`)
		case strings.Contains(r.URL.Path, "/spo2/"):
			fmt.Fprint(w, `{"dateTime":"`+today+`","value":{"avg":96.4,"min":93.1,"max":98.2}}`)
		case strings.Contains(r.URL.Path, "/body/log/weight/"):
			fmt.Fprint(w, `{"weight":[{"weight":80.5,"date":"`+today+`","time":"00:00:00","logId":991}]}`)
		case strings.Contains(r.URL.Path, "/activities/calories/"):
			fmt.Fprint(w, `{"activities-calories-intraday":{"dataset":[{"time":"00:00:00","value":2.1}]}}`)
		case strings.Contains(r.URL.Path, "/activities/"):
			fmt.Fprint(w, `{"summary":{"steps":8421}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer vendorServer.Close()

	var created atomic.Int64
	var mu sync.Mutex
	sent := make(map[string]int)
	fhirServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/fhir/Observation", r.URL.Path)

		condition := r.Header.Get("If-None-Exist")
		s.NotEmpty(condition, "Publish must be a conditional create")
		identifier, err := url.QueryUnescape(strings.TrimPrefix(condition, "identifier="))
		s.Require().NoError(err)

		mu.Lock()
		sent[identifier]++
		repeat := sent[identifier] > 1
		mu.Unlock()

		if repeat {
			w.WriteHeader(http.StatusOK)
			return
		}
		created.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer fhirServer.Close()

	logger := zap.NewNop()
	fitbitCfg := config.FitbitConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		APIURL:       vendorServer.URL,
		TokenURL:     vendorServer.URL + "/oauth2/token",
		Timeout:      config.Duration{Duration: 5 * time.Second},
	}
	fitbitClient := fitbit.NewClient(fitbitCfg, s.Vault, logger)

	fhirClient := fhir.NewClient(config.FHIRConfig{
		BaseURL: fhirServer.URL + "/fhir",
		Timeout: config.Duration{Duration: 5 * time.Second},
	}, logger)

	registry, err := ingest.NewRegistry(ingest.NewFitbitService(
		fitbitClient,
		fitbit.NewNormalizer(logger),
		fhir.NewPublisher(fhirClient, logger),
		logger,
	))
	s.Require().NoError(err)

	syncWorker, err := worker.New(s.Repos.User, s.Repos.Integration, s.Repos.Job, registry, config.SyncConfig{
		PollInterval:        config.Duration{Duration: 20 * time.Millisecond},
		ScheduleTick:        config.Duration{Duration: time.Hour},
		MinHoursBetweenRuns: 6,
		MaxAttempts:         5,
	}, logger)
	s.Require().NoError(err)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		syncWorker.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	job, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	finished := s.waitForJob(ctx, job.ID)
	s.Equal(domain.JobStatusSuccess, finished.Status)
	s.Nil(finished.LastError)

	// A heart rate sample, a calories sample, a weight log, spo2 and steps.
	s.Equal(int64(5), created.Load())
	s.EqualValues(5, vendorRequests.Load(), "One request per dataset")

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusSuccess, refreshed.SyncStatus)
	s.Require().NotNil(refreshed.LastSuccessfulSyncAt)

	// A second run starts from the fresh watermark. Vendor-timestamped
	// observations now sit at or before it and must not be re-sent.
	secondJob, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	finished = s.waitForJob(ctx, secondJob.ID)
	s.Equal(domain.JobStatusSuccess, finished.Status)

	mu.Lock()
	defer mu.Unlock()
	for identifier, count := range sent {
		if strings.Contains(identifier, "heart_rate:"+today+":00:00:00") ||
			strings.Contains(identifier, "calories:"+today) ||
			strings.Contains(identifier, "weight:991") {
			s.Equal(1, count, "Watermark should suppress republishing: %s", identifier)
		}
	}
}

// TestSyncFlow_PublishFailuresFailJob runs a job against a healthy
// vendor API but a resource server that rejects every create. The job
// lands failed with per-observation errors joined into last_error and
// the watermark stays unset.
func (s *Suite) TestSyncFlow_PublishFailuresFailJob() {
	ctx := context.Background()
	user, _ := s.createUser("flow-publish-fail@example.com")
	integration := s.createIntegration(user.ID)

	_, err := s.Vault.Store(ctx, integration.ID, service.StoreParams{
		AccessToken: "publish-fail-token",
		ExpiresIn:   3600,
	})
	s.Require().NoError(err)

	vendorServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/activities/heart/") {
			fmt.Fprint(w, `{"activities-heart":[{"value":{"restingHeartRate":58}}],"activities-heart-intraday":{"dataset":[]}}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer vendorServer.Close()

	logger := zap.NewNop()
	fitbitClient := fitbit.NewClient(config.FitbitConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		APIURL:       vendorServer.URL,
		TokenURL:     vendorServer.URL + "/oauth2/token",
		Timeout:      config.Duration{Duration: 5 * time.Second},
	}, s.Vault, logger)

	fhirServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fhirServer.Close()

	fhirClient := fhir.NewClient(config.FHIRConfig{
		BaseURL: fhirServer.URL + "/fhir",
		Timeout: config.Duration{Duration: 5 * time.Second},
	}, logger)

	registry, err := ingest.NewRegistry(ingest.NewFitbitService(
		fitbitClient,
		fitbit.NewNormalizer(logger),
		fhir.NewPublisher(fhirClient, logger),
		logger,
	))
	s.Require().NoError(err)

	syncWorker, err := worker.New(s.Repos.User, s.Repos.Integration, s.Repos.Job, registry, config.SyncConfig{
		PollInterval:        config.Duration{Duration: 20 * time.Millisecond},
		ScheduleTick:        config.Duration{Duration: time.Hour},
		MinHoursBetweenRuns: 6,
		MaxAttempts:         5,
	}, logger)
	s.Require().NoError(err)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		syncWorker.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	job, err := s.Repos.Job.Enqueue(ctx, user.ID, domain.VendorFitbit, domain.TriggerManual, nil, 5)
	s.Require().NoError(err)

	finished := s.waitForJob(ctx, job.ID)
	s.Equal(domain.JobStatusFailed, finished.Status)
	s.Require().NotNil(finished.LastError)
	s.Contains(*finished.LastError, "resting_heart_rate")

	refreshed, err := s.Repos.Integration.GetByID(ctx, integration.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusFailed, refreshed.SyncStatus)
	s.Nil(refreshed.LastSuccessfulSyncAt)
}

// waitForJob polls until the job reaches a terminal state.
func (s *Suite) waitForJob(ctx context.Context, jobID string) *domain.Job {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Repos.Job.GetByID(ctx, jobID)
		s.Require().NoError(err)
		if job.IsTerminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.Require().FailNow("Job did not reach a terminal state in time")
	return nil
}
