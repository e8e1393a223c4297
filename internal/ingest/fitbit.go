package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/fhir"
	"github.com/healthbridge/vendorsync/internal/fitbit"
	"go.uber.org/zap"
)

// dayFetcher is the slice of the vendor client the service uses.
type dayFetcher interface {
	FetchAllForDay(ctx context.Context, integrationID string, day time.Time) (*fitbit.DayPayload, []error)
}

// dayNormalizer converts raw day payloads to observations.
type dayNormalizer interface {
	NormalizeDay(payload *fitbit.DayPayload, timezone string) []domain.Observation
}

// observationPublisher publishes a batch against a patient.
type observationPublisher interface {
	Publish(ctx context.Context, patientID string, observations []domain.Observation) *fhir.PublishResult
}

// FitbitService runs one Fitbit sync: fetch every dataset for every day
// in the watermark-to-today range, normalize, filter against the
// watermark, publish as one batch.
type FitbitService struct {
	fetcher    dayFetcher
	normalizer dayNormalizer
	publisher  observationPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewFitbitService creates a new Fitbit ingestion service
func NewFitbitService(fetcher dayFetcher, normalizer dayNormalizer, publisher observationPublisher, logger *zap.Logger) *FitbitService {
	return &FitbitService{
		fetcher:    fetcher,
		normalizer: normalizer,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Vendor returns the vendor key this service ingests for
func (s *FitbitService) Vendor() string {
	return domain.VendorFitbit
}

// Ingest synchronizes the integration's data since the watermark. A
// user without a linked patient identity fails fast; partial dataset
// fetch failures are collected but only publish failures fail the run.
func (s *FitbitService) Ingest(ctx context.Context, user *domain.User, integration *domain.Integration, after *time.Time) (*Result, error) {
	if user.FHIRPatientID == nil || *user.FHIRPatientID == "" {
		return nil, fmt.Errorf("user %s has no linked patient identity", user.ID)
	}
	patientID := *user.FHIRPatientID

	today := startOfDayUTC(s.now().UTC())
	startDay := today
	if after != nil {
		startDay = startOfDayUTC(after.UTC())
	}

	result := &Result{}
	var observations []domain.Observation

	for day := startDay; !day.After(today); day = day.AddDate(0, 0, 1) {
		payload, fetchErrs := s.fetcher.FetchAllForDay(ctx, integration.ID, day)
		for _, err := range fetchErrs {
			result.Errors = append(result.Errors, err.Error())
		}
		observations = append(observations, s.normalizer.NormalizeDay(payload, user.Timezone)...)
	}

	if after != nil {
		observations = filterAfter(observations, *after)
	}

	if len(observations) == 0 {
		s.logger.Info("no new observations to publish",
			zap.String("integration_id", integration.ID),
			zap.Int("fetch_errors", len(result.Errors)),
		)
		result.Success = true
		return result, nil
	}

	published := s.publisher.Publish(ctx, patientID, observations)
	result.ObservationsCreated = published.Created
	result.ObservationsSkipped = published.Skipped
	result.Errors = append(result.Errors, published.Errors...)
	result.Success = published.Failed == 0

	s.logger.Info("ingestion finished",
		zap.String("integration_id", integration.ID),
		zap.Bool("success", result.Success),
		zap.Int("created", published.Created),
		zap.Int("skipped", published.Skipped),
		zap.Int("failed", published.Failed),
	)

	return result, nil
}

func startOfDayUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// filterAfter drops observations whose effective time is not strictly
// after the watermark.
func filterAfter(observations []domain.Observation, after time.Time) []domain.Observation {
	kept := observations[:0]
	for _, obs := range observations {
		if obs.EffectiveAt.After(after) {
			kept = append(kept, obs)
		}
	}
	return kept
}
