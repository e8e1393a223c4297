package fhir

import (
	"context"
	"fmt"

	"github.com/healthbridge/vendorsync/internal/domain"
	"go.uber.org/zap"
)

// ObservationCreator is the slice of the client the publisher uses.
type ObservationCreator interface {
	CreateObservation(ctx context.Context, obs *Observation) (CreateOutcome, error)
}

// PublishResult summarizes one batch publication. Errors carries a
// human-readable entry per failed observation.
type PublishResult struct {
	Created int
	Skipped int
	Failed  int
	Errors  []string
}

// Publisher publishes observation batches to the resource server,
// best effort. One failed observation never blocks the rest of the
// batch.
type Publisher struct {
	creator ObservationCreator
	logger  *zap.Logger
}

// NewPublisher creates a new observation publisher
func NewPublisher(creator ObservationCreator, logger *zap.Logger) *Publisher {
	return &Publisher{creator: creator, logger: logger}
}

// Publish sends every observation in the batch as a conditional create
// against the given patient and tallies the outcomes.
func (p *Publisher) Publish(ctx context.Context, patientID string, observations []domain.Observation) *PublishResult {
	result := &PublishResult{}

	for _, obs := range observations {
		resource, err := NewObservation(obs, patientID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", obs.Type, obs.VendorSourceID, err))
			continue
		}

		outcome, err := p.creator.CreateObservation(ctx, resource)
		if err != nil {
			p.logger.Warn("failed to publish observation",
				zap.String("patient_id", patientID),
				zap.String("type", obs.Type),
				zap.String("source_id", obs.VendorSourceID),
				zap.Error(err),
			)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", obs.Type, obs.VendorSourceID, err))
			continue
		}

		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeSkipped:
			result.Skipped++
		}
	}

	return result
}
