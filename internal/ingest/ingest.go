package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
)

// Result reports one ingestion run. Errors keeps per-dataset and
// per-observation diagnostics with their provenance; Success reflects
// only the publishing outcome, tolerated fetch failures do not flip it.
type Result struct {
	Success             bool
	ObservationsCreated int
	ObservationsSkipped int
	Errors              []string
}

// Service ingests one vendor's data for one user integration. The
// after timestamp is the sync watermark; observations at or before it
// are never republished.
type Service interface {
	Vendor() string
	Ingest(ctx context.Context, user *domain.User, integration *domain.Integration, after *time.Time) (*Result, error)
}

// Registry resolves ingestion services by vendor key. It is closed at
// construction: lookups of unregistered vendors fail.
type Registry struct {
	services map[string]Service
}

// NewRegistry builds a registry from the given services. Duplicate
// vendor keys are a wiring mistake and return an error.
func NewRegistry(services ...Service) (*Registry, error) {
	r := &Registry{services: make(map[string]Service, len(services))}
	for _, svc := range services {
		vendor := svc.Vendor()
		if _, exists := r.services[vendor]; exists {
			return nil, fmt.Errorf("duplicate ingestion service for vendor %q", vendor)
		}
		r.services[vendor] = svc
	}
	return r, nil
}

// Resolve returns the service for the vendor key.
func (r *Registry) Resolve(vendor string) (Service, error) {
	svc, ok := r.services[vendor]
	if !ok {
		return nil, fmt.Errorf("no ingestion service registered for vendor %q", vendor)
	}
	return svc, nil
}

// Vendors lists the registered vendor keys in stable order.
func (r *Registry) Vendors() []string {
	vendors := make([]string, 0, len(r.services))
	for vendor := range r.services {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)
	return vendors
}
