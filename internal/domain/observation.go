package domain

import "time"

// Observation types produced by vendor normalizers.
const (
	ObservationHeartRate  = "heart_rate"
	ObservationRestingHR  = "resting_heart_rate"
	ObservationSpO2       = "spo2"
	ObservationBodyWeight = "body_weight"
	ObservationSteps      = "steps"
	ObservationCalories   = "calories"
)

// Observation is a single vendor-agnostic measurement ready for
// publication. VendorSourceID identifies the originating record within
// the vendor's data for the day, keeping the dedupe identifier stable
// across repeated syncs.
type Observation struct {
	Type           string
	Value          float64
	Unit           string
	EffectiveAt    time.Time
	Vendor         string
	VendorSourceID string
}
