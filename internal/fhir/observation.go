package fhir

import (
	"fmt"
	"time"

	"github.com/healthbridge/vendorsync/internal/domain"
)

const (
	loincSystem      = "http://loinc.org"
	ucumSystem       = "http://unitsofmeasure.org"
	identifierSystem = "urn:healthbridge:vendorsync"

	timestampLayout = "20060102150405"
)

// Coding is a FHIR Coding element.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept element.
type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

// Identifier is a FHIR Identifier element.
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Quantity is a FHIR Quantity element.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// Reference is a FHIR Reference element.
type Reference struct {
	Reference string `json:"reference"`
}

// Observation is the FHIR Observation resource as published to the
// resource server.
type Observation struct {
	ResourceType      string          `json:"resourceType"`
	Identifier        []Identifier    `json:"identifier"`
	Status            string          `json:"status"`
	Code              CodeableConcept `json:"code"`
	Subject           Reference       `json:"subject"`
	EffectiveDateTime string          `json:"effectiveDateTime"`
	ValueQuantity     Quantity        `json:"valueQuantity"`
}

type coding struct {
	loincCode    string
	loincDisplay string
	ucumCode     string
}

// codings maps observation types to their LOINC and UCUM codes.
var codings = map[string]coding{
	domain.ObservationHeartRate:  {loincCode: "8867-4", loincDisplay: "Heart rate", ucumCode: "/min"},
	domain.ObservationRestingHR:  {loincCode: "40443-4", loincDisplay: "Heart rate --resting", ucumCode: "/min"},
	domain.ObservationSpO2:       {loincCode: "59408-5", loincDisplay: "Oxygen saturation", ucumCode: "%"},
	domain.ObservationBodyWeight: {loincCode: "29463-7", loincDisplay: "Body weight", ucumCode: "kg"},
	domain.ObservationSteps:      {loincCode: "41950-7", loincDisplay: "Number of steps in 24 hour Measured", ucumCode: "{steps}"},
	domain.ObservationCalories:   {loincCode: "41981-2", loincDisplay: "Calories burned", ucumCode: "kcal"},
}

// DedupeIdentifier builds the stable identifier value that keys
// conditional creates for an observation belonging to a patient.
func DedupeIdentifier(obs domain.Observation, patientID string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		obs.Vendor,
		patientID,
		obs.Type,
		obs.EffectiveAt.UTC().Format(timestampLayout),
		obs.VendorSourceID,
	)
}

// NewObservation builds the FHIR resource for one measurement. It
// returns an error for observation types without a registered coding.
func NewObservation(obs domain.Observation, patientID string) (*Observation, error) {
	c, ok := codings[obs.Type]
	if !ok {
		return nil, fmt.Errorf("no coding registered for observation type %q", obs.Type)
	}

	return &Observation{
		ResourceType: "Observation",
		Identifier: []Identifier{{
			System: identifierSystem,
			Value:  DedupeIdentifier(obs, patientID),
		}},
		Status: "final",
		Code: CodeableConcept{
			Coding: []Coding{{System: loincSystem, Code: c.loincCode, Display: c.loincDisplay}},
			Text:   c.loincDisplay,
		},
		Subject:           Reference{Reference: "Patient/" + patientID},
		EffectiveDateTime: obs.EffectiveAt.UTC().Format(time.RFC3339),
		ValueQuantity: Quantity{
			Value:  obs.Value,
			Unit:   obs.Unit,
			System: ucumSystem,
			Code:   c.ucumCode,
		},
	}, nil
}
