package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/healthbridge/vendorsync/internal/config"
	"go.uber.org/zap"
)

// CreateOutcome reports how the resource server resolved a conditional
// create.
type CreateOutcome int

const (
	// OutcomeCreated means the server stored a new resource.
	OutcomeCreated CreateOutcome = iota
	// OutcomeSkipped means a resource with the same identifier already
	// existed and the server returned it unchanged.
	OutcomeSkipped
)

// Client talks to the FHIR resource server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a new FHIR resource server client
func NewClient(cfg config.FHIRConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout.Duration},
		logger:  logger,
	}
}

// CreateObservation posts the observation as a conditional create keyed
// on its dedupe identifier. The server creates the resource only when
// no observation with that identifier exists yet.
func (c *Client) CreateObservation(ctx context.Context, obs *Observation) (CreateOutcome, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode observation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Observation", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	identifier := obs.Identifier[0]
	req.Header.Set("Content-Type", "application/fhir+json")
	req.Header.Set("If-None-Exist", "identifier="+url.QueryEscape(identifier.System+"|"+identifier.Value))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("resource server unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return OutcomeCreated, nil
	case http.StatusOK:
		return OutcomeSkipped, nil
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("resource server returned %d: %s", resp.StatusCode, string(detail))
	}
}
