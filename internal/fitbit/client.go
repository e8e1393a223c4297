package fitbit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/healthbridge/vendorsync/internal/config"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/service"
	"go.uber.org/zap"
)

// Dataset identifies one day-scoped vendor endpoint.
type Dataset string

const (
	DatasetHeartRate        Dataset = "heart_rate"
	DatasetSpO2             Dataset = "spo2"
	DatasetBodyWeight       Dataset = "body_weight"
	DatasetActivitySummary  Dataset = "activity_summary"
	DatasetCaloriesIntraday Dataset = "calories_intraday"
)

// Datasets lists every dataset fetched for a sync day.
var Datasets = []Dataset{
	DatasetHeartRate,
	DatasetSpO2,
	DatasetBodyWeight,
	DatasetActivitySummary,
	DatasetCaloriesIntraday,
}

const dateLayout = "2006-01-02"

// endpoint returns the API path for the dataset on a given day.
func (d Dataset) endpoint(day time.Time) string {
	ds := day.Format(dateLayout)
	switch d {
	case DatasetHeartRate:
		return fmt.Sprintf("/1/user/-/activities/heart/date/%s/1d.json", ds)
	case DatasetSpO2:
		return fmt.Sprintf("/1/user/-/spo2/date/%s.json", ds)
	case DatasetBodyWeight:
		return fmt.Sprintf("/1/user/-/body/log/weight/date/%s.json", ds)
	case DatasetActivitySummary:
		return fmt.Sprintf("/1/user/-/activities/date/%s.json", ds)
	case DatasetCaloriesIntraday:
		return fmt.Sprintf("/1/user/-/activities/calories/date/%s/1d/15min.json", ds)
	default:
		return ""
	}
}

// TokenVault is the credential store the client needs: read tokens,
// check expiry, persist a refreshed set.
type TokenVault interface {
	Retrieve(ctx context.Context, integrationID string) (string, *string, error)
	IsExpired(ctx context.Context, integrationID string) (bool, error)
	Store(ctx context.Context, integrationID string, params service.StoreParams) (*domain.Credential, error)
}

// TokenResponse is the vendor token endpoint's response shape, shared by
// the authorization-code exchange and the refresh grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	UserID       string `json:"user_id"`
}

// DayPayload holds one day's raw responses. A nil field means that
// dataset's fetch failed or returned nothing.
type DayPayload struct {
	Date             time.Time
	HeartRate        json.RawMessage
	SpO2             json.RawMessage
	BodyWeight       json.RawMessage
	ActivitySummary  json.RawMessage
	CaloriesIntraday json.RawMessage
}

// Client is the authenticated Fitbit Web API client. It refreshes
// access tokens through the vault before they expire and maps transport
// outcomes onto the package's typed errors.
type Client struct {
	cfg    config.FitbitConfig
	http   *http.Client
	vault  TokenVault
	logger *zap.Logger
}

// NewClient creates a new Fitbit API client
func NewClient(cfg config.FitbitConfig, vault TokenVault, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout.Duration},
		vault:  vault,
		logger: logger,
	}
}

// Vendor returns the vendor key this client serves
func (c *Client) Vendor() string {
	return domain.VendorFitbit
}

// AuthCodeURL builds the vendor authorization URL for the given signed
// state token.
func (c *Client) AuthCodeURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
		"state":         {state},
	}
	return fmt.Sprintf("%s?%s", c.cfg.AuthorizeURL, params.Encode())
}

// ExchangeCode performs the authorization-code-for-token exchange.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURI},
	}
	return c.tokenRequest(ctx, form)
}

// FetchDay fetches one dataset's raw payload for one day.
func (c *Client) FetchDay(ctx context.Context, integrationID string, day time.Time, dataset Dataset) (json.RawMessage, error) {
	endpoint := dataset.endpoint(day)
	if endpoint == "" {
		return nil, fmt.Errorf("unknown dataset %q", dataset)
	}

	accessToken, err := c.validAccessToken(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("vendor rate limit reached",
			zap.String("integration_id", integrationID),
			zap.String("dataset", string(dataset)),
		)
		return nil, ErrRateLimited
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.RawMessage(body), nil
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// FetchAllForDay fetches every dataset for one day. A failed dataset
// does not abort the others; all failures are returned alongside
// whatever succeeded, prefixed with the dataset name.
func (c *Client) FetchAllForDay(ctx context.Context, integrationID string, day time.Time) (*DayPayload, []error) {
	payload := &DayPayload{Date: day}
	var errs []error

	for _, dataset := range Datasets {
		raw, err := c.FetchDay(ctx, integrationID, day, dataset)
		if err != nil {
			c.logger.Warn("dataset fetch failed",
				zap.String("integration_id", integrationID),
				zap.String("dataset", string(dataset)),
				zap.String("date", day.Format(dateLayout)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s %s: %w", dataset, day.Format(dateLayout), err))
			continue
		}

		switch dataset {
		case DatasetHeartRate:
			payload.HeartRate = raw
		case DatasetSpO2:
			payload.SpO2 = raw
		case DatasetBodyWeight:
			payload.BodyWeight = raw
		case DatasetActivitySummary:
			payload.ActivitySummary = raw
		case DatasetCaloriesIntraday:
			payload.CaloriesIntraday = raw
		}
	}

	return payload, errs
}

// validAccessToken returns a usable access token, refreshing through the
// vendor token endpoint when the stored one is at or past the expiry
// buffer.
func (c *Client) validAccessToken(ctx context.Context, integrationID string) (string, error) {
	accessToken, refreshToken, err := c.vault.Retrieve(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("no credentials for integration: %w", err)
	}

	expired, err := c.vault.IsExpired(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("failed to check token expiry: %w", err)
	}
	if !expired {
		return accessToken, nil
	}

	if refreshToken == nil || *refreshToken == "" {
		return "", fmt.Errorf("token expired and no refresh token available: %w", ErrAuthExpired)
	}

	return c.refresh(ctx, integrationID, *refreshToken)
}

// refresh exchanges the refresh token for a new token set and persists
// it through the vault.
func (c *Client) refresh(ctx context.Context, integrationID, refreshToken string) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	tokens, err := c.tokenRequest(ctx, form)
	if err != nil {
		// A rejected refresh grant is permanent until the user
		// re-authorizes; transport blips stay retryable.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("refresh rejected: %v: %w", apiErr, ErrAuthExpired)
		}
		return "", err
	}

	// Vendors may omit the refresh token on rotation; keep the old one.
	newRefresh := tokens.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	params := service.StoreParams{
		AccessToken:  tokens.AccessToken,
		RefreshToken: &newRefresh,
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    tokens.TokenType,
	}
	if tokens.Scope != "" {
		params.Scope = &tokens.Scope
	}
	if tokens.UserID != "" {
		params.VendorUserID = &tokens.UserID
	}

	if _, err := c.vault.Store(ctx, integrationID, params); err != nil {
		return "", fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	c.logger.Info("refreshed vendor access token", zap.String("integration_id", integrationID))
	return tokens.AccessToken, nil
}

// tokenRequest posts a grant to the token endpoint with Basic client
// credentials.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}

	return &tokens, nil
}

// mapTransportError folds timeouts and connection failures into
// ErrUnavailable.
func mapTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("request timed out: %w", ErrUnavailable)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%v: %w", urlErr.Err, ErrUnavailable)
	}

	return fmt.Errorf("request failed: %v: %w", err, ErrUnavailable)
}
