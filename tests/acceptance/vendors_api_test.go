package acceptance

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/dto"
)

// doRequest sends an API request with an optional bearer token.
func (s *Suite) doRequest(method, path, token string) *http.Response {
	req, err := http.NewRequest(method, s.BaseURL+path, nil)
	s.Require().NoError(err, "Failed to build request")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err, "Failed to make request")
	return resp
}

func (s *Suite) TestVendors_RequiresAuth() {
	resp := s.doRequest(http.MethodGet, "/api/v1/vendors", "")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestSelectVendor_Success() {
	_, token := s.createUser("select@example.com")

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/select", token)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var integration dto.IntegrationResponse
	err := json.NewDecoder(resp.Body).Decode(&integration)
	s.Require().NoError(err)

	s.Equal(domain.VendorFitbit, integration.Vendor)
	s.True(integration.IsActive)
	s.Equal(domain.SyncStatusIdle, integration.SyncStatus)
	s.NotEmpty(integration.ID)
}

func (s *Suite) TestSelectVendor_Unknown() {
	_, token := s.createUser("unknown-vendor@example.com")

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/garmin/select", token)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)

	var errResp dto.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	s.Equal("Not found", errResp.Error)
}

func (s *Suite) TestSelectVendor_ReactivatesDisconnected() {
	_, token := s.createUser("reactivate@example.com")

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/select", token)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.doRequest(http.MethodDelete, "/api/v1/vendors/fitbit", token)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/select", token)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var integration dto.IntegrationResponse
	err := json.NewDecoder(resp.Body).Decode(&integration)
	s.Require().NoError(err)
	s.True(integration.IsActive, "Integration should be active again")
}

func (s *Suite) TestDisconnectVendor_NotFound() {
	_, token := s.createUser("no-integration@example.com")

	resp := s.doRequest(http.MethodDelete, "/api/v1/vendors/fitbit", token)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestListVendors() {
	user, token := s.createUser("list@example.com")
	s.createIntegration(user.ID)

	resp := s.doRequest(http.MethodGet, "/api/v1/vendors", token)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var integrations []dto.IntegrationResponse
	err := json.NewDecoder(resp.Body).Decode(&integrations)
	s.Require().NoError(err)

	s.Require().Len(integrations, 1)
	s.Equal(domain.VendorFitbit, integrations[0].Vendor)
}

func (s *Suite) TestEnqueueSync_Accepted() {
	user, token := s.createUser("sync@example.com")
	s.createIntegration(user.ID)

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/sync", token)
	defer resp.Body.Close()

	s.Equal(http.StatusAccepted, resp.StatusCode)

	var enqueueResp dto.EnqueueSyncResponse
	err := json.NewDecoder(resp.Body).Decode(&enqueueResp)
	s.Require().NoError(err)

	s.NotEmpty(enqueueResp.JobID)
	s.Equal(domain.JobStatusQueued, enqueueResp.Status)

	job, err := s.Repos.Job.GetByID(context.Background(), enqueueResp.JobID)
	s.Require().NoError(err)
	s.Equal(domain.TriggerManual, job.Trigger)
	s.Equal(user.ID, job.UserID)
}

func (s *Suite) TestEnqueueSync_DuplicateConflict() {
	user, token := s.createUser("sync-dup@example.com")
	s.createIntegration(user.ID)

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/sync", token)
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/sync", token)
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)

	var errResp dto.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	s.Equal("Conflict", errResp.Error)
}

func (s *Suite) TestEnqueueSync_NoIntegration() {
	_, token := s.createUser("sync-none@example.com")

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/sync", token)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestSyncStatus() {
	user, token := s.createUser("status@example.com")
	s.createIntegration(user.ID)

	resp := s.doRequest(http.MethodPost, "/api/v1/vendors/fitbit/sync", token)
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.doRequest(http.MethodGet, "/api/v1/sync/status", token)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var status dto.SyncStatusResponse
	err := json.NewDecoder(resp.Body).Decode(&status)
	s.Require().NoError(err)

	s.Require().Len(status.Vendors, 1)
	vendor := status.Vendors[0]
	s.Equal(domain.VendorFitbit, vendor.Integration.Vendor)
	s.Equal(domain.SyncStatusQueued, vendor.Integration.SyncStatus)
	s.Require().NotNil(vendor.LatestJob)
	s.Equal(domain.JobStatusQueued, vendor.LatestJob.Status)
	s.Equal(domain.TriggerManual, vendor.LatestJob.Trigger)
}

func (s *Suite) TestFitbitAuthorizeURL() {
	_, token := s.createUser("authorize@example.com")

	resp := s.doRequest(http.MethodGet, "/api/v1/integrations/fitbit/authorize", token)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthorizeURLResponse
	err := json.NewDecoder(resp.Body).Decode(&authResp)
	s.Require().NoError(err)

	s.Contains(authResp.AuthorizationURL, "client_id=test-client")
	s.Contains(authResp.AuthorizationURL, "response_type=code")
	s.NotEmpty(authResp.State)
}

func (s *Suite) TestFitbitCallback_MissingParams() {
	resp, err := http.Get(s.BaseURL + "/api/v1/integrations/fitbit/callback")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestFitbitCallback_InvalidState() {
	resp, err := http.Get(s.BaseURL + "/api/v1/integrations/fitbit/callback?code=abc&state=forged")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}
