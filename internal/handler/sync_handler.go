package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/dto"
	"github.com/healthbridge/vendorsync/internal/ingest"
	"github.com/healthbridge/vendorsync/internal/repository"
	"github.com/healthbridge/vendorsync/internal/service"
)

// SyncHandler handles sync signaling requests
type SyncHandler struct {
	integrationService *service.IntegrationService
	registry           *ingest.Registry
	maxAttempts        int
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(integrationService *service.IntegrationService, registry *ingest.Registry, maxAttempts int) *SyncHandler {
	return &SyncHandler{
		integrationService: integrationService,
		registry:           registry,
		maxAttempts:        maxAttempts,
	}
}

// EnqueueSync enqueues a manual sync job
// @Summary Request a sync
// @Description Enqueue a manual sync job for a connected vendor
// @Tags sync
// @Produce json
// @Param vendor path string true "Vendor key"
// @Success 202 {object} dto.EnqueueSyncResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /vendors/{vendor}/sync [post]
func (h *SyncHandler) EnqueueSync(c *gin.Context) {
	userID := c.GetString("user_id")
	vendor := service.NormalizeVendor(c.Param("vendor"))

	if _, err := h.registry.Resolve(vendor); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: "Unknown vendor: " + vendor,
		})
		return
	}

	job, err := h.integrationService.EnqueueSync(c.Request.Context(), userID, vendor, h.maxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: "No integration for vendor: " + vendor,
			})
		case errors.Is(err, service.ErrSyncAlreadyPending):
			c.JSON(http.StatusConflict, dto.ErrorResponse{
				Error:   "Conflict",
				Message: err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error:   "Internal server error",
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueSyncResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Sync job enqueued",
	})
}

// Status reports per-vendor sync state
// @Summary Sync status
// @Description Report every integration with its latest sync job
// @Tags sync
// @Produce json
// @Success 200 {object} dto.SyncStatusResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	userID := c.GetString("user_id")

	integrations, err := h.integrationService.List(c.Request.Context(), userID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	response := dto.SyncStatusResponse{Vendors: make([]dto.VendorSyncStatus, 0, len(integrations))}
	for _, integration := range integrations {
		job, err := h.integrationService.LatestJob(c.Request.Context(), userID, integration.Vendor)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error:   "Internal server error",
				Message: err.Error(),
			})
			return
		}
		response.Vendors = append(response.Vendors, dto.VendorSyncStatus{
			Integration: toIntegrationResponse(integration),
			LatestJob:   toJobResponse(job),
		})
	}

	c.JSON(http.StatusOK, response)
}

func toIntegrationResponse(integration *domain.Integration) dto.IntegrationResponse {
	return dto.IntegrationResponse{
		ID:                   integration.ID,
		Vendor:               integration.Vendor,
		IsActive:             integration.IsActive,
		SyncStatus:           integration.SyncStatus,
		SyncJobID:            integration.SyncJobID,
		LastSyncAt:           integration.LastSyncAt,
		LastSuccessfulSyncAt: integration.LastSuccessfulSyncAt,
		VendorUserID:         integration.VendorUserID,
		CreatedAt:            integration.CreatedAt,
	}
}

func toJobResponse(job *domain.Job) *dto.JobResponse {
	if job == nil {
		return nil
	}
	return &dto.JobResponse{
		ID:         job.ID,
		Vendor:     job.Vendor,
		Trigger:    job.Trigger,
		Status:     job.Status,
		Attempts:   job.Attempts,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		LastError:  job.LastError,
		CreatedAt:  job.CreatedAt,
	}
}
