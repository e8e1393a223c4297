package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthbridge/vendorsync/internal/dto"
	"github.com/healthbridge/vendorsync/internal/ingest"
	"github.com/healthbridge/vendorsync/internal/repository"
	"github.com/healthbridge/vendorsync/internal/service"
)

// IntegrationHandler handles vendor integration requests
type IntegrationHandler struct {
	integrationService *service.IntegrationService
	registry           *ingest.Registry
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(integrationService *service.IntegrationService, registry *ingest.Registry) *IntegrationHandler {
	return &IntegrationHandler{
		integrationService: integrationService,
		registry:           registry,
	}
}

// List returns the user's vendor integrations
// @Summary List integrations
// @Tags vendors
// @Produce json
// @Success 200 {array} dto.IntegrationResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /vendors [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")

	integrations, err := h.integrationService.List(c.Request.Context(), userID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	response := make([]dto.IntegrationResponse, 0, len(integrations))
	for _, integration := range integrations {
		response = append(response, toIntegrationResponse(integration))
	}

	c.JSON(http.StatusOK, response)
}

// Select connects the user to a vendor
// @Summary Select a vendor
// @Description Create the integration for a vendor, or reactivate a disconnected one
// @Tags vendors
// @Produce json
// @Param vendor path string true "Vendor key"
// @Success 200 {object} dto.IntegrationResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /vendors/{vendor}/select [post]
func (h *IntegrationHandler) Select(c *gin.Context) {
	userID := c.GetString("user_id")
	vendor := service.NormalizeVendor(c.Param("vendor"))

	if _, err := h.registry.Resolve(vendor); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: "Unknown vendor: " + vendor,
		})
		return
	}

	integration, err := h.integrationService.Select(c.Request.Context(), userID, vendor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toIntegrationResponse(integration))
}

// Disconnect deactivates a vendor integration and deletes its credentials
// @Summary Disconnect a vendor
// @Tags vendors
// @Produce json
// @Param vendor path string true "Vendor key"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /vendors/{vendor} [delete]
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("user_id")
	vendor := service.NormalizeVendor(c.Param("vendor"))

	err := h.integrationService.Disconnect(c.Request.Context(), userID, vendor)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: "No integration for vendor: " + vendor,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Vendor disconnected"})
}
