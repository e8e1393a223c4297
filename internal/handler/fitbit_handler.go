package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthbridge/vendorsync/internal/domain"
	"github.com/healthbridge/vendorsync/internal/dto"
	"github.com/healthbridge/vendorsync/internal/fitbit"
	"github.com/healthbridge/vendorsync/internal/service"
	"github.com/healthbridge/vendorsync/internal/utils"
	"go.uber.org/zap"
)

// FitbitHandler handles the Fitbit OAuth flow
type FitbitHandler struct {
	integrationService *service.IntegrationService
	vault              *service.TokenVault
	client             *fitbit.Client
	states             *utils.StateTokenManager
	logger             *zap.Logger
}

// NewFitbitHandler creates a new Fitbit OAuth handler
func NewFitbitHandler(
	integrationService *service.IntegrationService,
	vault *service.TokenVault,
	client *fitbit.Client,
	states *utils.StateTokenManager,
	logger *zap.Logger,
) *FitbitHandler {
	return &FitbitHandler{
		integrationService: integrationService,
		vault:              vault,
		client:             client,
		states:             states,
		logger:             logger,
	}
}

// AuthorizeURL starts the OAuth flow
// @Summary Fitbit authorization URL
// @Description Build the vendor authorization URL with a signed state token
// @Tags fitbit
// @Produce json
// @Success 200 {object} dto.AuthorizeURLResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /integrations/fitbit/authorize [get]
func (h *FitbitHandler) AuthorizeURL(c *gin.Context) {
	userID := c.GetString("user_id")

	integration, err := h.integrationService.Select(c.Request.Context(), userID, domain.VendorFitbit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	state, err := h.states.Generate(userID, integration.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to generate state token",
		})
		return
	}

	c.JSON(http.StatusOK, dto.AuthorizeURLResponse{
		AuthorizationURL: h.client.AuthCodeURL(state),
		State:            state,
	})
}

// Callback completes the OAuth flow
// @Summary Fitbit OAuth callback
// @Description Exchange the authorization code and store encrypted tokens
// @Tags fitbit
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "Signed state token"
// @Success 200 {object} dto.CallbackResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /integrations/fitbit/callback [get]
func (h *FitbitHandler) Callback(c *gin.Context) {
	if vendorErr := c.Query("error"); vendorErr != "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Authorization denied",
			Message: vendorErr,
		})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "code and state query parameters are required",
		})
		return
	}

	// The signed state token is the sole proof the callback belongs to
	// a flow this service started.
	claims, err := h.states.Validate(state)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "Invalid or expired state token",
		})
		return
	}

	tokens, err := h.client.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed",
			zap.String("integration_id", claims.IntegrationID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Bad gateway",
			Message: "Vendor token exchange failed",
		})
		return
	}

	params := service.StoreParams{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
		TokenType:   tokens.TokenType,
	}
	if tokens.RefreshToken != "" {
		params.RefreshToken = &tokens.RefreshToken
	}
	if tokens.Scope != "" {
		params.Scope = &tokens.Scope
	}
	if tokens.UserID != "" {
		params.VendorUserID = &tokens.UserID
	}

	if _, err := h.vault.Store(c.Request.Context(), claims.IntegrationID, params); err != nil {
		h.logger.Error("failed to store credentials",
			zap.String("integration_id", claims.IntegrationID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to store credentials",
		})
		return
	}

	if tokens.UserID != "" {
		if err := h.integrationService.LinkVendorAccount(c.Request.Context(), claims.IntegrationID, tokens.UserID); err != nil {
			h.logger.Warn("failed to record vendor user id",
				zap.String("integration_id", claims.IntegrationID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, dto.CallbackResponse{
		Message:      "Vendor account connected",
		Vendor:       domain.VendorFitbit,
		VendorUserID: tokens.UserID,
	})
}
