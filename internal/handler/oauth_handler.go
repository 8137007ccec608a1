package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/dto"
	"github.com/strideworks/trainsync/internal/provider"
	"github.com/strideworks/trainsync/internal/service"
)

// OAuthHandler handles provider connection requests
type OAuthHandler struct {
	oauthService service.OAuthService
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(oauthService service.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauthService: oauthService}
}

// Authorize returns the provider consent URL
// @Summary Start provider connection
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} dto.AuthorizeResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /providers/{provider}/connect [get]
func (h *OAuthHandler) Authorize(c *gin.Context) {
	url, err := h.oauthService.AuthorizeURL(c.Request.Context(), userID(c), c.Param("provider"))
	if err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.AuthorizeResponse{URL: url})
}

// Callback completes the provider connection
// @Summary OAuth callback
// @Tags oauth
// @Produce json
// @Param state query string true "State token"
// @Param code query string true "Authorization code"
// @Success 200 {object} dto.ConnectionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /providers/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: "state and code query parameters are required",
		})
		return
	}

	conn, err := h.oauthService.HandleCallback(c.Request.Context(), state, code, c.Query("code_verifier"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid or expired state",
			})
			return
		}
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "Provider error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, connectionResponse(conn))
}

// Connections lists the user's provider connections
// @Summary List provider connections
// @Tags oauth
// @Produce json
// @Success 200 {array} dto.ConnectionResponse
// @Router /providers [get]
func (h *OAuthHandler) Connections(c *gin.Context) {
	conns, err := h.oauthService.Connections(c.Request.Context(), userID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal error",
			Message: err.Error(),
		})
		return
	}

	out := make([]dto.ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		out = append(out, connectionResponse(conn))
	}
	c.JSON(http.StatusOK, out)
}

// Refresh rotates the stored provider tokens
// @Summary Refresh provider tokens
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} dto.MessageResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /providers/{provider}/refresh [post]
func (h *OAuthHandler) Refresh(c *gin.Context) {
	err := h.oauthService.Refresh(c.Request.Context(), userID(c), c.Param("provider"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConnectionNotFound), errors.Is(err, provider.ErrUnknownProvider):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: err.Error(),
			})
		case errors.Is(err, provider.ErrAuthRejected):
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:             "Unauthorized",
				Message:           "Provider rejected the refresh token",
				ReconnectRequired: true,
			})
		default:
			c.JSON(http.StatusBadGateway, dto.ErrorResponse{
				Error:   "Provider error",
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Tokens refreshed"})
}

// Disconnect revokes a provider connection
// @Summary Disconnect a provider
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} dto.MessageResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /providers/{provider} [delete]
func (h *OAuthHandler) Disconnect(c *gin.Context) {
	err := h.oauthService.Disconnect(c.Request.Context(), userID(c), c.Param("provider"))
	if err != nil {
		if errors.Is(err, service.ErrConnectionNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Provider disconnected"})
}

func connectionResponse(conn *domain.Connection) dto.ConnectionResponse {
	resp := dto.ConnectionResponse{
		Provider:  conn.Provider,
		Status:    string(conn.Status),
		Scopes:    conn.Scopes,
		ExpiresAt: conn.ExpiresAt.Format(time.RFC3339),
	}
	if conn.LastSyncAt != nil {
		s := conn.LastSyncAt.Format(time.RFC3339)
		resp.LastSyncAt = &s
	}
	return resp
}
