package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/strideworks/trainsync/internal/dto"
	"github.com/strideworks/trainsync/internal/provider"
	"github.com/strideworks/trainsync/internal/service"
)

// SyncHandler handles batch sync requests
type SyncHandler struct {
	syncService service.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Push exports planned workouts to a provider
// @Summary Push workouts to a provider
// @Tags sync
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body dto.SyncPushRequest true "Push request"
// @Success 200 {object} domain.SyncSummary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /sync/{provider}/push [post]
func (h *SyncHandler) Push(c *gin.Context) {
	var req dto.SyncPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	summary, err := h.syncService.Push(c.Request.Context(), userID(c), c.Param("provider"), req.WorkoutIDs)
	if err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Pull imports completed provider activities
// @Summary Pull activities from a provider
// @Tags sync
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body dto.SyncPullRequest true "Pull request"
// @Success 200 {object} domain.SyncSummary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /sync/{provider}/pull [post]
func (h *SyncHandler) Pull(c *gin.Context) {
	var req dto.SyncPullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	summary, err := h.syncService.Pull(c.Request.Context(), userID(c), c.Param("provider"), req.Items)
	if err != nil {
		writeSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func writeSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "Not found",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrPassInProgress):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "Conflict",
			Message: "A sync pass for this provider is already running",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal error",
			Message: err.Error(),
		})
	}
}
