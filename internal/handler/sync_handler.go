package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

type syncRunner interface {
	Run(ctx context.Context, actor string) (*models.SyncSummary, error)
}

// SyncHandler triggers reconciliation on demand.
type SyncHandler struct {
	runner syncRunner
}

// NewSyncHandler constructs a sync handler.
func NewSyncHandler(runner syncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// Trigger godoc
// @Summary Run a roster sync pass now
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	summary, err := h.runner.Run(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.ErrorWithData(c, err, summary)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"row_errors": summary.ErrorCount})
}
