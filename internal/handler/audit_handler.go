package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	service auditLister
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc auditLister) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries, newest first
// @Tags Audit
// @Produce json
// @Param table query string false "Table name"
// @Param record_id query string false "Record ID"
// @Param action query string false "insert, update, delete or sync"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.AuditFilter{
		TableName: strings.TrimSpace(c.Query("table")),
		RecordID:  strings.TrimSpace(c.Query("record_id")),
		Action:    models.AuditAction(strings.ToLower(strings.TrimSpace(c.Query("action")))),
	}
	filter.Page, filter.PageSize = pageParams(c, 50)

	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
