package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

type digestSender interface {
	Send(ctx context.Context, date time.Time) (*models.DigestResult, error)
}

type dateParser interface {
	ParseDate(raw string) (time.Time, error)
}

// DigestHandler sends the daily roster digest on demand.
type DigestHandler struct {
	digest digestSender
	dates  dateParser
}

// NewDigestHandler constructs a digest handler.
func NewDigestHandler(digest digestSender, dates dateParser) *DigestHandler {
	return &DigestHandler{digest: digest, dates: dates}
}

// Send godoc
// @Summary Email the roster digest for a date
// @Tags Digest
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /digest/send [post]
func (h *DigestHandler) Send(c *gin.Context) {
	date, err := h.dates.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.digest.Send(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
