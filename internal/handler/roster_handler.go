package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	"github.com/noah-isme/afterschool-roster-api/internal/service"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

type rosterService interface {
	ParseDate(raw string) (time.Time, error)
	ClassRoster(ctx context.Context, classID string, date time.Time) (*models.ClassRoster, error)
	TodayRosters(ctx context.Context, date time.Time) ([]models.ClassRoster, error)
}

type rosterPrinter interface {
	PrintRoster(ctx context.Context, classID string, date time.Time, format models.ExportFormat) (*service.PrintResult, error)
}

// RosterHandler serves aggregated rosters.
type RosterHandler struct {
	rosters rosterService
	printer rosterPrinter
}

// NewRosterHandler constructs a roster handler.
func NewRosterHandler(rosters rosterService, printer rosterPrinter) *RosterHandler {
	return &RosterHandler{rosters: rosters, printer: printer}
}

// ClassRoster godoc
// @Summary Roster of one class with attendance
// @Tags Rosters
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/roster [get]
func (h *RosterHandler) ClassRoster(c *gin.Context) {
	date, err := h.rosters.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	roster, err := h.rosters.ClassRoster(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Today godoc
// @Summary Rosters of every class meeting on a date
// @Tags Rosters
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /rosters/today [get]
func (h *RosterHandler) Today(c *gin.Context) {
	date, err := h.rosters.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	rosters, err := h.rosters.TodayRosters(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rosters, nil, map[string]interface{}{"date": date.Format("2006-01-02"), "classes": len(rosters)})
}

// Print godoc
// @Summary Download a printable roster
// @Tags Rosters
// @Produce application/pdf,text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Class ID"
// @Param format query string false "pdf (default), csv or xlsx"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} file
// @Router /classes/{id}/roster/print [get]
func (h *RosterHandler) Print(c *gin.Context) {
	date, err := h.rosters.ParseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	result, err := h.printer.PrintRoster(c.Request.Context(), c.Param("id"), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
