package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
	"github.com/noah-isme/afterschool-roster-api/pkg/response"
)

type absenceService interface {
	MarkAbsent(ctx context.Context, classID string, req models.MarkAbsenceRequest, actor string) (*models.ManualAbsence, bool, error)
	ClearAbsence(ctx context.Context, classID string, studentID int64, rawDate, actor string) error
}

// AttendanceHandler toggles manual absences.
type AttendanceHandler struct {
	service absenceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc absenceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// MarkAbsent godoc
// @Summary Mark a student absent for a class date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.MarkAbsenceRequest true "Absence payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "already marked"
// @Router /classes/{id}/absences [put]
func (h *AttendanceHandler) MarkAbsent(c *gin.Context) {
	var req models.MarkAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	absence, created, err := h.service.MarkAbsent(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, absence)
		return
	}
	response.JSON(c, http.StatusOK, absence, nil)
}

// ClearAbsence godoc
// @Summary Clear a manual absence
// @Tags Attendance
// @Param id path string true "Class ID"
// @Param studentId path int true "Student external ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 204
// @Router /classes/{id}/absences/{studentId} [delete]
func (h *AttendanceHandler) ClearAbsence(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("studentId"), 10, 64)
	if err != nil || studentID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId must be a positive number"))
		return
	}
	if err := h.service.ClearAbsence(c.Request.Context(), c.Param("id"), studentID, c.Query("date"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
