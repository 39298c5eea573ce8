package models

import "time"

// AbsenceSource labels where an absence came from.
type AbsenceSource string

const (
	AbsenceSourceExternal AbsenceSource = "VC ABSENT"
	AbsenceSourceManual   AbsenceSource = "MANUAL"
)

// AttendanceMark is one external attendance row.
type AttendanceMark struct {
	StudentExternalID int64     `db:"student_external_id" json:"student_external_id"`
	Date              time.Time `db:"date" json:"date"`
	StatusCode        int       `db:"status_code" json:"status_code"`
}

// ManualAbsence is a staff-toggled absence for one class and date.
type ManualAbsence struct {
	ID                string    `db:"id" json:"id"`
	ClassID           string    `db:"class_id" json:"class_id"`
	StudentExternalID int64     `db:"student_external_id" json:"student_external_id"`
	Date              time.Time `db:"date" json:"date"`
	CreatedBy         string    `db:"created_by" json:"created_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// MarkAbsenceRequest toggles a manual absence on.
type MarkAbsenceRequest struct {
	StudentExternalID int64  `json:"student_external_id" validate:"required,gt=0"`
	Date              string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}
