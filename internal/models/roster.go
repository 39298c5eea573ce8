package models

import "time"

// RosterEntry is one display-ready roster line.
type RosterEntry struct {
	EnrollmentID      string              `json:"enrollment_id"`
	Provenance        Provenance          `json:"provenance"`
	StudentExternalID int64               `json:"student_external_id"`
	StudentName       string              `json:"student_name"`
	FirstName         string              `json:"first_name"`
	LastName          string              `json:"last_name"`
	Grade             int                 `json:"grade"`
	Category          *EnrollmentCategory `json:"category,omitempty"`
	Notes             string              `json:"notes"`
	FeePaid           bool                `json:"fee_paid"`
	IsAbsent          bool                `json:"is_absent"`
	AbsenceSource     *AbsenceSource      `json:"absence_source,omitempty"`
}

// ClassRoster is the aggregated roster for one class on one date.
type ClassRoster struct {
	Class   ClassOffering `json:"class"`
	Date    time.Time     `json:"date"`
	Entries []RosterEntry `json:"entries"`
	Absent  int           `json:"absent"`
}
