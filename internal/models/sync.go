package models

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// FeedClassRow is one class row read from the warehouse.
type FeedClassRow struct {
	ExternalClassID string  `db:"external_class_id" json:"external_class_id"`
	ProgramName     string  `db:"program_name" json:"program_name"`
	MeetingTimes    string  `db:"meeting_times" json:"meeting_times"`
	Teacher         *string `db:"teacher" json:"teacher,omitempty"`
	SchoolYear      string  `db:"school_year" json:"school_year"`
	MinGrade        *int    `db:"min_grade" json:"min_grade,omitempty"`
	MaxGrade        *int    `db:"max_grade" json:"max_grade,omitempty"`
}

// FeedEnrollmentRow is one enrollment row read from the warehouse.
type FeedEnrollmentRow struct {
	ExternalClassID   string  `db:"external_class_id" json:"external_class_id"`
	StudentExternalID int64   `db:"student_external_id" json:"student_external_id"`
	EnrollmentStatus  *string `db:"enrollment_status" json:"enrollment_status,omitempty"`
	FeePaid           bool    `db:"fee_paid" json:"fee_paid"`
	Notes             *string `db:"notes" json:"notes,omitempty"`
}

// Sync pass steps cited by row errors.
const (
	SyncStepClasses     = "classes"
	SyncStepEnrollments = "enrollments"
	SyncStepDeactivate  = "deactivate"
)

// RowError is a row-level fault collected during a pass.
type RowError struct {
	Step    string `json:"step"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Step, e.Key, e.Message)
}

// ClassCounts tallies class changes in one pass.
type ClassCounts struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
}

// EnrollmentCounts tallies enrollment changes in one pass.
type EnrollmentCounts struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Deactivated int `json:"deactivated"`
}

// SyncSummary is the outcome of one reconciliation pass.
type SyncSummary struct {
	PassID      string           `json:"pass_id"`
	Actor       string           `json:"actor"`
	StartedAt   time.Time        `json:"started_at"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	Classes     ClassCounts      `json:"classes"`
	Enrollments EnrollmentCounts `json:"enrollments"`
	Errors      []RowError       `json:"errors"`
	ErrorCount  int              `json:"error_count"`
	Fatal       string           `json:"fatal,omitempty"`
}

// Err combines the row errors into one error, or nil when the pass was clean.
func (s *SyncSummary) Err() error {
	var err error
	for _, rowErr := range s.Errors {
		err = multierr.Append(err, rowErr)
	}
	return err
}

// Failed reports whether the pass aborted.
func (s *SyncSummary) Failed() bool {
	return s.Fatal != ""
}
