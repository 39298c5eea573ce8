package models

import "time"

// MeetingDay is the weekday a class meets on. After-school classes run Monday to Thursday.
type MeetingDay string

const (
	MeetingDayMonday    MeetingDay = "monday"
	MeetingDayTuesday   MeetingDay = "tuesday"
	MeetingDayWednesday MeetingDay = "wednesday"
	MeetingDayThursday  MeetingDay = "thursday"
	MeetingDayUnknown   MeetingDay = "unknown"
)

// Valid returns true when the day is a supported value.
func (d MeetingDay) Valid() bool {
	switch d {
	case MeetingDayMonday, MeetingDayTuesday, MeetingDayWednesday, MeetingDayThursday, MeetingDayUnknown:
		return true
	default:
		return false
	}
}

// MeetingDayFor maps a calendar date to its meeting day. Dates outside Monday to Thursday
// report false because no class meets on them.
func MeetingDayFor(t time.Time) (MeetingDay, bool) {
	switch t.Weekday() {
	case time.Monday:
		return MeetingDayMonday, true
	case time.Tuesday:
		return MeetingDayTuesday, true
	case time.Wednesday:
		return MeetingDayWednesday, true
	case time.Thursday:
		return MeetingDayThursday, true
	default:
		return "", false
	}
}

// ClassOffering is one scheduled recurring class session mirrored from the external feed.
type ClassOffering struct {
	ID           string     `db:"id" json:"id"`
	ExternalID   string     `db:"external_id" json:"external_id"`
	Name         string     `db:"name" json:"name"`
	Instructor   *string    `db:"instructor" json:"instructor,omitempty"`
	MeetingDay   MeetingDay `db:"meeting_day" json:"meeting_day"`
	StartTime    *string    `db:"start_time" json:"start_time,omitempty"`
	EndTime      *string    `db:"end_time" json:"end_time,omitempty"`
	Semester     string     `db:"semester" json:"semester"`
	SchoolYear   string     `db:"school_year" json:"school_year"`
	MinGrade     *int       `db:"min_grade" json:"min_grade,omitempty"`
	MaxGrade     *int       `db:"max_grade" json:"max_grade,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ClassOfferingDetail adds the computed number of active enrollments.
type ClassOfferingDetail struct {
	ClassOffering
	EnrollmentCount int `db:"enrollment_count" json:"enrollment_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Active    *bool
	Day       MeetingDay
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassSchedule is the parsed form of a feed meeting-times string.
type ClassSchedule struct {
	Day       MeetingDay
	StartTime *string
	EndTime   *string
}
