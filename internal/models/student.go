package models

import "strings"

// UnknownStudentName is shown for enrollments whose student cannot be resolved.
const UnknownStudentName = "Unknown Student"

// StudentIdentity is a read-only person record from the roster of record.
type StudentIdentity struct {
	ExternalID int64  `db:"external_id" json:"external_id"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	Grade      int    `db:"grade" json:"grade"`
}

// PlaceholderStudent stands in for an unresolved student id.
func PlaceholderStudent(id int64) StudentIdentity {
	return StudentIdentity{ExternalID: id, LastName: UnknownStudentName}
}

// DisplayName renders "Last, First", or the last name alone when no first name is known.
func (s StudentIdentity) DisplayName() string {
	first := strings.TrimSpace(s.FirstName)
	last := strings.TrimSpace(s.LastName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return last + ", " + first
	}
}
