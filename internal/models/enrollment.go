package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive  EnrollmentStatus = "active"
	EnrollmentStatusRemoved EnrollmentStatus = "removed"
	EnrollmentStatusExpired EnrollmentStatus = "expired"
)

// Provenance tells feed-owned rows apart from rows authored by staff.
type Provenance string

const (
	ProvenanceExternal Provenance = "external"
	ProvenanceManual   Provenance = "manual"
)

// EnrollmentCategory classifies how a student joined a class.
type EnrollmentCategory string

const (
	CategoryEnrolled     EnrollmentCategory = "enrolled"
	CategoryRegistered   EnrollmentCategory = "registered"
	CategoryTrial        EnrollmentCategory = "trial"
	CategoryFinancialAid EnrollmentCategory = "financial_aid"
	CategoryDropIn       EnrollmentCategory = "drop_in"
)

// Removal reasons written on soft-deleted rows.
const (
	RemovalReasonSourceMissing = "source record no longer present"
	RemovalReasonStaff         = "removed by staff"
)

// Enrollment captures a student's membership in one class offering.
type Enrollment struct {
	ID                string              `db:"id" json:"id"`
	ClassID           string              `db:"class_id" json:"class_id"`
	StudentExternalID int64               `db:"student_external_id" json:"student_external_id"`
	Status            EnrollmentStatus    `db:"status" json:"status"`
	Provenance        Provenance          `db:"provenance" json:"provenance"`
	Category          *EnrollmentCategory `db:"category" json:"category,omitempty"`
	FeePaid           bool                `db:"fee_paid" json:"fee_paid"`
	StartDate         *time.Time          `db:"start_date" json:"start_date,omitempty"`
	EndDate           *time.Time          `db:"end_date" json:"end_date,omitempty"`
	Notes             string              `db:"notes" json:"notes"`
	RemovalReason     *string             `db:"removal_reason" json:"removal_reason,omitempty"`
	CreatedBy         string              `db:"created_by" json:"created_by"`
	UpdatedBy         string              `db:"updated_by" json:"updated_by"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// Key returns the natural key used by the sync upsert.
func (e Enrollment) Key() EnrollmentKey {
	return EnrollmentKey{ClassID: e.ClassID, StudentExternalID: e.StudentExternalID}
}

// EnrollmentKey is the (class, student) natural key.
type EnrollmentKey struct {
	ClassID           string
	StudentExternalID int64
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ClassID           string
	StudentExternalID *int64
	Status            EnrollmentStatus
	Provenance        Provenance
	Page              int
	PageSize          int
}

// ExternalEnrollment holds the feed-owned fields merged by the sync upsert.
type ExternalEnrollment struct {
	ClassID           string
	StudentExternalID int64
	Category          *EnrollmentCategory
	FeePaid           bool
	Notes             string
	Actor             string
}

// UpsertOutcome reports what the sync upsert did to a row.
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// CreateEnrollmentRequest is the payload for a manual enrollment.
type CreateEnrollmentRequest struct {
	ClassID           string  `json:"class_id" validate:"required,uuid"`
	StudentExternalID int64   `json:"student_external_id" validate:"required,gt=0"`
	Category          *string `json:"category" validate:"omitempty,oneof=enrolled registered trial financial_aid drop_in"`
	FeePaid           bool    `json:"fee_paid"`
	StartDate         *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate           *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Notes             string  `json:"notes" validate:"max=2000"`
}

// UpdateEnrollmentRequest is a partial update; nil fields are left unchanged.
type UpdateEnrollmentRequest struct {
	Category  *string `json:"category" validate:"omitempty,oneof=enrolled registered trial financial_aid drop_in"`
	FeePaid   *bool   `json:"fee_paid"`
	StartDate *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

// RemoveEnrollmentRequest carries an optional removal reason.
type RemoveEnrollmentRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}
