package models

import (
	"encoding/json"
	"time"
)

// AuditAction enumerates the logged mutation kinds.
type AuditAction string

const (
	AuditActionInsert AuditAction = "insert"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionSync   AuditAction = "sync"
)

// Audited table names.
const (
	AuditTableEnrollments    = "enrollments"
	AuditTableManualAbsences = "manual_absences"
	AuditTableSync           = "sync"
)

// SystemActor identifies writes made by scheduled jobs.
const SystemActor = "system:scheduler"

// AuditEntry is an immutable change record.
type AuditEntry struct {
	ID        string          `db:"id" json:"id"`
	TableName string          `db:"table_name" json:"table_name"`
	RecordID  string          `db:"record_id" json:"record_id"`
	Action    AuditAction     `db:"action" json:"action"`
	Actor     string          `db:"actor" json:"actor"`
	OldValues json.RawMessage `db:"old_values" json:"old_values,omitempty"`
	NewValues json.RawMessage `db:"new_values" json:"new_values,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	TableName string
	RecordID  string
	Action    AuditAction
	Page      int
	PageSize  int
}
