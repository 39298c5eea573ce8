package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

// AuditRepository appends to and reads the audit log. There is no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_log (id, table_name, record_id, action, actor, old_values, new_values, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.TableName, entry.RecordID, entry.Action, entry.Actor,
		jsonOrNull(entry.OldValues), jsonOrNull(entry.NewValues), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// List returns audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	base := "FROM audit_log WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TableName != "" {
		conditions = append(conditions, fmt.Sprintf("table_name = $%d", len(args)+1))
		args = append(args, filter.TableName)
	}
	if filter.RecordID != "" {
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", len(args)+1))
		args = append(args, filter.RecordID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT id, table_name, record_id, action, actor, old_values, new_values, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, (page-1)*size)
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	return entries, total, nil
}

func jsonOrNull(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
