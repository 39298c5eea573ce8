package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
	appErrors "github.com/noah-isme/afterschool-roster-api/pkg/errors"
)

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

// auditRecorder is what mutating services need from the audit trail.
type auditRecorder interface {
	Record(ctx context.Context, table, recordID string, action models.AuditAction, actor string, oldValues, newValues interface{})
}

// AuditService appends one entry per logical mutation.
type AuditService struct {
	repo   auditStore
	logger *zap.Logger
}

// NewAuditService constructs AuditService.
func NewAuditService(repo auditStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record writes an audit entry. Failures are logged and swallowed so the mutation being
// described is never rolled back or reported as failed.
func (s *AuditService) Record(ctx context.Context, table, recordID string, action models.AuditAction, actor string, oldValues, newValues interface{}) {
	if s == nil || s.repo == nil {
		return
	}
	entry := &models.AuditEntry{
		TableName: table,
		RecordID:  recordID,
		Action:    action,
		Actor:     actor,
		OldValues: s.snapshot(oldValues),
		NewValues: s.snapshot(newValues),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			zap.String("table", table),
			zap.String("record_id", recordID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// List returns audit entries with pagination metadata.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list audit entries")
	}
	return entries, paginate(filter.Page, filter.PageSize, 20, total), nil
}

func (s *AuditService) snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode audit snapshot", zap.Error(err))
		return nil
	}
	return raw
}

func paginate(page, size, defaultSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
