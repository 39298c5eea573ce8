package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

// StudentRepository reads the roster of record. The core never writes to it.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByExternalIDs returns the identities that exist for the given ids. Unknown ids are
// simply absent from the result.
func (r *StudentRepository) FindByExternalIDs(ctx context.Context, ids []int64) ([]models.StudentIdentity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT external_id, first_name, last_name, grade FROM students WHERE external_id = ANY($1)`
	var students []models.StudentIdentity
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find students: %w", err)
	}
	return students, nil
}
