package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// invalid_text_representation: Postgres could not cast a path id to uuid.
const pqInvalidTextRepresentation = "22P02"

// missingRow reports whether a single-row lookup found nothing. An id that is not a valid uuid
// cannot match any row, so it reads as not found rather than a store failure.
func missingRow(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}
