package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("load class: %w", Clone(ErrNotFound, "class not found"))
	appErr := FromError(wrapped)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "class not found", appErr.Message)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, errors.Is(appErr, sql.ErrConnDone))
}

func TestFromErrorMapsDeadlines(t *testing.T) {
	appErr := FromError(fmt.Errorf("query warehouse: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrTimeout.Code, appErr.Code)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("remove: %w", Clone(ErrPreconditionFailed, "enrollment already inactive"))
	assert.True(t, errors.Is(err, ErrPreconditionFailed))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrConflict, "duplicate manual absence")
	assert.Equal(t, "conflict", ErrConflict.Message)
	assert.Equal(t, "duplicate manual absence", clone.Message)
}

type validationProbe struct {
	ClassID           string  `validate:"required,uuid"`
	StudentExternalID int64   `validate:"required,gt=0"`
	Category          *string `validate:"omitempty,oneof=enrolled trial"`
}

func TestValidationNamesEachField(t *testing.T) {
	bad := "weekly"
	err := validator.New().Struct(validationProbe{ClassID: "nope", Category: &bad})

	appErr := Validation(err, "invalid payload")
	assert.Equal(t, ErrValidation.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Message, "class_id must be a valid UUID")
	assert.Contains(t, appErr.Message, "student_external_id is required")
	assert.Contains(t, appErr.Message, "category must be one of: enrolled, trial")
}

func TestValidationFallsBackForOtherErrors(t *testing.T) {
	appErr := Validation(errors.New("boom"), "invalid payload")
	assert.Equal(t, "invalid payload", appErr.Message)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "class_id", snakeCase("ClassID"))
	assert.Equal(t, "student_external_id", snakeCase("StudentExternalID"))
	assert.Equal(t, "fee_paid", snakeCase("FeePaid"))
	assert.Equal(t, "notes", snakeCase("Notes"))
}
