package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Validation turns a validator error into an ErrValidation whose message names each failing
// field, e.g. "class_id must be a valid UUID; category must be one of: enrolled, trial".
// Errors that are not field errors keep the fallback message.
func Validation(err error, fallback string) *Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Wrap(err, ErrValidation.Code, ErrValidation.Status, fallback)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return Wrap(err, ErrValidation.Code, ErrValidation.Status, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := snakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "uuid":
		return name + " must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.Join(strings.Fields(fe.Param()), ", "))
	case "datetime":
		return name + " must be formatted as YYYY-MM-DD"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "email":
		return name + " must be a valid email address"
	default:
		return name + " is invalid"
	}
}

// snakeCase maps Go field names to their JSON keys: ClassID -> class_id.
func snakeCase(field string) string {
	runes := []rune(field)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
