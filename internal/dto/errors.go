package dto

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FieldErrors shapes a validation failure for an error detail: per-field
// messages for ozzo errors, the plain message for anything else such as a
// JSON syntax error.
func FieldErrors(err error) any {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		return errs
	}
	return err.Error()
}
