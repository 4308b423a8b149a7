// Package validate wraps struct validation for outbound payloads (message
// drafts, contact-match requests) so callers get field-level errors before
// anything is sent to the backend.
package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs via their `validate` tags.
type Validator struct {
	cli *validator.Validate
}

// FieldError is a validation failure on a single struct field.
type FieldError struct {
	Field   string
	Message string
}

// Error aggregates field errors into a single error value.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// New initializes and returns a new Validator.
func New() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Struct validates s and returns a *Error listing every failing field, or
// nil if the struct is valid.
func (v *Validator) Struct(s any) error {
	err := v.cli.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.StructField(),
			Message: fe.Tag(),
		})
	}
	return out
}
