package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// FieldError wraps a configuration validation error with its location.
type FieldError struct {
	Section string // YAML section (llm, search, chart, queue, delivery, limits)
	Field   string // field name within the section
	Err     error  // underlying sentinel, possibly annotated
}

// Error returns the formatted error message.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Section, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

func missingField(section, field string) *FieldError {
	return &FieldError{Section: section, Field: field, Err: ErrMissingRequiredField}
}

func invalidField(section, field, detail string) *FieldError {
	return &FieldError{Section: section, Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidValue, detail)}
}
