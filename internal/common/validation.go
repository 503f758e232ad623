package common

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns a combined error, or nil
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return errors.New(v.ErrorMessage())
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

func Positive(fieldName string, value interface{}) *ValidationError {
	if n, ok := asInt(value); ok && n <= 0 {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be greater than zero"}
	}
	return nil
}

func NonNegative(fieldName string, value interface{}) *ValidationError {
	if n, ok := asInt(value); ok && n < 0 {
		return &ValidationError{Field: fieldName, Value: value, Message: "must not be negative"}
	}
	return nil
}

// OneOf accepts a string equal to one of allowed.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		s, _ := value.(string)
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: "must be one of " + strings.Join(allowed, ", "),
		}
	}
}

// MaxLength limits the rune length of a string.
func MaxLength(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := value.(string)
		if !ok {
			if strPtr, ok := value.(*string); ok && strPtr != nil {
				str = *strPtr
			} else {
				return nil
			}
		}
		if utf8.RuneCountInString(str) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at most %d characters", max),
			}
		}
		return nil
	}
}

func UUID(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}

	if _, err := uuid.Parse(str); err != nil {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: "must be a valid UUID",
		}
	}
	return nil
}

// Validate returns an AppError wrapping ErrValidation when v has errors.
func Validate(v *Validator) error {
	if v.HasErrors() {
		return NewAppError("VALIDATION_ERROR", v.ErrorMessage(), ErrValidation)
	}
	return nil
}

func asInt(value interface{}) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
