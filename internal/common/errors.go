package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorCode returns the code of the first AppError in err's chain, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Exit codes shared by the command line tools.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitNoResult = 3
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case ErrorCode(err) == "CONFIG_ERROR", errors.Is(err, ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFailure
	}
}
