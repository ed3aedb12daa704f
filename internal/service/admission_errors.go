package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/repository"
)

var (
	// ErrEmptyName indicates an admission without a student name.
	ErrEmptyName = errors.New("student name is required")
	// ErrConcurrentModification indicates the stored roster changed since it was last read.
	ErrConcurrentModification = errors.New("roster was modified concurrently")
	// ErrLedgerNotLoaded indicates a mutation before the roster was loaded.
	ErrLedgerNotLoaded = errors.New("ledger not loaded")
)

// ValidationError reports an invalid field on an incoming request.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateNameError reports an admission whose name is already on the roster.
type DuplicateNameError struct {
	Name     string
	Existing models.StudentRecord
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a student with name %s is already admitted (rank %d, %s stream)", e.Name, e.Existing.Rank, e.Existing.Stream)
}

// StudentNotFoundError reports a TC request that matched no roster entry.
type StudentNotFoundError struct {
	Name   string
	Stream models.Stream
	Rank   int
}

func (e *StudentNotFoundError) Error() string {
	return fmt.Sprintf("student %s not found in %s stream with rank %d", e.Name, e.Stream, e.Rank)
}

// DateParseError reports a stored admission date that is not YYYY-MM-DD.
type DateParseError struct {
	Name  string
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid admission date %q for %s", e.Value, e.Name)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// PartialTcFailure reports a TC whose roster removal was persisted but whose
// archive append failed. Record is queued for reconciliation.
type PartialTcFailure struct {
	Record models.TcRecord
	Err    error
}

func (e *PartialTcFailure) Error() string {
	return fmt.Sprintf("tc issued for %s but archive append failed: %v", e.Record.Name, e.Err)
}

func (e *PartialTcFailure) Unwrap() error { return e.Err }

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return true
	}
	var validatorErrs validator.ValidationErrors
	return errors.As(err, &validatorErrs)
}

// IsStorageError reports whether err originates from the ledger store.
func IsStorageError(err error) bool {
	var readErr *repository.StorageReadError
	var writeErr *repository.StorageWriteError
	return errors.As(err, &readErr) || errors.As(err, &writeErr)
}

func newValidationError(err error) error {
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) || len(validatorErrs) == 0 {
		return &ValidationError{Reason: err.Error(), Err: err}
	}

	first := validatorErrs[0]
	field := toSnakeCase(first.Field())
	reason := first.Tag()
	switch first.Tag() {
	case "required":
		reason = "is required"
	case "oneof":
		reason = fmt.Sprintf("must be one of %s", first.Param())
	case "min":
		reason = fmt.Sprintf("must be at least %s", first.Param())
	case "max":
		reason = fmt.Sprintf("must be at most %s", first.Param())
	}
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// operationOutcome classifies err for metrics labels.
func operationOutcome(err error) string {
	var duplicate *DuplicateNameError
	var notFound *StudentNotFoundError
	var partial *PartialTcFailure
	var dateErr *DateParseError
	switch {
	case err == nil:
		return "success"
	case IsValidationError(err):
		return "validation"
	case errors.As(err, &duplicate):
		return "duplicate"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &partial):
		return "partial"
	case errors.As(err, &dateErr):
		return "date_parse"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case IsStorageError(err):
		return "storage"
	default:
		return "error"
	}
}
