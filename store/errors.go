package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectionStringInvalid is returned when a client cannot be opened from the connection string.
	ErrConnectionStringInvalid = errors.New("docstore: connection string is invalid")

	// ErrHostUnreachable is returned when the backend endpoint cannot be reached.
	ErrHostUnreachable = errors.New("docstore: host is unreachable")

	// ErrDatabaseNotFound is returned when the configured database does not exist.
	ErrDatabaseNotFound = errors.New("docstore: database not found")

	// ErrContainerNotFound is returned when the configured container does not exist.
	ErrContainerNotFound = errors.New("docstore: container not found")

	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("docstore: document validation failed")

	// ErrUnsupportedPartitionKeyType is returned by Build when the partition key
	// type is not int32, string or uuid.UUID.
	ErrUnsupportedPartitionKeyType = errors.New("docstore: unsupported partition key type")

	// ErrMissingDocument is returned when a nil document is passed where one is required.
	ErrMissingDocument = errors.New("docstore: document is missing")

	// ErrNotImplemented is returned by operations a backend cannot emulate.
	ErrNotImplemented = errors.New("docstore: not implemented")

	// ErrInvalidKey is returned when a key value cannot be coerced to the key type.
	ErrInvalidKey = errors.New("docstore: invalid key value")

	// ErrKeyPathNotFound is returned in strict key mode when a key path does not resolve.
	ErrKeyPathNotFound = errors.New("docstore: key path not found in document")

	// ErrInvalidDescription is returned by Build when the store description is incomplete.
	ErrInvalidDescription = errors.New("docstore: invalid store description")

	// ErrPartitionNotSelected is returned by a partition text query whose
	// statement does not select the _pk attribute.
	ErrPartitionNotSelected = errors.New("docstore: statement rows do not carry the partition attribute")
)

// FieldError describes one validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors is an ordered collection of validation failures.
// An empty collection means the document is valid.
type ValidationErrors []FieldError

// Add returns errs with a new failure appended.
func (errs ValidationErrors) Add(field, message string) ValidationErrors {
	return append(errs, FieldError{Field: field, Message: message})
}

// Empty reports whether there are no failures.
func (errs ValidationErrors) Empty() bool {
	return len(errs) == 0
}

func (errs ValidationErrors) String() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// ValidationError is returned by Upsert and Delete when the store's validator
// reports failures. The operation does not reach the backend.
type ValidationError struct {
	Errors ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("docstore: validation error(s) occurred: %s", e.Errors)
}

// Is makes errors.Is(err, ErrValidationFailed) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
