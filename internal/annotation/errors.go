package annotation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchemaJSON is returned when raw schema text is not valid JSON.
	ErrInvalidSchemaJSON = errors.New("invalid annotation schema JSON")

	// ErrSchemaBuild is returned when field definitions are structurally wrong,
	// e.g. a non-object schema source or an unsupported field type.
	ErrSchemaBuild = errors.New("annotation schema could not be built")
)

// SchemaError adds the failing operation and the offending input to an
// annotation error.
type SchemaError struct {
	Op      string
	Err     error
	Details string
}

func (e *SchemaError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("annotation: %s: %v: %s", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("annotation: %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return errors.Is(e.Err, target) }

func schemaError(op string, err error, format string, args ...any) error {
	return &SchemaError{Op: op, Err: err, Details: fmt.Sprintf(format, args...)}
}
