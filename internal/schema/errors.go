package schema

import (
	"errors"
	"fmt"
)

var ErrSchemaValidation = errors.New("schema validation failed")

// ValidationError names the field of a contract that was missing or
// malformed. Field is empty when the output as a whole was unusable.
type ValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("%s: field %s: %s", e.Schema, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}
