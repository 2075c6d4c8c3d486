package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks a document that does not have the expected shape.
var ErrValidation = errors.New("document failed validation")

// ValidationError describes why a document was rejected.
type ValidationError struct {
	Kind   string
	Path   string
	Reason error
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid %s: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s at %s: %v", e.Kind, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Reason}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation. It is shared with packages that parse
// third-party payloads.
func Validate(v any) error {
	return validate.Struct(v)
}

// decodeStrict unmarshals raw into v and validates it. Integers must be
// integers: 40.5 into an int64 field is rejected by the decoder.
func decodeStrict(kind, path string, raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &ValidationError{Kind: kind, Path: path, Reason: errors.New("empty document")}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ValidationError{Kind: kind, Path: path, Reason: err}
	}
	if err := Validate(v); err != nil {
		return &ValidationError{Kind: kind, Path: path, Reason: err}
	}
	return nil
}
