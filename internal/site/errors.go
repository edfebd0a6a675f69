package site

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidID means the identifier is not a UUID; storage is not queried.
	ErrInvalidID = errors.New("site: invalid id")
	// ErrNotFound means no live (non-deleted) site has the identifier.
	ErrNotFound = errors.New("site: not found")
	// ErrNameTaken means another site already uses the name.
	ErrNameTaken = errors.New("site: name already in use")
	// ErrInvalidFilter means the search filter uses an unsupported shape.
	ErrInvalidFilter = errors.New("site: invalid filter")
	// ErrCustomIDExhausted means every custom-ID allocation attempt collided.
	ErrCustomIDExhausted = errors.New("site: custom id allocation retries exhausted")
)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError wraps every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "site: validation failed: " + strings.Join(parts, "; ")
}

// fromValidator converts go-playground errors into a *ValidationError.  Any
// other error is returned unchanged.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the struct name from "Input.investors[0].investorId".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i != -1 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid id"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
