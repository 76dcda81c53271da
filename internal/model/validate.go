package model

import (
	"strings"
)

// MaxNameLength bounds group names and keyword texts, in runes.
const MaxNameLength = 200

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateGroupName checks a group name. Names are trimmed by callers
// before storage; only the trimmed form is checked here.
func ValidateGroupName(name string) error {
	var ve ValidationError
	checkText(&ve, "name", name)
	return ve.orNil()
}

// ValidateKeywordText checks a keyword's text.
func ValidateKeywordText(text string) error {
	var ve ValidationError
	checkText(&ve, "text", text)
	return ve.orNil()
}

// ValidateParent rejects attaching a group under itself.
// A nil parent or RootParentID means root attachment and is always valid.
func ValidateParent(id int64, parent *int64) error {
	if parent == nil || *parent == RootParentID {
		return nil
	}
	if *parent == id {
		return ErrInvalidReference
	}
	return nil
}

// ValidateClientID checks the identifier a mutating caller supplies.
func ValidateClientID(clientID string) error {
	var ve ValidationError
	if strings.TrimSpace(clientID) == "" {
		ve.add("client_id", "is required")
	} else if len([]rune(clientID)) > MaxNameLength {
		ve.add("client_id", "must be 200 characters or fewer")
	}
	return ve.orNil()
}

func checkText(ve *ValidationError, field, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		ve.add(field, "is required")
		return
	}
	if len([]rune(s)) > MaxNameLength {
		ve.add(field, "must be 200 characters or fewer")
	}
}
