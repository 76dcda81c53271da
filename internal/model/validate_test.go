package model

import (
	"errors"
	"strings"
	"testing"
)

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidateGroupName(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Empty", "", true},
		{"WhitespaceOnly", "  \t\n ", true},
		{"TooLong", strings.Repeat("a", MaxNameLength+1), true},
		{"ExactlyMax", strings.Repeat("a", MaxNameLength), false},
		{"MultibyteAtMax", strings.Repeat("猫", MaxNameLength), false},
		{"Normal", "animals", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGroupName(tc.input)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("ValidateGroupName(%q) = %v, want nil", tc.input, err)
				}
				return
			}
			if !hasFieldError(fieldErrors(t, err), "name") {
				t.Errorf("expected error on field 'name' for %q", tc.input)
			}
		})
	}
}

func TestValidateKeywordText(t *testing.T) {
	if !hasFieldError(fieldErrors(t, ValidateKeywordText(" ")), "text") {
		t.Error("expected error on field 'text' for blank keyword")
	}
	if err := ValidateKeywordText("puppy"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateParent(t *testing.T) {
	self := int64(7)
	other := int64(3)
	root := RootParentID

	if err := ValidateParent(7, nil); err != nil {
		t.Errorf("nil parent: %v", err)
	}
	if err := ValidateParent(7, &root); err != nil {
		t.Errorf("root parent: %v", err)
	}
	if err := ValidateParent(7, &other); err != nil {
		t.Errorf("other parent: %v", err)
	}
	if err := ValidateParent(7, &self); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("self parent = %v, want ErrInvalidReference", err)
	}
}

func TestValidateClientID(t *testing.T) {
	if !hasFieldError(fieldErrors(t, ValidateClientID("")), "client_id") {
		t.Error("expected error on field 'client_id'")
	}
	if err := ValidateClientID("editor-1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	ve := &ValidationError{Errors: []FieldError{
		{Field: "name", Message: "is required"},
		{Field: "text", Message: "is required"},
	}}
	want := "validation failed: name: is required; text: is required"
	if got := ve.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(ValidateGroupName(" "), ErrInvalidInput) {
		t.Error("validation errors should match ErrInvalidInput")
	}
}

func TestBatchAction_IsValid(t *testing.T) {
	for _, a := range []BatchAction{BatchEnable, BatchDisable, BatchDelete, BatchMove} {
		if !a.IsValid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if BatchAction("rename").IsValid() {
		t.Error("rename should not be a batch action")
	}
}
