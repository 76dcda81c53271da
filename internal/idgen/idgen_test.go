package idgen

import (
	"strings"
	"testing"
)

func TestClientID_Shape(t *testing.T) {
	id, err := ClientID()
	if err != nil {
		t.Fatalf("ClientID() error: %v", err)
	}
	if !strings.HasPrefix(id, ClientPrefix) {
		t.Errorf("ClientID() = %q, want prefix %q", id, ClientPrefix)
	}
	if len(id) != len(ClientPrefix)+Length {
		t.Errorf("ClientID() length = %d, want %d (id=%q)", len(id), len(ClientPrefix)+Length, id)
	}
	for _, r := range strings.TrimPrefix(id, ClientPrefix) {
		if !strings.ContainsRune(alphabet, r) {
			t.Errorf("ClientID() = %q contains %q outside the alphabet", id, r)
		}
	}
}

func TestClientID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := ClientID()
		if err != nil {
			t.Fatalf("ClientID() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d iterations", id, i)
		}
		seen[id] = struct{}{}
	}
}
