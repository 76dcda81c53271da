package model

import "errors"

// Sentinel errors shared by the store, the rule tree and the transports.
var (
	// ErrNotFound is returned when a referenced group or keyword does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCycle is returned when a structural edit would close a cycle.
	ErrCycle = errors.New("cycle rejected")

	// ErrInvalidReference is returned for structurally meaningless references,
	// such as making a group its own parent.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidInput is matched by every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")
)
