// Package idgen generates editor client ids backed by nanoid.
//
// A client id names one editor (a person's CLI install, a service account)
// in the version log and the presence roster. It is generated once and then
// reused, so ids only need to be unique, not secret.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// ClientPrefix marks ids minted by this package.
const ClientPrefix = "ed-"

// alphabet is lowercase so ids survive case-insensitive tooling.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 12

// ClientID returns a fresh editor id such as "ed-4k2x9q0mzt7a".
func ClientID() (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return ClientPrefix + id, nil
}
