// Package uuid provides a UUID-backed ID generator.
package uuid

import (
	"fmt"

	guuid "github.com/google/uuid"
)

// Generator implements tracker.IDGenerator using random UUIDs.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a new random UUID string.
func (Generator) NewID() (string, error) {
	id, err := guuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
