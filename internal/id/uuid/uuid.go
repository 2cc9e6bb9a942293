// Package uuid generates run and request identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator issues run IDs. Version 7 IDs carry their creation time, so run
// IDs in logs sort by start.
type Generator struct {
	newV7 func() (uuid.UUID, error)
}

// New returns a Generator backed by uuid.NewV7.
func New() *Generator {
	return &Generator{newV7: uuid.NewV7}
}

// NewID returns a fresh run ID.
func (g *Generator) NewID() (string, error) {
	id, err := g.newV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// Request returns a random ID for an HTTP request that arrived without one.
func Request() string {
	return uuid.NewString()
}
