// Package domain is the closed list of event shapes this service persists.
//
// Every event type stored by the service must be reachable from Shapes.
// Build the registry once at startup:
//
//	registry := chronicle.NewTypeRegistry()
//	domain.Register(registry)
package domain

import (
	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/domain/casenote"
	"github.com/havenhq/chronicle/domain/consent"
)

// Shapes returns the shape of every domain event.
func Shapes() []chronicle.EventShape {
	var shapes []chronicle.EventShape
	shapes = append(shapes, consent.Events()...)
	shapes = append(shapes, casenote.Events()...)
	return shapes
}

// Register adds every domain event shape to r.
func Register(r *chronicle.TypeRegistry) {
	r.RegisterEvents(Shapes()...)
}

// NewRegistry returns a registry holding every domain event shape.
func NewRegistry() *chronicle.TypeRegistry {
	r := chronicle.NewTypeRegistry()
	Register(r)
	return r
}
