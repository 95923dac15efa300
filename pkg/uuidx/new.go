// Package uuidx wraps UUID generation so every id in the engine is a
// time-ordered v7 UUID.
package uuidx

import "github.com/google/uuid"

// New returns a new v7 UUID. It panics when the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a new v7 UUID rendered as a string.
func NewString() string {
	return New().String()
}
