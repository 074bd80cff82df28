// Package history persists service lifecycle events so past starts and
// stops survive control-plane restarts.
package history

import (
	"context"
	"time"
)

// Event types recorded by the supervisor.
const (
	EventStart = "start"
	EventStop  = "stop"
)

// Event is one lifecycle occurrence for a managed service.
type Event struct {
	Service    string
	Type       string
	PID        int
	OccurredAt time.Time
	Detail     string
}

// Store is the minimal persistence interface for lifecycle events.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, service string, limit int) ([]Event, error)
	Close() error
}
