// Package core defines the transport-facing abstractions of the signaling
// service: the outbound event types and the Sender a room fans out to.
package core

import "github.com/peercall/signaling/internal/domain"

// Sender is the outbound half of a signaling connection.
// Owned by the adapter; the adapter must Close() it.
type Sender interface {
	// TrySend enqueues ev without blocking. A full queue returns an error
	// and the event is dropped for this connection only.
	TrySend(ev Event) error
	Close()
}

// UserDTO is the read-only participant view sent to clients
// (no transport fields, no timestamps).
type UserDTO struct {
	ID   domain.ConnID `json:"id"`
	Name string        `json:"name"`
}
