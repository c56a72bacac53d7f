// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrTargetNotFound = errors.New("target user not found")
	ErrNotInRoom      = errors.New("not in a room")
)

// ConnID identifies one live transport connection. It is assigned by the
// transport adapter, never chosen by the client.
type ConnID string

// Participant is one connection's membership record within a Room.
type Participant struct {
	ID       ConnID    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// DefaultName labels participants that join without a name.
// position is 1-based join order within the room.
func DefaultName(position int) string {
	return fmt.Sprintf("User%d", position)
}
