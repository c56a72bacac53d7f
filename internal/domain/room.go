package domain

import (
	"strings"
	"time"
)

type RoomID string

// NormalizeRoomID folds a client-supplied room token to the canonical
// uppercase form. Room ids are human-typeable, so lookups are
// case-insensitive.
func NormalizeRoomID(raw string) RoomID {
	return RoomID(strings.ToUpper(strings.TrimSpace(raw)))
}

// Room is an ephemeral group of participants negotiating peer connections.
// Participants keeps join order; ordering only matters for default naming.
type Room struct {
	ID           RoomID
	Participants []*Participant
	CreatedAt    time.Time

	// Connection stats, reported by clients via connection-status.
	ConnectionAttempts    int
	SuccessfulConnections int
}

func (r *Room) Find(id ConnID) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Remove deletes the participant, preserving join order of the rest.
func (r *Room) Remove(id ConnID) bool {
	for i, p := range r.Participants {
		if p.ID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}
