package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peercall/signaling/internal/core"
	"github.com/peercall/signaling/internal/domain"
)

// Room ids are short, human-typeable and generated uppercase; lookups fold
// case via domain.NormalizeRoomID. Six characters over 36 symbols leave
// collisions vanishingly rare, but CreateRoom still retries on one.
const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLength   = 6
)

// RoomStatus is the existence-lookup view used by the HTTP boundary.
type RoomStatus struct {
	Exists    bool           `json:"exists"`
	UserCount int            `json:"userCount"`
	Users     []core.UserDTO `json:"users"`
}

// memberSummary and RoomSummary feed the debug endpoint only.
type memberSummary struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type RoomSummary struct {
	ID                    domain.RoomID   `json:"id"`
	UserCount             int             `json:"userCount"`
	Users                 []memberSummary `json:"users"`
	CreatedAt             time.Time       `json:"createdAt"`
	ConnectionAttempts    int             `json:"connectionAttempts"`
	SuccessfulConnections int             `json:"successfulConnections"`
}

// CreateRoom generates a fresh id and inserts an empty room.
func (r *Registry) CreateRoom() domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := domain.RoomID(r.newRoomID())
		if _, taken := r.rooms[id]; taken {
			continue
		}
		r.rooms[id] = &domain.Room{ID: id, CreatedAt: r.now()}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
		return id
	}
}

// RoomStatusOf reports whether the room is live and who is in it.
func (r *Registry) RoomStatusOf(id domain.RoomID) RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return RoomStatus{}
	}
	st := RoomStatus{Exists: true, UserCount: len(room.Participants), Users: []core.UserDTO{}}
	for _, p := range room.Participants {
		st.Users = append(st.Users, core.UserDTO{ID: p.ID, Name: p.Name})
	}
	return st
}

// DeleteRoom removes the room; a no-op if already absent.
func (r *Registry) DeleteRoom(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
}

// Summaries snapshots every live room for the debug endpoint.
func (r *Registry) Summaries() []RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		s := RoomSummary{
			ID:                    room.ID,
			UserCount:             len(room.Participants),
			Users:                 []memberSummary{},
			CreatedAt:             room.CreatedAt,
			ConnectionAttempts:    room.ConnectionAttempts,
			SuccessfulConnections: room.SuccessfulConnections,
		}
		for _, p := range room.Participants {
			s.Users = append(s.Users, memberSummary{Name: p.Name, JoinedAt: p.JoinedAt})
		}
		out = append(out, s)
	}
	return out
}

// Stats reports room and participant totals for the health endpoint.
func (r *Registry) Stats() (roomCount, totalParticipants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		totalParticipants += len(room.Participants)
	}
	return len(r.rooms), totalParticipants
}

// SweepEmpty deletes rooms with no participants created before cutoff.
// Occupancy is checked under the same lock joins take, so a sweep can
// never race an in-flight join into deleting an occupied room.
func (r *Registry) SweepEmpty(cutoff time.Time) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []domain.RoomID
	for id, room := range r.rooms {
		if len(room.Participants) == 0 && room.CreatedAt.Before(cutoff) {
			delete(r.rooms, id)
			removed = append(removed, id)
		}
	}
	return removed
}
