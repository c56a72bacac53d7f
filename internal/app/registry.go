package app

import (
	"errors"
	"sync"
	"time"

	gonanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog/log"

	"github.com/peercall/signaling/internal/core"
	"github.com/peercall/signaling/internal/domain"
)

var errConnNotBound = errors.New("connection not registered")

type connEntry struct {
	Room   domain.RoomID // empty until the connection joins a room
	Name   string
	Sender core.Sender
}

// Registry is the process-wide source of truth: live rooms plus the index
// from connection id to its current room and transport sender. One mutex
// covers both maps so a membership change and its index update are atomic
// relative to concurrent lookups.
//
// All compound operations capture their recipient lists inside the lock;
// event delivery happens outside it.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*domain.Room
	conns map[domain.ConnID]*connEntry

	newRoomID func() string
	now       func() time.Time
}

func NewRegistry() *Registry {
	gen, err := gonanoid.CustomASCII(roomIDAlphabet, roomIDLength)
	if err != nil {
		// Alphabet and length are compile-time constants.
		panic(err)
	}
	return &Registry{
		rooms:     make(map[domain.RoomID]*domain.Room),
		conns:     make(map[domain.ConnID]*connEntry),
		newRoomID: gen,
		now:       time.Now,
	}
}

// Bind registers a fresh connection's transport sender. The connection is
// not in any room until it joins one.
func (r *Registry) Bind(id domain.ConnID, s core.Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Sender: s}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

// Unbind drops the connection from the index entirely. The caller must
// tear down room membership first.
func (r *Registry) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}

func (r *Registry) SenderOf(id domain.ConnID) (core.Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.Sender, true
}

// RoomOf reports the room the connection currently belongs to, if any.
func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

// joinResult is the consistent snapshot captured while joining: the
// joiner's resolved identity, the pre-existing roster, and the senders to
// announce the join to.
type joinResult struct {
	Reconnect bool
	Self      core.UserDTO
	Roster    []core.UserDTO
	Peers     []core.Sender
}

// Join adds the connection to the room, or refreshes its display name if
// it is already a member (reconnection). JoinedAt and the room's
// connection-attempt counter are only touched on a fresh join.
func (r *Registry) Join(conn domain.ConnID, roomID domain.RoomID, requestedName string) (joinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return joinResult{}, domain.ErrRoomNotFound
	}
	entry, ok := r.conns[conn]
	if !ok {
		return joinResult{}, errConnNotBound
	}

	res := joinResult{}
	if p := room.Find(conn); p != nil {
		res.Reconnect = true
		if requestedName != "" {
			p.Name = requestedName
			entry.Name = requestedName
		}
		res.Self = core.UserDTO{ID: conn, Name: p.Name}
	} else {
		name := requestedName
		if name == "" {
			name = domain.DefaultName(len(room.Participants) + 1)
		}
		room.Participants = append(room.Participants, &domain.Participant{
			ID:       conn,
			Name:     name,
			JoinedAt: r.now(),
		})
		room.ConnectionAttempts++
		entry.Room = roomID
		entry.Name = name
		res.Self = core.UserDTO{ID: conn, Name: name}
	}

	for _, p := range room.Participants {
		if p.ID == conn {
			continue
		}
		res.Roster = append(res.Roster, core.UserDTO{ID: p.ID, Name: p.Name})
		if pe, ok := r.conns[p.ID]; ok {
			res.Peers = append(res.Peers, pe.Sender)
		}
	}
	return res, nil
}

// leaveResult is the snapshot captured while tearing down a membership.
type leaveResult struct {
	Room    domain.RoomID
	Name    string
	Peers   []core.Sender
	Deleted bool
}

// Teardown removes the connection's room membership, whichever room it is
// in. The second of a leave/disconnect pair finds the membership already
// cleared and reports ok=false.
func (r *Registry) Teardown(conn domain.ConnID) (leaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardownLocked(conn)
}

// TeardownFrom is Teardown restricted to an explicit room: a no-op unless
// the connection's recorded room matches.
func (r *Registry) TeardownFrom(conn domain.ConnID, roomID domain.RoomID) (leaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[conn]
	if !ok || e.Room != roomID {
		return leaveResult{}, false
	}
	return r.teardownLocked(conn)
}

func (r *Registry) teardownLocked(conn domain.ConnID) (leaveResult, bool) {
	e, ok := r.conns[conn]
	if !ok || e.Room == "" {
		return leaveResult{}, false
	}
	res := leaveResult{Room: e.Room, Name: e.Name}
	room := r.rooms[e.Room]
	e.Room = ""
	if room == nil || !room.Remove(conn) {
		return leaveResult{}, false
	}
	for _, p := range room.Participants {
		if pe, ok := r.conns[p.ID]; ok {
			res.Peers = append(res.Peers, pe.Sender)
		}
	}
	// Expected fast path: an emptied room is deleted right away; the
	// reaper only backstops rooms that never saw a clean teardown.
	if len(room.Participants) == 0 {
		delete(r.rooms, room.ID)
		res.Deleted = true
	}
	return res, true
}

// ResolveTarget enforces room-scoped visibility for negotiation forwards:
// the sender must be in a room and the target must be a member of that
// same room. Without the check any client could probe arbitrary
// connection ids across rooms.
func (r *Registry) ResolveTarget(sender, target domain.ConnID) (core.Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	se, ok := r.conns[sender]
	if !ok || se.Room == "" {
		return nil, domain.ErrNotInRoom
	}
	room := r.rooms[se.Room]
	if room == nil || room.Find(target) == nil {
		return nil, domain.ErrTargetNotFound
	}
	te, ok := r.conns[target]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return te.Sender, nil
}

// RecordConnectionStatus bumps the room's success counter when a pair of
// peers reports its direct connection established.
func (r *Registry) RecordConnectionStatus(roomID domain.RoomID, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok || !connected {
		return
	}
	room.SuccessfulConnections++
}
