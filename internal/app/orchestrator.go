package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peercall/signaling/internal/core"
	"github.com/peercall/signaling/internal/domain"
)

// ForwardKind selects the relabeling of a negotiation message.
type ForwardKind int

const (
	KindOffer ForwardKind = iota
	KindAnswer
	KindCandidate
)

func (k ForwardKind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindCandidate:
		return "ice-candidate"
	}
	return "unknown"
}

// Orchestrator is the membership manager and negotiation router. It owns
// no state of its own: every mutation goes through the Registry's atomic
// operations, and events are delivered on the snapshots those return.
type Orchestrator struct {
	Registry *Registry
}

// Join moves the connection into roomID. A connection already in a
// different room is torn down from it first; rejoining the same room is
// the reconnection case and only refreshes the display name.
func (o *Orchestrator) Join(conn domain.ConnID, roomID, requestedName string) {
	target := domain.NormalizeRoomID(roomID)
	if cur, ok := o.Registry.RoomOf(conn); ok && cur != target {
		if res, ok := o.Registry.Teardown(conn); ok {
			o.announceLeft(conn, res)
		}
	}

	res, err := o.Registry.Join(conn, target, requestedName)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").
			Str("conn", string(conn)).Str("room", string(target)).Msg("join rejected")
		// Anything else (an unbound connection) has nobody to answer to.
		if errors.Is(err, domain.ErrRoomNotFound) {
			o.sendError(conn, "Room not found")
		}
		return
	}

	// The joiner must see the roster before anyone hears about the
	// joiner, so it never misses a pre-existing member.
	o.send(conn, core.RoomJoined{RoomID: target, Users: rosterOrEmpty(res.Roster)})
	if res.Reconnect {
		log.Info().Str("module", "app.orchestrator").Str("conn", string(conn)).
			Str("room", string(target)).Msg("reconnected to room")
	}
	announce := core.UserJoined{ID: res.Self.ID, Name: res.Self.Name}
	for _, peer := range res.Peers {
		if err := peer.TrySend(announce); err != nil {
			log.Warn().Err(err).Str("module", "app.orchestrator").Msg("user-joined dropped")
		}
	}
	log.Info().Str("module", "app.orchestrator").Str("conn", string(conn)).
		Str("room", string(target)).Str("name", res.Self.Name).
		Int("peers", len(res.Peers)).Msg("joined room")
}

// Leave handles an explicit leave-room request. Valid only for the room
// the connection is actually in; anything else is a no-op.
func (o *Orchestrator) Leave(conn domain.ConnID, roomID string) {
	res, ok := o.Registry.TeardownFrom(conn, domain.NormalizeRoomID(roomID))
	if !ok {
		return
	}
	o.announceLeft(conn, res)
}

// Disconnect is the transport-initiated teardown. The reason is
// informational only. Safe to call after Leave: the membership is already
// cleared and only the index entry is dropped.
func (o *Orchestrator) Disconnect(conn domain.ConnID, reason string) {
	log.Info().Str("module", "app.orchestrator").Str("conn", string(conn)).
		Str("reason", reason).Msg("disconnected")
	if res, ok := o.Registry.Teardown(conn); ok {
		o.announceLeft(conn, res)
	}
	o.Registry.Unbind(conn)
}

func (o *Orchestrator) announceLeft(conn domain.ConnID, res leaveResult) {
	ev := core.UserLeft{ConnectionID: conn}
	for _, peer := range res.Peers {
		if err := peer.TrySend(ev); err != nil {
			log.Warn().Err(err).Str("module", "app.orchestrator").Msg("user-left dropped")
		}
	}
	log.Info().Str("module", "app.orchestrator").Str("conn", string(conn)).
		Str("name", res.Name).Str("room", string(res.Room)).Msg("left room")
	if res.Deleted {
		log.Info().Str("module", "app.orchestrator").Str("room", string(res.Room)).
			Msg("room deleted (empty)")
	}
}

// Forward relays one negotiation message to its target, unicast only.
// The payload is opaque pass-through; this service owns delivery, not the
// negotiation protocol.
func (o *Orchestrator) Forward(kind ForwardKind, sender, target domain.ConnID, payload json.RawMessage) {
	dst, err := o.Registry.ResolveTarget(sender, target)
	if err != nil {
		switch err {
		case domain.ErrNotInRoom:
			// Silently dropped: noisy clients get a log line, not a reply.
			log.Debug().Str("module", "app.orchestrator").Str("kind", kind.String()).
				Str("conn", string(sender)).Msg("forward from connection outside any room")
		case domain.ErrTargetNotFound:
			log.Warn().Str("module", "app.orchestrator").Str("kind", kind.String()).
				Str("conn", string(sender)).Str("target", string(target)).Msg("forward target not found")
			// The original relay never surfaces a missing candidate target.
			if kind != KindCandidate {
				o.sendError(sender, fmt.Sprintf("Target user not found: %s", target))
			}
		}
		return
	}

	var ev core.Event
	switch kind {
	case KindOffer:
		ev = core.Offer{Offer: payload, Caller: sender}
	case KindAnswer:
		ev = core.Answer{Answer: payload, Answerer: sender}
	case KindCandidate:
		ev = core.Candidate{Candidate: payload, Sender: sender}
	default:
		return
	}
	if err := dst.TrySend(ev); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("kind", kind.String()).
			Str("target", string(target)).Msg("forward dropped")
		return
	}
	log.Debug().Str("module", "app.orchestrator").Str("kind", kind.String()).
		Str("from", string(sender)).Str("to", string(target)).Msg("forwarded")
}

// ConnectionStatus records a client's report about its direct peer link.
// Never answered; counters feed the debug endpoint.
func (o *Orchestrator) ConnectionStatus(conn domain.ConnID, roomID, status string, target domain.ConnID) {
	log.Info().Str("module", "app.orchestrator").Str("conn", string(conn)).
		Str("room", roomID).Str("status", status).Str("target", string(target)).
		Msg("connection status")
	o.Registry.RecordConnectionStatus(domain.NormalizeRoomID(roomID), status == "connected")
}

// Boundary operations for the HTTP layer.

func (o *Orchestrator) CreateRoom() domain.RoomID {
	return o.Registry.CreateRoom()
}

func (o *Orchestrator) RoomExists(roomID string) RoomStatus {
	return o.Registry.RoomStatusOf(domain.NormalizeRoomID(roomID))
}

func (o *Orchestrator) DebugSnapshot() []RoomSummary {
	return o.Registry.Summaries()
}

type Health struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	RoomCount  int       `json:"activeRooms"`
	TotalUsers int       `json:"totalUsers"`
}

func (o *Orchestrator) HealthSummary() Health {
	rooms, users := o.Registry.Stats()
	return Health{Status: "OK", Timestamp: time.Now().UTC(), RoomCount: rooms, TotalUsers: users}
}

func (o *Orchestrator) send(conn domain.ConnID, ev core.Event) {
	s, ok := o.Registry.SenderOf(conn)
	if !ok {
		return
	}
	if err := s.TrySend(ev); err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").
			Str("conn", string(conn)).Str("event", ev.Kind()).Msg("send dropped")
	}
}

func (o *Orchestrator) sendError(conn domain.ConnID, msg string) {
	o.send(conn, core.ErrorEvent{Message: msg})
}

func rosterOrEmpty(users []core.UserDTO) []core.UserDTO {
	if users == nil {
		return []core.UserDTO{}
	}
	return users
}
