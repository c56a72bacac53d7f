package core

import (
	"encoding/json"

	"github.com/peercall/signaling/internal/domain"
)

// Event is one outbound signaling message. Kind returns the wire-level
// message type; the field names below are the wire contract and must not
// change.
type Event interface {
	Kind() string
}

// RoomJoined is sent to a joiner only. Users lists the members that were
// already in the room, excluding the joiner itself.
type RoomJoined struct {
	RoomID domain.RoomID `json:"roomId"`
	Users  []UserDTO     `json:"users"`
}

func (RoomJoined) Kind() string { return "room-joined" }

// UserJoined announces a new member to everyone already in the room.
type UserJoined struct {
	ID   domain.ConnID `json:"id"`
	Name string        `json:"name"`
}

func (UserJoined) Kind() string { return "user-joined" }

type UserLeft struct {
	ConnectionID domain.ConnID `json:"connectionId"`
}

func (UserLeft) Kind() string { return "user-left" }

// Offer, Answer and Candidate carry an opaque negotiation payload plus the
// sender's connection id. The sender field is relabeled per kind for
// protocol compatibility; the payloads are never inspected.

type Offer struct {
	Offer  json.RawMessage `json:"offer"`
	Caller domain.ConnID   `json:"caller"`
}

func (Offer) Kind() string { return "offer" }

type Answer struct {
	Answer   json.RawMessage `json:"answer"`
	Answerer domain.ConnID   `json:"answerer"`
}

func (Answer) Kind() string { return "answer" }

type Candidate struct {
	Candidate json.RawMessage `json:"candidate"`
	Sender    domain.ConnID   `json:"sender"`
}

func (Candidate) Kind() string { return "ice-candidate" }

type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) Kind() string { return "error" }

// Encode flattens ev into its wire envelope: the event's own fields plus
// the "type" discriminator at the top level.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(ev.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}
