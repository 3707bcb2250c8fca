// Package protocol defines the wire types exchanged with the kseli server
// over the room WebSocket channel.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EnvelopeType represents the type of a real-time envelope.
type EnvelopeType string

const (
	EnvelopeMsg   EnvelopeType = "msg"
	EnvelopeJoin  EnvelopeType = "join"
	EnvelopeLeave EnvelopeType = "leave"
)

// Role is an opaque participant rank assigned by the server.
// The client passes it through without interpreting it.
type Role int

const (
	RoleAdmin  Role = 1
	RoleMember Role = 2
)

// Participant is a member of a room's roster.
type Participant struct {
	ID       uint8  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// MessageData is the payload of a "msg" envelope. Content is ciphertext
// on the wire; plaintext only exists after a successful decode.
type MessageData struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// LeaveData is the payload of a "leave" envelope.
type LeaveData struct {
	ID uint8 `json:"id"`
}

// Envelope is the unit of real-time traffic. Exactly one of the payload
// fields is set, matching Type.
type Envelope struct {
	Type  EnvelopeType
	Msg   *MessageData
	Join  *Participant
	Leave *LeaveData
}

// wireEnvelope isolates the JSON encoding from the public API.
type wireEnvelope struct {
	Type EnvelopeType    `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage builds a "msg" envelope.
func NewMessage(username, content string) Envelope {
	return Envelope{Type: EnvelopeMsg, Msg: &MessageData{Username: username, Content: content}}
}

// NewJoin builds a "join" envelope.
func NewJoin(p Participant) Envelope {
	return Envelope{Type: EnvelopeJoin, Join: &p}
}

// NewLeave builds a "leave" envelope.
func NewLeave(id uint8) Envelope {
	return Envelope{Type: EnvelopeLeave, Leave: &LeaveData{ID: id}}
}

// Encode encodes the envelope as a JSON text frame body.
func (e Envelope) Encode() ([]byte, error) {
	var data any
	switch e.Type {
	case EnvelopeMsg:
		data = e.Msg
	case EnvelopeJoin:
		data = e.Join
	case EnvelopeLeave:
		data = e.Leave
	default:
		return nil, fmt.Errorf("unknown envelope type %q", e.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope payload: %w", err)
	}
	return json.Marshal(wireEnvelope{Type: e.Type, Data: raw})
}

// ParseEnvelope decodes a JSON text frame into a typed envelope.
// Envelopes with an unknown type are rejected so the caller can drop them.
func ParseEnvelope(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	env := Envelope{Type: wire.Type}
	switch wire.Type {
	case EnvelopeMsg:
		env.Msg = &MessageData{}
		if err := json.Unmarshal(wire.Data, env.Msg); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode msg payload: %w", err)
		}
	case EnvelopeJoin:
		env.Join = &Participant{}
		if err := json.Unmarshal(wire.Data, env.Join); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode join payload: %w", err)
		}
	case EnvelopeLeave:
		env.Leave = &LeaveData{}
		if err := json.Unmarshal(wire.Data, env.Leave); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode leave payload: %w", err)
		}
	default:
		return Envelope{}, fmt.Errorf("unknown envelope type %q", wire.Type)
	}
	return env, nil
}
