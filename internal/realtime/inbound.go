package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Inbound message types.
const (
	TypeAuth         = "auth"
	TypeStartStream  = "startStream"
	TypeJoinStream   = "joinStream"
	TypeLeaveStream  = "leaveStream"
	TypeEndStream    = "endStream"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Message is a decoded client->server frame. Each variant implements it.
type Message interface {
	messageType() string
}

// Auth carries the credential when it was not supplied on the upgrade request.
type Auth struct {
	Token string `json:"token" validate:"required"`
}

// StartStream makes the caller a streamer.
type StartStream struct{}

// JoinStream asks to watch a live stream.
type JoinStream struct {
	StreamID uint `json:"streamId" validate:"required"`
}

// LeaveStream stops watching a stream.
type LeaveStream struct {
	StreamID uint `json:"streamId" validate:"required"`
}

// EndStream ends a stream, identified by its streamer or by its id.
type EndStream struct {
	StreamerID uint `json:"streamerId" validate:"required_without=StreamID"`
	StreamID   uint `json:"streamId" validate:"required_without=StreamerID"`
}

// Signal is a WebRTC negotiation message relayed verbatim to TargetUserID.
type Signal struct {
	Kind         string          `json:"-"`
	TargetUserID uint            `json:"targetUserId" validate:"required"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

func (Auth) messageType() string        { return TypeAuth }
func (StartStream) messageType() string { return TypeStartStream }
func (JoinStream) messageType() string  { return TypeJoinStream }
func (LeaveStream) messageType() string { return TypeLeaveStream }
func (EndStream) messageType() string   { return TypeEndStream }
func (s Signal) messageType() string    { return s.Kind }

// TypeOf returns the wire type of a decoded message.
func TypeOf(m Message) string { return m.messageType() }

var validate = validator.New()

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeError describes a frame rejected at the boundary.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// Decode parses and validates a raw frame into one of the message variants.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed message"}
	}

	var msg Message
	switch env.Type {
	case TypeAuth:
		var m Auth
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeStartStream:
		msg = StartStream{}
	case TypeJoinStream:
		var m JoinStream
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeLeaveStream:
		var m LeaveStream
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeEndStream:
		var m EndStream
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeOffer, TypeAnswer, TypeICECandidate:
		m := Signal{Kind: env.Type}
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case "":
		return nil, &DecodeError{Reason: "missing message type"}
	default:
		return nil, &DecodeError{Type: env.Type, Reason: "unknown message type"}
	}

	return msg, nil
}

func decodePayload(env envelope, dst interface{}) error {
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return &DecodeError{Type: env.Type, Reason: "payload is required"}
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return &DecodeError{Type: env.Type, Reason: "malformed payload"}
	}
	if err := validate.Struct(dst); err != nil {
		return &DecodeError{Type: env.Type, Reason: fmt.Sprintf("invalid payload: %v", err)}
	}
	return nil
}
