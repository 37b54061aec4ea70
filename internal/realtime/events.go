// Package realtime defines the socket wire format: outbound events, inbound
// message variants and room names.
package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Outbound event names.
const (
	EventNewNotification  = "newNotification"
	EventNewPost          = "newPost"
	EventNewChallenge     = "newChallenge"
	EventNewComment       = "newComment"
	EventNewLike          = "newLike"
	EventNewFollower      = "newFollower"
	EventNewReport        = "newReport"
	EventNewStream        = "newStream"
	EventNewAdvertisement = "newAdvertisement"
	EventStreamStarted    = "streamStarted"
	EventJoinedStream     = "joinedStream"
	EventLeftStream       = "leftStream"
	EventViewerJoined     = "viewerJoined"
	EventViewerLeft       = "viewerLeft"
	EventStreamEnded      = "streamEnded"
	EventError            = "error"
)

// Event is the envelope for every server->client frame.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewEvent builds an event.
func NewEvent(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload}
}

// Encode marshals the event once so it can be sent to many connections.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamStartedPayload announces a new live stream.
type StreamStartedPayload struct {
	StreamID   uint `json:"streamId"`
	StreamerID uint `json:"streamerId"`
}

// StreamPayload identifies a stream.
type StreamPayload struct {
	StreamID uint `json:"streamId"`
}

// JoinedStreamPayload acknowledges a successful join to the viewer.
type JoinedStreamPayload struct {
	StreamID   uint   `json:"streamId"`
	StreamerID uint   `json:"streamerId"`
	Viewers    []uint `json:"viewers"`
}

// ViewerPayload is sent to a stream room when membership changes.
type ViewerPayload struct {
	StreamID uint   `json:"streamId"`
	ViewerID uint   `json:"viewerId"`
	Username string `json:"username"`
}

// StreamEndedPayload is sent to a stream room when the stream ends.
type StreamEndedPayload struct {
	StreamID uint   `json:"streamId"`
	Reason   string `json:"reason,omitempty"`
}

// RelayedSignalPayload is what the target of a signaling message receives.
type RelayedSignalPayload struct {
	FromUserID uint            `json:"fromUserId"`
	StreamID   uint            `json:"streamId"`
	Payload    json.RawMessage `json:"payload"`
}

// NotificationPayload carries a persisted notification to a recipient.
type NotificationPayload struct {
	NotificationID uint   `json:"notificationId,omitempty"`
	Message        string `json:"message"`
	ActorID        uint   `json:"actorId,omitempty"`
	ResourceID     uint   `json:"resourceId,omitempty"`
}

// FollowerPayload carries follow graph changes to the affected user.
type FollowerPayload struct {
	NotificationID uint   `json:"notificationId,omitempty"`
	FollowerID     uint   `json:"followerId"`
	FollowingID    uint   `json:"followingId"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

const (
	userRoomPrefix   = "user-"
	streamRoomPrefix = "stream-"
)

// UserRoom is the personal room of a user.
func UserRoom(userID uint) string {
	return userRoomPrefix + strconv.FormatUint(uint64(userID), 10)
}

// StreamRoom is the room of a live stream.
func StreamRoom(streamID uint) string {
	return streamRoomPrefix + strconv.FormatUint(uint64(streamID), 10)
}

// ParseStreamRoom returns the stream id encoded in a stream room name.
func ParseStreamRoom(room string) (uint, bool) {
	return parseRoom(room, streamRoomPrefix)
}

// ParseUserRoom returns the user id encoded in a personal room name.
func ParseUserRoom(room string) (uint, bool) {
	return parseRoom(room, userRoomPrefix)
}

func parseRoom(room, prefix string) (uint, bool) {
	if !strings.HasPrefix(room, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(room, prefix), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// MustEncode encodes events whose payloads are known to marshal.
func MustEncode(e Event) []byte {
	b, err := e.Encode()
	if err != nil {
		panic(fmt.Sprintf("realtime: encode %s: %v", e.Type, err))
	}
	return b
}
