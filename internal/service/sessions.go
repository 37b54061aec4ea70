package service

import (
	"trashtalk/internal/notifications"
	"trashtalk/internal/realtime"
)

// Emitter pushes realtime events to rooms.
type Emitter interface {
	EmitToRoom(room string, ev realtime.Event) int
	EmitToUser(userID uint, ev realtime.Event) int
	EmitAll(ev realtime.Event) int
}

// Sessions is the part of the session registry the stream manager drives.
type Sessions interface {
	Emitter
	Join(c *notifications.Client, room string) error
	LeaveUser(userID uint, room string)
	CloseRoom(room string)
	UserInRoom(userID uint, room string) bool
	SendTo(c *notifications.Client, ev realtime.Event) bool
}
