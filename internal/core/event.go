package core

import (
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage carries a stored chat message.
	EventChatMessage EventKind = iota
	// EventDrawingAction carries a stored drawing action.
	EventDrawingAction
	// EventClearCanvas notifies that a room's drawing history was purged.
	EventClearCanvas
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventPresenceUpdate relays transient presence state.
	EventPresenceUpdate
	// EventRoomState delivers the room snapshot to a joining connection.
	EventRoomState
	// EventError notifies a single client about a failed operation.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChatMessage:
		return "chat_message"
	case EventDrawingAction:
		return "drawing_action"
	case EventClearCanvas:
		return "clear_canvas"
	case EventUserJoined:
		return "user_joined"
	case EventUserLeft:
		return "user_left"
	case EventPresenceUpdate:
		return "presence_update"
	case EventRoomState:
		return "room_state"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes what happened in a room.
type Event struct {
	Kind      EventKind
	Room      string
	User      string
	Message   *store.Message
	Action    *store.DrawingAction
	Status    string
	Data      map[string]any
	Messages  []*store.Message       // EventRoomState
	Actions   []*store.DrawingAction // EventRoomState
	Error     *CoreError
	Timestamp time.Time
}
