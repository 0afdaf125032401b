package proto

import (
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

// Wire type names. Inbound and outbound share the same names per event kind.
const (
	TypeChatMessage    = "chat_message"
	TypeDrawingAction  = "drawing_action"
	TypeClearCanvas    = "clear_canvas"
	TypePresenceUpdate = "presence_update"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeRoomState      = "room_state"
	TypeError          = "error"

	// Older clients send these instead of chat_message / drawing_action.
	legacyTypeMessage = "message"
	legacyTypeDrawing = "drawing"
)

// Envelope is a decoded inbound event. The concrete type identifies the kind.
type Envelope interface {
	Kind() string
}

// ChatMessage is a chat line or file share sent by a client.
type ChatMessage struct {
	Content     string
	MessageType store.MessageType
	FileURL     *string
	FileSize    *int64
	FileType    *string
}

// DrawingAction is a canvas operation sent by a client.
type DrawingAction struct {
	ActionType store.ActionType
	Data       map[string]any
}

// ClearCanvas asks for the room's drawing history to be purged.
type ClearCanvas struct{}

// PresenceUpdate carries transient presence state (cursor, typing, status).
type PresenceUpdate struct {
	Status string
	Data   map[string]any
}

func (ChatMessage) Kind() string    { return TypeChatMessage }
func (DrawingAction) Kind() string  { return TypeDrawingAction }
func (ClearCanvas) Kind() string    { return TypeClearCanvas }
func (PresenceUpdate) Kind() string { return TypePresenceUpdate }

// ChatMessageEvent is broadcast when a message was stored.
type ChatMessageEvent struct {
	Type      string         `json:"type"`
	Message   *store.Message `json:"message"`
	UserID    string         `json:"user_id"`
	Timestamp string         `json:"timestamp"`
}

// DrawingActionEvent is broadcast when a drawing action was stored.
type DrawingActionEvent struct {
	Type      string               `json:"type"`
	Action    *store.DrawingAction `json:"action"`
	UserID    string               `json:"user_id"`
	Timestamp string               `json:"timestamp"`
}

// ClearCanvasEvent is broadcast after a room's drawing history was purged.
type ClearCanvasEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// MembershipEvent notifies that a user joined or left a room.
type MembershipEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// PresenceUpdateEvent relays a presence update to the other members.
type PresenceUpdateEvent struct {
	Type      string         `json:"type"`
	RoomID    string         `json:"room_id"`
	UserID    string         `json:"user_id"`
	Status    string         `json:"status,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// RoomState is the snapshot sent to a connection right after it joins.
type RoomState struct {
	Type           string                 `json:"type"`
	RoomID         string                 `json:"room_id"`
	Messages       []*store.Message       `json:"messages"`
	DrawingActions []*store.DrawingAction `json:"drawing_actions"`
	Timestamp      string                 `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FormatTime renders t as an ISO-8601 UTC timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
