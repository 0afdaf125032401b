package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MessageType distinguishes plain chat text from file shares and system notices.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// ActionType is the kind of a drawing action.
type ActionType string

const (
	ActionTypeDraw        ActionType = "draw"
	ActionTypeClear       ActionType = "clear"
	ActionTypeChangeColor ActionType = "change_color"
	ActionTypeChangeTool  ActionType = "change_tool"
)

// Valid reports whether t is a known drawing action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeDraw, ActionTypeClear, ActionTypeChangeColor, ActionTypeChangeTool:
		return true
	}
	return false
}

// Message represents a persisted chat message.
// FileURL, FileSize and FileType are only set for file messages.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	RoomID    string      `json:"room_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"message_type"`
	Timestamp time.Time   `json:"timestamp"`
	FileURL   *string     `json:"file_url,omitempty"`
	FileSize  *int64      `json:"file_size,omitempty"`
	FileType  *string     `json:"file_type,omitempty"`
}

// DrawingAction represents a persisted canvas operation.
type DrawingAction struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	RoomID    string         `json:"room_id"`
	Type      ActionType     `json:"action_type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Room is the durable summary of a room.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages of a room, newest first. A
	// non-positive limit yields an empty list.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// DrawingStore handles drawing action persistence.
type DrawingStore interface {
	// SaveDrawingAction persists a drawing action.
	SaveDrawingAction(ctx context.Context, action *DrawingAction) error

	// ListDrawingActions returns the full drawing history of a room, oldest first.
	ListDrawingActions(ctx context.Context, roomID string) ([]*DrawingAction, error)

	// ClearDrawingActions purges the drawing history of a room.
	ClearDrawingActions(ctx context.Context, roomID string) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom records a room. Creating an existing room ID updates its name.
	CreateRoom(ctx context.Context, roomID, name string) (*Room, error)

	// ListRooms lists all rooms, most recently created first.
	ListRooms(ctx context.Context) ([]*Room, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	DrawingStore
	RoomStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
