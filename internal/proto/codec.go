package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

// ErrUnknownType is wrapped by DecodeError when the envelope type is not recognized.
var ErrUnknownType = errors.New("unknown envelope type")

// DecodeError reports why an inbound frame could not be turned into an Envelope.
type DecodeError struct {
	Type   string // envelope type, empty if it could not be read
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode envelope"
	if e.Type != "" {
		msg += " " + e.Type
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

type inboundMessage struct {
	Content     *string `json:"content"`
	MessageType string  `json:"message_type"`
	FileURL     *string `json:"file_url"`
	FileSize    *int64  `json:"file_size"`
	FileType    *string `json:"file_type"`
}

type inboundAction struct {
	ActionType string          `json:"action_type"`
	Data       json.RawMessage `json:"data"`
}

// inbound is the union of every field an inbound envelope may carry.
// Chat and drawing payloads come either flat or nested under message/action.
type inbound struct {
	Type string `json:"type"`

	inboundMessage
	Message *inboundMessage `json:"message"`

	inboundAction
	Action *inboundAction `json:"action"`

	Status string `json:"status"`
}

// Decode parses one inbound frame.
func Decode(raw []byte) (Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, &DecodeError{Reason: "envelope must be a JSON object"}
	}

	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &DecodeError{Reason: "malformed json", Err: err}
	}

	switch in.Type {
	case "":
		return nil, &DecodeError{Reason: "missing type"}
	case TypeChatMessage, legacyTypeMessage:
		payload := in.inboundMessage
		if in.Message != nil {
			payload = *in.Message
		}
		return decodeChat(in.Type, payload)
	case TypeDrawingAction, legacyTypeDrawing:
		payload := in.inboundAction
		if in.Action != nil {
			payload = *in.Action
		}
		return decodeDrawing(in.Type, payload)
	case TypeClearCanvas:
		return ClearCanvas{}, nil
	case TypePresenceUpdate:
		data, err := decodeObject(in.Data)
		if err != nil {
			return nil, &DecodeError{Type: in.Type, Reason: "data must be an object", Err: err}
		}
		return PresenceUpdate{Status: in.Status, Data: data}, nil
	default:
		return nil, &DecodeError{Type: in.Type, Reason: "unsupported", Err: ErrUnknownType}
	}
}

func decodeChat(typ string, m inboundMessage) (Envelope, error) {
	if m.Content == nil {
		return nil, &DecodeError{Type: typ, Reason: "content is required"}
	}

	msgType := store.MessageTypeText
	if m.MessageType != "" {
		msgType = store.MessageType(m.MessageType)
	}
	if !msgType.Valid() {
		return nil, &DecodeError{Type: typ, Reason: fmt.Sprintf("unknown message_type %q", m.MessageType)}
	}

	chat := ChatMessage{Content: *m.Content, MessageType: msgType}
	if msgType == store.MessageTypeFile {
		if m.FileURL == nil || *m.FileURL == "" {
			return nil, &DecodeError{Type: typ, Reason: "file message requires file_url"}
		}
		chat.FileURL, chat.FileSize, chat.FileType = m.FileURL, m.FileSize, m.FileType
	} else if m.FileURL != nil || m.FileSize != nil || m.FileType != nil {
		return nil, &DecodeError{Type: typ, Reason: "file fields are only allowed on file messages"}
	}
	if chat.Content == "" && msgType != store.MessageTypeFile {
		return nil, &DecodeError{Type: typ, Reason: "content is empty"}
	}

	return chat, nil
}

func decodeDrawing(typ string, a inboundAction) (Envelope, error) {
	actionType := store.ActionType(a.ActionType)
	if !actionType.Valid() {
		return nil, &DecodeError{Type: typ, Reason: fmt.Sprintf("unknown action_type %q", a.ActionType)}
	}
	data, err := decodeObject(a.Data)
	if err != nil {
		return nil, &DecodeError{Type: typ, Reason: "data must be an object", Err: err}
	}
	if data == nil {
		data = map[string]any{}
	}
	return DrawingAction{ActionType: actionType, Data: data}, nil
}

// decodeObject accepts a missing/null value or a JSON object.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode serializes an outbound envelope.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}
