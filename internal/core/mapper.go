package core

import (
	"fmt"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/proto"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

// EncodeEvent renders ev as one outbound wire frame.
func EncodeEvent(ev *Event) ([]byte, error) {
	out, err := outboundFromEvent(ev)
	if err != nil {
		return nil, err
	}
	return proto.Encode(out)
}

func outboundFromEvent(ev *Event) (any, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := proto.FormatTime(ts)

	switch ev.Kind {
	case EventChatMessage:
		return proto.ChatMessageEvent{
			Type:      proto.TypeChatMessage,
			Message:   ev.Message,
			UserID:    ev.User,
			Timestamp: stamp,
		}, nil
	case EventDrawingAction:
		return proto.DrawingActionEvent{
			Type:      proto.TypeDrawingAction,
			Action:    ev.Action,
			UserID:    ev.User,
			Timestamp: stamp,
		}, nil
	case EventClearCanvas:
		return proto.ClearCanvasEvent{
			Type:      proto.TypeClearCanvas,
			RoomID:    ev.Room,
			UserID:    ev.User,
			Timestamp: stamp,
		}, nil
	case EventUserJoined, EventUserLeft:
		typ := proto.TypeUserJoined
		if ev.Kind == EventUserLeft {
			typ = proto.TypeUserLeft
		}
		return proto.MembershipEvent{
			Type:      typ,
			RoomID:    ev.Room,
			UserID:    ev.User,
			Timestamp: stamp,
		}, nil
	case EventPresenceUpdate:
		return proto.PresenceUpdateEvent{
			Type:      proto.TypePresenceUpdate,
			RoomID:    ev.Room,
			UserID:    ev.User,
			Status:    ev.Status,
			Data:      ev.Data,
			Timestamp: stamp,
		}, nil
	case EventRoomState:
		messages := ev.Messages
		if messages == nil {
			messages = []*store.Message{}
		}
		actions := ev.Actions
		if actions == nil {
			actions = []*store.DrawingAction{}
		}
		return proto.RoomState{
			Type:           proto.TypeRoomState,
			RoomID:         ev.Room,
			Messages:       messages,
			DrawingActions: actions,
			Timestamp:      stamp,
		}, nil
	case EventError:
		e := ev.Error
		if e == nil {
			e = coreError(ErrCodeBadRequest, "unknown error")
		}
		return proto.Error{
			Type:      proto.TypeError,
			Code:      e.Code,
			Message:   e.Message,
			Timestamp: stamp,
		}, nil
	default:
		return nil, fmt.Errorf("encode event: unsupported kind %d", ev.Kind)
	}
}
