package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/metrics"
	"github.com/vovakirdan/wireboard-server/internal/proto"
	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/utils"
)

// DefaultHistoryLimit is the number of recent messages in a join snapshot.
const DefaultHistoryLimit = 20

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionDeps are the shared collaborators every session uses.
type SessionDeps struct {
	Registry     *Registry
	Broadcaster  *Broadcaster
	Store        store.Store
	HistoryLimit int
	Metrics      *metrics.Metrics
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Session drives one connection through Connecting -> Joined -> Closed.
// Handle is called from a single read goroutine; Close may race with it.
type Session struct {
	client *Client
	roomID string
	deps   SessionDeps
	log    zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewSession binds client to roomID. Nothing happens until Open.
func NewSession(client *Client, roomID string, deps SessionDeps) *Session {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = DefaultHistoryLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &Session{
		client: client,
		roomID: roomID,
		deps:   deps,
		log: deps.Logger.With().
			Str("room_id", roomID).
			Str("user_id", client.UserID).
			Str("client_id", client.ID).
			Logger(),
		state: StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the room this session was opened for.
func (s *Session) RoomID() string { return s.roomID }

// Client returns the connection this session drives.
func (s *Session) Client() *Client { return s.client }

// Open joins the room, announces the user to the other members and sends the
// room snapshot to this connection only. On ErrAlreadyJoined the session is
// closed without any broadcast.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("open session in state %s", s.state)
	}
	if err := s.deps.Registry.Join(s.client, s.roomID); err != nil {
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}
	s.state = StateJoined
	s.mu.Unlock()

	s.log.Info().Msg("joined room")
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventUserJoined,
		Room:      s.roomID,
		User:      s.client.UserID,
		Timestamp: s.deps.Now(),
	}, s.client)

	return s.sendSnapshot(ctx)
}

func (s *Session) sendSnapshot(ctx context.Context) error {
	messages, err := s.deps.Store.ListMessages(ctx, s.roomID, s.deps.HistoryLimit)
	if err != nil {
		return s.storageFailure(ctx, "load messages", err)
	}
	actions, err := s.deps.Store.ListDrawingActions(ctx, s.roomID)
	if err != nil {
		return s.storageFailure(ctx, "load drawing actions", err)
	}
	return s.reply(ctx, &Event{
		Kind:      EventRoomState,
		Room:      s.roomID,
		User:      s.client.UserID,
		Messages:  messages,
		Actions:   actions,
		Timestamp: s.deps.Now(),
	})
}

// Handle processes one inbound frame. Malformed and unknown envelopes are
// logged and dropped. A persistence failure is reported to this connection
// with an error envelope and returned wrapped in ErrStorageUnavailable; the
// session stays joined either way. Only ErrNotJoined means the caller should
// stop reading; the connection is told with a not_joined error envelope.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() != StateJoined {
		if err := s.Reject(ctx, ErrCodeNotJoined, "session is not joined"); err != nil {
			s.log.Debug().Err(err).Msg("send not_joined reply")
		}
		return ErrNotJoined
	}

	env, err := proto.Decode(raw)
	if err != nil {
		s.deps.Metrics.Inbound(decodeKind(err), "dropped")
		s.log.Debug().Err(err).Msg("dropping inbound frame")
		return nil
	}

	switch e := env.(type) {
	case proto.ChatMessage:
		err = s.handleChat(ctx, e)
	case proto.DrawingAction:
		if e.ActionType == store.ActionTypeClear {
			err = s.handleClear(ctx)
		} else {
			err = s.handleDrawing(ctx, e)
		}
	case proto.ClearCanvas:
		err = s.handleClear(ctx)
	case proto.PresenceUpdate:
		s.handlePresence(ctx, e)
	default:
		s.log.Debug().Str("kind", env.Kind()).Msg("ignoring envelope")
	}

	result := "ok"
	if err != nil {
		result = "failed"
	}
	s.deps.Metrics.Inbound(env.Kind(), result)
	return err
}

func (s *Session) handleChat(ctx context.Context, in proto.ChatMessage) error {
	msg := &store.Message{
		ID:        utils.NewID(),
		UserID:    s.client.UserID,
		RoomID:    s.roomID,
		Content:   in.Content,
		Type:      in.MessageType,
		Timestamp: s.deps.Now().UTC(),
		FileURL:   in.FileURL,
		FileSize:  in.FileSize,
		FileType:  in.FileType,
	}
	if err := s.deps.Store.SaveMessage(ctx, msg); err != nil {
		return s.storageFailure(ctx, "save message", err)
	}
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventChatMessage,
		Room:      s.roomID,
		User:      s.client.UserID,
		Message:   msg,
		Timestamp: msg.Timestamp,
	}, s.client)
	return nil
}

func (s *Session) handleDrawing(ctx context.Context, in proto.DrawingAction) error {
	action := &store.DrawingAction{
		ID:        utils.NewID(),
		UserID:    s.client.UserID,
		RoomID:    s.roomID,
		Type:      in.ActionType,
		Data:      in.Data,
		Timestamp: s.deps.Now().UTC(),
	}
	if err := s.deps.Store.SaveDrawingAction(ctx, action); err != nil {
		return s.storageFailure(ctx, "save drawing action", err)
	}
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventDrawingAction,
		Room:      s.roomID,
		User:      s.client.UserID,
		Action:    action,
		Timestamp: action.Timestamp,
	}, s.client)
	return nil
}

func (s *Session) handleClear(ctx context.Context) error {
	if err := s.deps.Store.ClearDrawingActions(ctx, s.roomID); err != nil {
		return s.storageFailure(ctx, "clear drawing actions", err)
	}
	s.log.Info().Msg("canvas cleared")
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventClearCanvas,
		Room:      s.roomID,
		User:      s.client.UserID,
		Timestamp: s.deps.Now(),
	}, s.client)
	return nil
}

func (s *Session) handlePresence(ctx context.Context, in proto.PresenceUpdate) {
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventPresenceUpdate,
		Room:      s.roomID,
		User:      s.client.UserID,
		Status:    in.Status,
		Data:      in.Data,
		Timestamp: s.deps.Now(),
	}, s.client)
}

// Reject sends an error envelope to this connection only.
func (s *Session) Reject(ctx context.Context, code, msg string) error {
	return s.reply(ctx, &Event{
		Kind:      EventError,
		Room:      s.roomID,
		User:      s.client.UserID,
		Error:     coreError(code, msg),
		Timestamp: s.deps.Now(),
	})
}

func (s *Session) storageFailure(ctx context.Context, op string, err error) error {
	s.log.Error().Err(err).Str("op", op).Msg("persistence gateway failed")
	if replyErr := s.Reject(ctx, ErrCodeStorageUnavailable, op+" failed"); replyErr != nil {
		s.log.Debug().Err(replyErr).Msg("send error reply")
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func (s *Session) reply(ctx context.Context, ev *Event) error {
	return s.deps.Broadcaster.SendTo(ctx, s.client, ev)
}

// Close leaves the room and tells the remaining members. It runs at most once;
// later calls are no-ops. If the broadcaster already evicted this connection,
// user_left is still sent exactly once, unless the same user has reconnected
// on another connection in the meantime.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	s.mu.Unlock()

	if prev != StateJoined {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if _, err := s.deps.Registry.Leave(s.client); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Msg("leave room")
	}
	s.log.Info().Msg("left room")
	if holder, ok := s.deps.Registry.UserClient(s.client.UserID); ok && holder != s.client {
		s.log.Info().Str("new_client_id", holder.ID).Msg("user reconnected, skipping user_left")
		return
	}
	s.deps.Broadcaster.Broadcast(ctx, s.roomID, &Event{
		Kind:      EventUserLeft,
		Room:      s.roomID,
		User:      s.client.UserID,
		Timestamp: s.deps.Now(),
	})
}

func decodeKind(err error) string {
	if errors.Is(err, proto.ErrUnknownType) {
		return "unknown"
	}
	var de *proto.DecodeError
	if errors.As(err, &de) && de.Type != "" {
		return de.Type
	}
	return "invalid"
}
