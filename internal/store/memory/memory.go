package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

// MemoryStore implements store.Store in process memory.
// Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*store.Message       // room -> oldest first
	actions  map[string][]*store.DrawingAction // room -> oldest first
	rooms    map[string]*store.Room
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]*store.Message),
		actions:  make(map[string][]*store.DrawingAction),
		rooms:    make(map[string]*store.Room),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// SaveMessage appends a copy of msg to its room history.
func (s *MemoryStore) SaveMessage(_ context.Context, msg *store.Message) error {
	cp := *msg
	s.mu.Lock()
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], &cp)
	s.mu.Unlock()
	return nil
}

// ListMessages returns up to limit messages, newest first.
func (s *MemoryStore) ListMessages(_ context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[roomID]
	out := make([]*store.Message, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *history[i]
		out = append(out, &cp)
	}
	return out, nil
}

// SaveDrawingAction appends a copy of action to its room history.
func (s *MemoryStore) SaveDrawingAction(_ context.Context, action *store.DrawingAction) error {
	cp := *action
	s.mu.Lock()
	s.actions[action.RoomID] = append(s.actions[action.RoomID], &cp)
	s.mu.Unlock()
	return nil
}

// ListDrawingActions returns the full drawing history, oldest first.
func (s *MemoryStore) ListDrawingActions(_ context.Context, roomID string) ([]*store.DrawingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.actions[roomID]
	out := make([]*store.DrawingAction, 0, len(history))
	for _, a := range history {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// ClearDrawingActions drops the drawing history of a room.
func (s *MemoryStore) ClearDrawingActions(_ context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.actions, roomID)
	s.mu.Unlock()
	return nil
}

// CreateRoom records a room summary.
func (s *MemoryStore) CreateRoom(_ context.Context, roomID, name string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = &store.Room{ID: roomID, CreatedAt: time.Now().UTC()}
		s.rooms[roomID] = room
	}
	room.Name = name
	cp := *room
	return &cp, nil
}

// ListRooms lists rooms, most recently created first.
func (s *MemoryStore) ListRooms(context.Context) ([]*store.Room, error) {
	s.mu.RLock()
	out := make([]*store.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

var _ store.Store = (*MemoryStore)(nil)
