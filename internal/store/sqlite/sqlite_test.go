package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListMessagesNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		msg := &store.Message{
			ID:        "m" + text,
			UserID:    "u1",
			RoomID:    "r1",
			Content:   text,
			Type:      store.MessageTypeText,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save %s: %v", text, err)
		}
	}
	if err := s.SaveMessage(ctx, &store.Message{
		ID: "other", UserID: "u2", RoomID: "r2", Content: "elsewhere",
		Type: store.MessageTypeText, Timestamp: base,
	}); err != nil {
		t.Fatalf("save other room: %v", err)
	}

	got, err := s.ListMessages(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "two" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("timestamp not preserved: %v", got[0].Timestamp)
	}
}

func TestFileMessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	url, size, typ := "https://files.example/a.png", int64(2048), "image/png"
	msg := &store.Message{
		ID: "f1", UserID: "u1", RoomID: "r1", Content: "a.png",
		Type: store.MessageTypeFile, Timestamp: time.Now().UTC(),
		FileURL: &url, FileSize: &size, FileType: &typ,
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.ListMessages(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].FileURL == nil || *got[0].FileURL != url || *got[0].FileSize != size || *got[0].FileType != typ {
		t.Fatalf("file fields not preserved: %+v", got)
	}
}

func TestDrawingActionsOldestFirstAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"a1", "a2", "a3"} {
		action := &store.DrawingAction{
			ID: id, UserID: "u1", RoomID: "r1", Type: store.ActionTypeDraw,
			Data:      map[string]any{"x": float64(i), "color": "#000"},
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.SaveDrawingAction(ctx, action); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := s.ListDrawingActions(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a1" || got[2].ID != "a3" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Data["x"] != float64(1) || got[1].Data["color"] != "#000" {
		t.Fatalf("data not preserved: %+v", got[1].Data)
	}

	if err := s.ClearDrawingActions(ctx, "r1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = s.ListDrawingActions(ctx, "r1")
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestCreateRoomUpsertsAndLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateRoom(ctx, "r1", "First"); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := s.CreateRoom(ctx, "r2", "Second"); err != nil {
		t.Fatalf("create r2: %v", err)
	}
	room, err := s.CreateRoom(ctx, "r1", "Renamed")
	if err != nil {
		t.Fatalf("rename r1: %v", err)
	}
	if room.Name != "Renamed" {
		t.Fatalf("expected renamed room, got %+v", room)
	}

	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "r2" || rooms[1].ID != "r1" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.getRoom(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMessagesNonPositiveLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessage(ctx, &store.Message{
		ID: "m1", UserID: "u1", RoomID: "r1", Content: "hi",
		Type: store.MessageTypeText, Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, limit := range []int{0, -1} {
		got, err := s.ListMessages(ctx, "r1", limit)
		if err != nil {
			t.Fatalf("limit %d: %v", limit, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("limit %d: expected empty list, got %v", limit, got)
		}
	}
}
