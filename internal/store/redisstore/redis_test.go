package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

func setupTestStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("WIREBOARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping test: WIREBOARD_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := New(ctx, Options{Addr: addr, Prefix: "test:" + uuid.NewString() + ":", MaxMessages: 3})
	if err != nil {
		t.Skipf("Skipping test: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisMessagesNewestFirstAndTrimmed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.SaveMessage(ctx, &store.Message{
			ID: uuid.NewString(), UserID: "u1", RoomID: "r1",
			Content: string(rune('a' + i)), Type: store.MessageTypeText, Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "e" || msgs[2].Content != "c" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestRedisDrawingHistoryAndRooms(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		if err := s.SaveDrawingAction(ctx, &store.DrawingAction{
			ID: id, UserID: "u1", RoomID: "r1", Type: store.ActionTypeDraw,
			Data: map[string]any{"id": id}, Timestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("save action: %v", err)
		}
	}
	actions, err := s.ListDrawingActions(ctx, "r1")
	if err != nil || len(actions) != 2 || actions[0].ID != "a1" {
		t.Fatalf("unexpected actions: %+v err=%v", actions, err)
	}
	if err := s.ClearDrawingActions(ctx, "r1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if actions, _ := s.ListDrawingActions(ctx, "r1"); len(actions) != 0 {
		t.Fatalf("expected empty history, got %d", len(actions))
	}

	first, err := s.CreateRoom(ctx, "r1", "one")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := s.CreateRoom(ctx, "r1", "renamed")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if again.Name != "renamed" || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected upsert result: %+v vs %+v", again, first)
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("unexpected rooms: %+v err=%v", rooms, err)
	}
}
