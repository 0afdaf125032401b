package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
)

func TestSessionScenarioJoinChatLeave(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	if members := env.reg.MembersOf("r1"); len(members) != 1 || members[0] != a {
		t.Fatalf("expected r1={A}, got %v", members)
	}

	b, sb := newTestClient("B", "u2")
	sessB := env.open(t, b, "r1")

	joined := mustFrame(t, sa, "user_joined")
	if joined["user_id"] != "u2" || joined["room_id"] != "r1" {
		t.Fatalf("unexpected user_joined: %v", joined)
	}
	state := mustFrame(t, sb, "room_state")
	if msgs := state["messages"].([]any); len(msgs) != 0 {
		t.Fatalf("fresh room should have no messages, got %v", msgs)
	}
	if acts := state["drawing_actions"].([]any); len(acts) != 0 {
		t.Fatalf("fresh room should have no drawing actions, got %v", acts)
	}
	mustNoFrame(t, sa, "room_state")

	if err := sessB.Handle(ctx, []byte(`{"type":"chat_message","content":"hi"}`)); err != nil {
		t.Fatalf("handle chat: %v", err)
	}
	if env.store.saves() != 1 {
		t.Fatalf("expected one SaveMessage, got %d", env.store.saves())
	}
	chat := mustFrame(t, sa, "chat_message")
	msg := chat["message"].(map[string]any)
	if msg["content"] != "hi" || chat["user_id"] != "u2" || msg["id"] == "" {
		t.Fatalf("unexpected chat frame: %v", chat)
	}
	mustNoFrame(t, sb, "chat_message")

	sessA.Close(ctx)
	left := mustFrame(t, sb, "user_left")
	if left["user_id"] != "u1" {
		t.Fatalf("unexpected user_left: %v", left)
	}
	if members := env.reg.MembersOf("r1"); len(members) != 1 || members[0] != b {
		t.Fatalf("expected r1={B}, got %v", members)
	}

	sessB.Close(ctx)
	if env.reg.HasRoom("r1") {
		t.Fatalf("room r1 should be gone")
	}
}

func TestSessionSnapshotHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")

	for _, text := range []string{"one", "two", "three"} {
		if err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"`+text+`"}`)); err != nil {
			t.Fatalf("chat: %v", err)
		}
	}
	for k := 0; k < 2; k++ {
		if err := sessA.Handle(ctx, []byte(`{"type":"drawing_action","action_type":"draw","data":{"x":1}}`)); err != nil {
			t.Fatalf("draw: %v", err)
		}
	}

	b, sb := newTestClient("B", "u2")
	sessB := NewSession(b, "r1", SessionDeps{
		Registry:     env.reg,
		Broadcaster:  env.bc,
		Store:        env.store,
		HistoryLimit: 2,
	})
	if err := sessB.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	state := mustFrame(t, sb, "room_state")
	msgs := state["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].(map[string]any)["content"] != "three" || msgs[1].(map[string]any)["content"] != "two" {
		t.Fatalf("messages should be newest first: %v", msgs)
	}
	if acts := state["drawing_actions"].([]any); len(acts) != 2 {
		t.Fatalf("expected full drawing history, got %d", len(acts))
	}
}

func TestSessionClearCanvas(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	_ = sessA.Handle(ctx, []byte(`{"type":"drawing_action","action_type":"draw","data":{"x":1}}`))
	mustFrame(t, sb, "drawing_action")

	if err := sessA.Handle(ctx, []byte(`{"type":"clear_canvas"}`)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared := mustFrame(t, sb, "clear_canvas")
	if cleared["room_id"] != "r1" || cleared["user_id"] != "u1" {
		t.Fatalf("unexpected clear frame: %v", cleared)
	}
	mustNoFrame(t, sa, "clear_canvas")

	actions, err := env.store.ListDrawingActions(ctx, "r1")
	if err != nil || len(actions) != 0 {
		t.Fatalf("drawing history should be empty: %v %v", actions, err)
	}

	c, sc := newTestClient("C", "u3")
	env.open(t, c, "r1")
	state := mustFrame(t, sc, "room_state")
	if acts := state["drawing_actions"].([]any); len(acts) != 0 {
		t.Fatalf("snapshot after clear should have no actions, got %v", acts)
	}
}

func TestSessionDrawingClearActionRoutesToClear(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, _ := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")

	if err := sessA.Handle(ctx, []byte(`{"type":"drawing_action","action_type":"clear"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	mustFrame(t, sb, "clear_canvas")
	if env.store.clears != 1 {
		t.Fatalf("expected one ClearDrawingActions, got %d", env.store.clears)
	}
}

func TestSessionStorageFailureSuppressesBroadcast(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")

	env.store.setFail(true)
	err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"lost"}`))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	reply := mustFrame(t, sa, "error")
	if reply["code"] != ErrCodeStorageUnavailable {
		t.Fatalf("unexpected error reply: %v", reply)
	}
	mustNoFrame(t, sb, "chat_message")
	if sessA.State() != StateJoined {
		t.Fatalf("session should stay joined, got %s", sessA.State())
	}

	env.store.setFail(false)
	if err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"back"}`)); err != nil {
		t.Fatalf("handle after recovery: %v", err)
	}
	mustFrame(t, sb, "chat_message")
}

func TestSessionMalformedInputIsIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, _ := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")

	for _, raw := range []string{
		`not json`,
		`{"type":"teleport"}`,
		`{"type":"chat_message"}`,
		`{"type":"drawing_action","action_type":"explode"}`,
		`[]`,
	} {
		if err := sessA.Handle(ctx, []byte(raw)); err != nil {
			t.Fatalf("handle %q: %v", raw, err)
		}
	}
	if sessA.State() != StateJoined {
		t.Fatalf("session should stay joined")
	}
	mustNoFrame(t, sb, "chat_message")
	if env.store.saves() != 0 {
		t.Fatalf("malformed input must not persist")
	}
}

func TestSessionLegacyEnvelopes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, _ := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")

	_ = sessA.Handle(ctx, []byte(`{"type":"message","message":{"content":"old"}}`))
	chat := mustFrame(t, sb, "chat_message")
	if chat["message"].(map[string]any)["content"] != "old" {
		t.Fatalf("unexpected chat: %v", chat)
	}

	_ = sessA.Handle(ctx, []byte(`{"type":"drawing","action":{"action_type":"change_color","data":{"color":"#f00"}}}`))
	draw := mustFrame(t, sb, "drawing_action")
	action := draw["action"].(map[string]any)
	if action["action_type"] != string(store.ActionTypeChangeColor) {
		t.Fatalf("unexpected action: %v", action)
	}
}

func TestSessionPresenceIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, _ := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")

	if err := sessA.Handle(ctx, []byte(`{"type":"presence_update","status":"typing","data":{"x":3}}`)); err != nil {
		t.Fatalf("presence: %v", err)
	}
	f := mustFrame(t, sb, "presence_update")
	if f["status"] != "typing" {
		t.Fatalf("unexpected presence: %v", f)
	}
	msgs, _ := env.store.ListMessages(ctx, "r1", 10)
	if len(msgs) != 0 {
		t.Fatalf("presence must not persist")
	}
}

func TestSessionAlreadyJoined(t *testing.T) {
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")

	dup, sdup := newTestClient("A2", "u1")
	sess := env.session(dup, "r1")
	if err := sess.Open(context.Background()); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if sess.State() != StateClosed {
		t.Fatalf("rejected session should be closed")
	}
	mustNoFrame(t, sa, "user_joined")
	mustNoFrame(t, sdup, "room_state")

	// Closing a rejected session must not announce a departure.
	sess.Close(context.Background())
	mustNoFrame(t, sa, "user_left")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, _ := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	sessA.Close(ctx)
	sessA.Close(ctx)
	mustFrame(t, sb, "user_left")
	mustNoFrame(t, sb, "user_left")

	if err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"late"}`)); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
}

func TestSessionEvictedPeerStillAnnouncesLeave(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	sessB := env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	sb.setFail(true)
	_ = sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"ping"}`))
	if _, ok := env.reg.RoomOf(b); ok {
		t.Fatalf("B should have been evicted")
	}

	// The transport notices the closed socket and closes the session.
	sessB.Close(ctx)
	left := mustFrame(t, sa, "user_left")
	if left["user_id"] != "u2" {
		t.Fatalf("unexpected user_left: %v", left)
	}
	mustNoFrame(t, sa, "user_left")
}

func TestSessionDrawingFailureSuppressesBroadcast(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	env.store.setFail(true)
	err := sessA.Handle(ctx, []byte(`{"type":"drawing_action","action_type":"draw","data":{"x":1}}`))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if reply := mustFrame(t, sa, "error"); reply["code"] != ErrCodeStorageUnavailable {
		t.Fatalf("unexpected error reply: %v", reply)
	}
	mustNoFrame(t, sb, "drawing_action")

	env.store.setFail(false)
	actions, _ := env.store.ListDrawingActions(ctx, "r1")
	if len(actions) != 0 {
		t.Fatalf("failed action must not be stored, got %d", len(actions))
	}
}

func TestSessionClearFailureSuppressesBroadcast(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	if err := sessA.Handle(ctx, []byte(`{"type":"drawing_action","action_type":"draw","data":{"x":1}}`)); err != nil {
		t.Fatalf("handle draw: %v", err)
	}
	mustFrame(t, sb, "drawing_action")

	env.store.setFail(true)
	err := sessA.Handle(ctx, []byte(`{"type":"clear_canvas"}`))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	mustFrame(t, sa, "error")
	mustNoFrame(t, sb, "clear_canvas")

	env.store.setFail(false)
	actions, _ := env.store.ListDrawingActions(ctx, "r1")
	if len(actions) != 1 {
		t.Fatalf("drawing history should survive a failed clear, got %d", len(actions))
	}
}

func TestSessionSenderCancelKeepsPeers(t *testing.T) {
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	sb.setDelay(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	defer cancel()

	if err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"hi"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if room, ok := env.reg.RoomOf(b); !ok || room != "r1" {
		t.Fatalf("healthy peer B was evicted")
	}
	if n := sb.closeCount(); n != 0 {
		t.Fatalf("healthy peer transport closed %d time(s)", n)
	}
	mustFrame(t, sb, "chat_message")
}

func TestSessionHandleAfterCloseRepliesNotJoined(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	sessA.Close(ctx)

	if err := sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"late"}`)); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if reply := mustFrame(t, sa, "error"); reply["code"] != ErrCodeNotJoined {
		t.Fatalf("unexpected reply: %v", reply)
	}
	if env.store.saves() != 0 {
		t.Fatalf("closed session must not persist")
	}
}

func TestSessionStaleCloseAfterReconnect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	a, sa := newTestClient("A", "u1")
	sessA := env.open(t, a, "r1")
	mustFrame(t, sa, "room_state")
	b, sb := newTestClient("B", "u2")
	sessOld := env.open(t, b, "r1")
	mustFrame(t, sb, "room_state")

	sb.setFail(true)
	_ = sessA.Handle(ctx, []byte(`{"type":"chat_message","content":"ping"}`))
	if _, ok := env.reg.RoomOf(b); ok {
		t.Fatalf("B should have been evicted")
	}

	// u2 reconnects before the old read loop notices the eviction.
	b2, sb2 := newTestClient("B2", "u2")
	env.open(t, b2, "r1")
	mustFrame(t, sb2, "room_state")
	mustFrame(t, sa, "user_joined")

	sessOld.Close(ctx)
	mustNoFrame(t, sa, "user_left")
	if holder, ok := env.reg.UserClient("u2"); !ok || holder != b2 {
		t.Fatalf("new connection should hold u2")
	}
}
