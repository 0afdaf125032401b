package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/store/memory"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeSender records frames. fail makes every Send error; block makes Send
// wait for ctx to expire; delay makes Send take that long unless ctx ends first.
type fakeSender struct {
	frames chan map[string]any

	mu     sync.Mutex
	fail   bool
	block  bool
	delay  time.Duration
	closed int
}

func newFakeSender() *fakeSender {
	return &fakeSender{frames: make(chan map[string]any, 64)}
}

func (f *fakeSender) Send(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	fail, block, delay := f.fail, f.block, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errBrokenPipe
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	f.frames <- m
	return nil
}

func (f *fakeSender) Close(string) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSender) setBlock(v bool) {
	f.mu.Lock()
	f.block = v
	f.mu.Unlock()
}

func (f *fakeSender) setDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *fakeSender) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestClient(id, userID string) (*Client, *fakeSender) {
	s := newFakeSender()
	return NewClient(id, userID, s), s
}

// mustFrame waits for the next frame of the given type, skipping others.
func mustFrame(t *testing.T, s *fakeSender, typ string) map[string]any {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-s.frames:
			if f["type"] == typ {
				return f
			}
		case <-deadline:
			t.Fatalf("expected frame type %q not received", typ)
			return nil
		}
	}
}

// mustNoFrame asserts nothing of the given type arrives within a short window.
func mustNoFrame(t *testing.T, s *fakeSender, typ string) {
	t.Helper()

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case f := <-s.frames:
			if f["type"] == typ {
				t.Fatalf("unexpected frame %v", f)
			}
		case <-deadline:
			return
		}
	}
}

// flakyStore wraps a memory store and fails selected operations.
type flakyStore struct {
	*memory.MemoryStore

	mu        sync.Mutex
	fail      bool
	saveCalls int
	clears    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: memory.New()}
}

func (s *flakyStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *flakyStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	s.mu.Lock()
	s.saveCalls++
	s.mu.Unlock()
	if s.failing() {
		return errors.New("db down")
	}
	return s.MemoryStore.SaveMessage(ctx, msg)
}

func (s *flakyStore) SaveDrawingAction(ctx context.Context, a *store.DrawingAction) error {
	if s.failing() {
		return errors.New("db down")
	}
	return s.MemoryStore.SaveDrawingAction(ctx, a)
}

func (s *flakyStore) ClearDrawingActions(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	if s.failing() {
		return errors.New("db down")
	}
	return s.MemoryStore.ClearDrawingActions(ctx, roomID)
}

func (s *flakyStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if s.failing() {
		return nil, errors.New("db down")
	}
	return s.MemoryStore.ListMessages(ctx, roomID, limit)
}

func (s *flakyStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

type testEnv struct {
	reg   *Registry
	bc    *Broadcaster
	store *flakyStore
}

func newTestEnv() *testEnv {
	reg := NewRegistry()
	return &testEnv{
		reg:   reg,
		bc:    NewBroadcaster(reg, 200*time.Millisecond, 4, nil, nil),
		store: newFlakyStore(),
	}
}

func (e *testEnv) session(c *Client, roomID string) *Session {
	return NewSession(c, roomID, SessionDeps{
		Registry:    e.reg,
		Broadcaster: e.bc,
		Store:       e.store,
	})
}

func (e *testEnv) open(t *testing.T, c *Client, roomID string) *Session {
	t.Helper()
	s := e.session(c, roomID)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open session %s: %v", c.ID, err)
	}
	return s
}
