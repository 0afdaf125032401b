package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/config"
	"github.com/vovakirdan/wireboard-server/internal/core"
	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/store/sqlite"
	"github.com/vovakirdan/wireboard-server/internal/upload"
)

type testServer struct {
	*httptest.Server
	store    store.Store
	registry *core.Registry
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.SendTimeout = time.Second
	cfg.PingInterval = 0
	return &cfg
}

// startTestServer runs the full router over an in-memory SQLite store.
func startTestServer(t *testing.T, uploads *upload.Service) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	cfg := testConfig()
	reg := core.NewRegistry()
	svc := Services{
		Registry:    reg,
		Broadcaster: core.NewBroadcaster(reg, cfg.SendTimeout, cfg.BroadcastConcurrency, nil, &logger),
		Store:       st,
		Uploads:     uploads,
	}

	server := NewServer(svc, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: st, registry: reg}
}

func (ts *testServer) dial(t *testing.T, ctx context.Context, roomID, userID string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(ts.URL, "http", "ws", 1) + "/ws/" + roomID + "/" + userID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s/%s: %v", roomID, userID, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

type frame map[string]any

// readFrame reads frames until one of the given type arrives.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) frame {
	t.Helper()

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		if f["type"] == typ {
			return f
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
