package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wireboard-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080/ws", "WebSocket base address")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dial := func(user string) (*websocket.Conn, error) {
		url := strings.TrimRight(*base, "/") + "/" + *room + "/" + user
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", user, err)
		}
		return conn, nil
	}

	sender, err := dial("smoke-sender")
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")
	if err := expect(ctx, sender, proto.TypeRoomState); err != nil {
		return err
	}

	listener, err := dial("smoke-listener")
	if err != nil {
		return err
	}
	defer listener.Close(websocket.StatusNormalClosure, "bye")
	if err := expect(ctx, listener, proto.TypeRoomState); err != nil {
		return err
	}
	if err := expect(ctx, sender, proto.TypeUserJoined); err != nil {
		return err
	}

	if err := wsjson.Write(ctx, sender, map[string]any{"type": proto.TypeChatMessage, "content": *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := expect(ctx, listener, proto.TypeChatMessage); err != nil {
		return err
	}

	fmt.Println("smoke test passed")
	return nil
}

// expect prints incoming frames until one of the given type arrives.
func expect(ctx context.Context, conn *websocket.Conn, typ string) error {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return fmt.Errorf("waiting for %s: %w", typ, err)
		}
		fmt.Printf("<- %s\n", raw)

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if head.Type == proto.TypeError {
			return fmt.Errorf("server error: %s", raw)
		}
		if head.Type == typ {
			return nil
		}
	}
}
