package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wireboard-server/internal/proto"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080/ws", "WebSocket base address")
	user := flag.String("user", "cli-user", "user id")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := strings.TrimRight(*base, "/") + "/" + *room + "/" + *user
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s in room %s\n", *base, *user, *room)
	fmt.Println("Type messages and press Enter to send. /clear wipes the canvas, /status <text> sets presence. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// outbound is the union of the server's event fields this client prints.
type outbound struct {
	Type           string                 `json:"type"`
	RoomID         string                 `json:"room_id"`
	UserID         string                 `json:"user_id"`
	Status         string                 `json:"status"`
	Code           string                 `json:"code"`
	Message        json.RawMessage        `json:"message"`
	Action         *store.DrawingAction   `json:"action"`
	Messages       []*store.Message       `json:"messages"`
	DrawingActions []*store.DrawingAction `json:"drawing_actions"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var ev outbound
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch ev.Type {
		case proto.TypeRoomState:
			fmt.Printf("[room %s] %d recent messages, %d drawing actions\n", ev.RoomID, len(ev.Messages), len(ev.DrawingActions))
			for i := len(ev.Messages) - 1; i >= 0; i-- {
				m := ev.Messages[i]
				fmt.Printf("  %s: %s\n", m.UserID, m.Content)
			}
		case proto.TypeChatMessage:
			var m store.Message
			if err := json.Unmarshal(ev.Message, &m); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", m.UserID, m.Content)
		case proto.TypeDrawingAction:
			if ev.Action != nil {
				fmt.Printf("%s drew (%s)\n", ev.UserID, ev.Action.Type)
			}
		case proto.TypeClearCanvas:
			fmt.Printf("%s cleared the canvas\n", ev.UserID)
		case proto.TypeUserJoined:
			fmt.Printf("[room %s] %s joined\n", ev.RoomID, ev.UserID)
		case proto.TypeUserLeft:
			fmt.Printf("[room %s] %s left\n", ev.RoomID, ev.UserID)
		case proto.TypePresenceUpdate:
			fmt.Printf("%s is %s\n", ev.UserID, ev.Status)
		case proto.TypeError:
			var text string
			_ = json.Unmarshal(ev.Message, &text)
			fmt.Printf("error %s: %s\n", ev.Code, text)
		default:
			fmt.Printf("event=%s\n", ev.Type)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var env map[string]any
			switch {
			case text == "/clear":
				env = map[string]any{"type": proto.TypeClearCanvas}
			case strings.HasPrefix(text, "/status "):
				env = map[string]any{"type": proto.TypePresenceUpdate, "status": strings.TrimPrefix(text, "/status ")}
			default:
				env = map[string]any{"type": proto.TypeChatMessage, "content": text}
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
