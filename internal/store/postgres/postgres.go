package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

// Schema creates the tables used by PostgresStore. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	room_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL,
	file_url     TEXT,
	file_size    BIGINT,
	file_type    TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS drawing_actions (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	action_type TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_drawing_actions_room ON drawing_actions(room_id, created_at);
`

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to url, verifies the connection and applies Schema.
func New(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks the pool.
func (p *PostgresStore) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close releases all pooled connections.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// SaveMessage persists a message to storage.
func (p *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, user_id, content, message_type, file_url, file_size, file_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.RoomID, msg.UserID, msg.Content, string(msg.Type),
		msg.FileURL, msg.FileSize, msg.FileType, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages of a room, newest first.
func (p *PostgresStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, user_id, content, message_type, file_url, file_size, file_type, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var (
			msg     store.Message
			msgType string
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msgType,
			&msg.FileURL, &msg.FileSize, &msg.FileType, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = store.MessageType(msgType)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// SaveDrawingAction persists a drawing action.
func (p *PostgresStore) SaveDrawingAction(ctx context.Context, action *store.DrawingAction) error {
	data, err := json.Marshal(action.Data)
	if err != nil {
		return fmt.Errorf("marshal action data: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO drawing_actions (id, room_id, user_id, action_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, action.ID, action.RoomID, action.UserID, string(action.Type), data, action.Timestamp)
	if err != nil {
		return fmt.Errorf("insert drawing action: %w", err)
	}
	return nil
}

// ListDrawingActions returns the full drawing history of a room, oldest first.
func (p *PostgresStore) ListDrawingActions(ctx context.Context, roomID string) ([]*store.DrawingAction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, user_id, action_type, data, created_at
		FROM drawing_actions
		WHERE room_id = $1
		ORDER BY created_at ASC, seq ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query drawing actions: %w", err)
	}
	defer rows.Close()

	var actions []*store.DrawingAction
	for rows.Next() {
		var (
			action     store.DrawingAction
			actionType string
			data       []byte
		)
		if err := rows.Scan(&action.ID, &action.RoomID, &action.UserID, &actionType, &data, &action.Timestamp); err != nil {
			return nil, fmt.Errorf("scan drawing action: %w", err)
		}
		if err := json.Unmarshal(data, &action.Data); err != nil {
			return nil, fmt.Errorf("decode action data %s: %w", action.ID, err)
		}
		action.Type = store.ActionType(actionType)
		action.Timestamp = action.Timestamp.UTC()
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}

// ClearDrawingActions purges the drawing history of a room.
func (p *PostgresStore) ClearDrawingActions(ctx context.Context, roomID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM drawing_actions WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("delete drawing actions: %w", err)
	}
	return nil
}

// CreateRoom records a room; an existing room keeps its creation time.
func (p *PostgresStore) CreateRoom(ctx context.Context, roomID, name string) (*store.Room, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at
	`, roomID, name, time.Now().UTC())

	var room store.Room
	if err := row.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("upsert room: %w", err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	return &room, nil
}

// ListRooms lists all rooms, most recently created first.
func (p *PostgresStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, created_at FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = room.CreatedAt.UTC()
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

var _ store.Store = (*PostgresStore)(nil)
