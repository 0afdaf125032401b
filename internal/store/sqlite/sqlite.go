package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

// Schema creates the tables used by SQLiteStore. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	room_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL,
	file_url     TEXT,
	file_size    INTEGER,
	file_type    TEXT,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS drawing_actions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	action_type TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_drawing_actions_room ON drawing_actions(room_id, created_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, room_id, user_id, content, message_type, file_url, file_size, file_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.UserID, msg.Content, string(msg.Type),
		msg.FileURL, msg.FileSize, msg.FileType,
		msg.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages of a room, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	query := `
		SELECT id, room_id, user_id, content, message_type, file_url, file_size, file_type, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var (
			msg      store.Message
			msgType  string
			fileURL  sql.NullString
			fileSize sql.NullInt64
			fileType sql.NullString
			created  int64
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msgType,
			&fileURL, &fileSize, &fileType, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = store.MessageType(msgType)
		msg.Timestamp = time.Unix(0, created).UTC()
		if fileURL.Valid {
			msg.FileURL = &fileURL.String
		}
		if fileSize.Valid {
			msg.FileSize = &fileSize.Int64
		}
		if fileType.Valid {
			msg.FileType = &fileType.String
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ==== DrawingStore implementation ====

// SaveDrawingAction persists a drawing action.
func (s *SQLiteStore) SaveDrawingAction(ctx context.Context, action *store.DrawingAction) error {
	data, err := json.Marshal(action.Data)
	if err != nil {
		return fmt.Errorf("marshal action data: %w", err)
	}

	query := `
		INSERT INTO drawing_actions (id, room_id, user_id, action_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		action.ID, action.RoomID, action.UserID, string(action.Type), string(data),
		action.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert drawing action: %w", err)
	}
	return nil
}

// ListDrawingActions returns the full drawing history of a room, oldest first.
func (s *SQLiteStore) ListDrawingActions(ctx context.Context, roomID string) ([]*store.DrawingAction, error) {
	query := `
		SELECT id, room_id, user_id, action_type, data, created_at
		FROM drawing_actions
		WHERE room_id = ?
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query drawing actions: %w", err)
	}
	defer rows.Close()

	var actions []*store.DrawingAction
	for rows.Next() {
		var (
			action     store.DrawingAction
			actionType string
			data       string
			created    int64
		)
		if err := rows.Scan(&action.ID, &action.RoomID, &action.UserID, &actionType, &data, &created); err != nil {
			return nil, fmt.Errorf("scan drawing action: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &action.Data); err != nil {
			return nil, fmt.Errorf("decode action data %s: %w", action.ID, err)
		}
		action.Type = store.ActionType(actionType)
		action.Timestamp = time.Unix(0, created).UTC()
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// ClearDrawingActions purges the drawing history of a room.
func (s *SQLiteStore) ClearDrawingActions(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drawing_actions WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete drawing actions: %w", err)
	}
	return nil
}

// ==== RoomStore implementation ====

// CreateRoom records a room; an existing room keeps its creation time.
func (s *SQLiteStore) CreateRoom(ctx context.Context, roomID, name string) (*store.Room, error) {
	query := `
		INSERT INTO rooms (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	if _, err := s.db.ExecContext(ctx, query, roomID, name, time.Now().UTC().UnixNano()); err != nil {
		return nil, fmt.Errorf("upsert room: %w", err)
	}
	return s.getRoom(ctx, roomID)
}

func (s *SQLiteStore) getRoom(ctx context.Context, roomID string) (*store.Room, error) {
	var (
		room    store.Room
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM rooms WHERE id = ?`, roomID).
		Scan(&room.ID, &room.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.CreatedAt = time.Unix(0, created).UTC()
	return &room, nil
}

// ListRooms lists all rooms, most recently created first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var (
			room    store.Room
			created int64
		)
		if err := rows.Scan(&room.ID, &room.Name, &created); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = time.Unix(0, created).UTC()
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
