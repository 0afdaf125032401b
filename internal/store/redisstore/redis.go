// Package redisstore implements the persistence gateway on Redis lists and hashes.
//
// Keys (all under a configurable prefix):
//
//	{prefix}room:{id}:messages   list, newest message at index 0
//	{prefix}room:{id}:drawing    list, oldest action at index 0
//	{prefix}rooms                hash, room id -> JSON summary
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vovakirdan/wireboard-server/internal/store"
)

// RedisStore implements store.Store for Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
}

// Options configures a RedisStore.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// MaxMessages caps each room's message list; zero keeps everything.
	MaxMessages int64
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, opts Options) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: opts.Prefix, maxLen: opts.MaxMessages}, nil
}

func (s *RedisStore) messagesKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":messages"
}

func (s *RedisStore) drawingKey(roomID string) string {
	return s.prefix + "room:" + roomID + ":drawing"
}

func (s *RedisStore) roomsKey() string { return s.prefix + "rooms" }

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Close shuts down the redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

// SaveMessage prepends msg to its room list.
func (s *RedisStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := s.messagesKey(msg.RoomID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		if s.maxLen > 0 {
			pipe.LTrim(ctx, key, 0, s.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages of a room, newest first.
func (s *RedisStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	raws, err := s.rdb.LRange(ctx, s.messagesKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("range messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(raws))
	for _, raw := range raws {
		var msg store.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

// SaveDrawingAction appends action to its room list.
func (s *RedisStore) SaveDrawingAction(ctx context.Context, action *store.DrawingAction) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal drawing action: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.drawingKey(action.RoomID), raw).Err(); err != nil {
		return fmt.Errorf("push drawing action: %w", err)
	}
	return nil
}

// ListDrawingActions returns the full drawing history of a room, oldest first.
func (s *RedisStore) ListDrawingActions(ctx context.Context, roomID string) ([]*store.DrawingAction, error) {
	raws, err := s.rdb.LRange(ctx, s.drawingKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range drawing actions: %w", err)
	}

	actions := make([]*store.DrawingAction, 0, len(raws))
	for _, raw := range raws {
		var action store.DrawingAction
		if err := json.Unmarshal([]byte(raw), &action); err != nil {
			return nil, fmt.Errorf("decode drawing action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, nil
}

// ClearDrawingActions deletes the drawing list of a room.
func (s *RedisStore) ClearDrawingActions(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, s.drawingKey(roomID)).Err(); err != nil {
		return fmt.Errorf("delete drawing actions: %w", err)
	}
	return nil
}

// CreateRoom stores a room summary; an existing room keeps its creation time.
func (s *RedisStore) CreateRoom(ctx context.Context, roomID, name string) (*store.Room, error) {
	room := store.Room{ID: roomID, Name: name, CreatedAt: time.Now().UTC()}

	existing, err := s.rdb.HGet(ctx, s.roomsKey(), roomID).Result()
	switch {
	case err == nil:
		var prev store.Room
		if jsonErr := json.Unmarshal([]byte(existing), &prev); jsonErr == nil {
			room.CreatedAt = prev.CreatedAt
		}
	case err != redis.Nil:
		return nil, fmt.Errorf("get room: %w", err)
	}

	raw, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.roomsKey(), roomID, raw).Err(); err != nil {
		return nil, fmt.Errorf("set room: %w", err)
	}
	return &room, nil
}

// ListRooms lists all rooms, most recently created first.
func (s *RedisStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	raws, err := s.rdb.HVals(ctx, s.roomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]*store.Room, 0, len(raws))
	for _, raw := range raws {
		var room store.Room
		if err := json.Unmarshal([]byte(raw), &room); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

var _ store.Store = (*RedisStore)(nil)
