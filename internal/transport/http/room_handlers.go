package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/core"
	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/utils"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 500
)

// RoomHandlers provides HTTP handlers for room and history endpoints.
type RoomHandlers struct {
	store    store.Store
	registry *core.Registry
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, reg *core.Registry, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store:    st,
		registry: reg,
		log:      logger,
	}
}

// CreateRoomRequest represents the create room request body.
// ID is optional; a random one is generated when empty.
type CreateRoomRequest struct {
	ID   string `json:"id" binding:"omitempty,max=128"`
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CreatedAt   string   `json:"created_at"`
	ActiveUsers []string `json:"active_users"`
}

// ActiveRoomResponse describes a room with live connections.
type ActiveRoomResponse struct {
	ID    string   `json:"id"`
	Users []string `json:"users"`
}

// CreateRoom handles room creation. Creating an existing ID renames it.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.ID == "" {
		req.ID = utils.NewID()
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", req.ID).Msg("failed to create room")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("room_name", room.Name).Msg("room created")
	c.JSON(http.StatusCreated, h.roomResponse(room, nil))
}

// ListRooms lists durable rooms, newest first, with their live members.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}

	active := make(map[string][]string)
	for _, info := range h.registry.Rooms() {
		active[info.Name] = info.Users
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, h.roomResponse(room, active[room.ID]))
	}
	c.JSON(http.StatusOK, gin.H{"rooms": response})
}

// ActiveRooms lists rooms that currently have connections.
// GET /api/rooms/active
func (h *RoomHandlers) ActiveRooms(c *gin.Context) {
	infos := h.registry.Rooms()
	response := make([]ActiveRoomResponse, 0, len(infos))
	for _, info := range infos {
		response = append(response, ActiveRoomResponse{ID: info.Name, Users: info.Users})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": response})
}

// Messages returns recent messages of a room, newest first.
// GET /api/rooms/:room_id/messages?limit=N
func (h *RoomHandlers) Messages(c *gin.Context) {
	roomID := c.Param("room_id")

	limit := defaultMessagesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMessagesLimit)
	}

	messages, err := h.store.ListMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}
	if messages == nil {
		messages = []*store.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// DrawingActions returns the full drawing history of a room, oldest first.
// GET /api/rooms/:room_id/drawing-actions
func (h *RoomHandlers) DrawingActions(c *gin.Context) {
	roomID := c.Param("room_id")

	actions, err := h.store.ListDrawingActions(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list drawing actions")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}
	if actions == nil {
		actions = []*store.DrawingAction{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h *RoomHandlers) roomResponse(room *store.Room, users []string) RoomResponse {
	if users == nil {
		users = []string{}
	}
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		CreatedAt:   room.CreatedAt.UTC().Format(time.RFC3339),
		ActiveUsers: users,
	}
}
