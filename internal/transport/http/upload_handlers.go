package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/upload"
)

// UploadHandlers serves the file upload side channel.
type UploadHandlers struct {
	uploads *upload.Service
	log     *zerolog.Logger
}

// NewUploadHandlers creates upload handlers. uploads may be nil when disabled.
func NewUploadHandlers(uploads *upload.Service, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{uploads: uploads, log: logger}
}

// UploadResponse is returned after a successful upload. The file_url goes
// into a chat_message with message_type "file".
type UploadResponse struct {
	Success bool `json:"success"`
	*upload.Result
}

// Upload accepts a multipart form with file, room_id and user_id.
// POST /api/upload
func (h *UploadHandlers) Upload(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "uploads are disabled"})
		return
	}

	if limit := h.uploads.MaxBytes(); limit > 0 {
		// Allow some slack for the multipart envelope; the part size is checked below.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}
	header, err := c.FormFile("file")
	if err != nil {
		h.log.Debug().Err(err).Msg("invalid upload form")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return
	}
	roomID := c.PostForm("room_id")
	userID := c.PostForm("user_id")
	if roomID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_id and user_id are required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("open uploaded file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer f.Close()

	h.log.Info().
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Str("room_id", roomID).
		Str("user_id", userID).
		Msg("file upload request")

	res, err := h.uploads.Upload(c.Request.Context(), upload.File{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		RoomID:      roomID,
		UserID:      userID,
		Body:        f,
	})
	switch {
	case errors.Is(err, upload.ErrMissingName),
		errors.Is(err, upload.ErrTypeNotAllowed),
		errors.Is(err, upload.ErrInvalidRoom),
		errors.Is(err, upload.ErrTooLarge):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("file upload failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "upload failed"})
		return
	}

	c.JSON(http.StatusOK, UploadResponse{Success: true, Result: res})
}

// File redirects to a freshly signed download URL for a stored object.
// GET /api/files/*key
func (h *UploadHandlers) File(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "uploads are disabled"})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	link, err := h.uploads.Link(c.Request.Context(), key)
	switch {
	case errors.Is(err, upload.ErrInvalidKey):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	case err != nil:
		h.log.Error().Err(err).Str("key", key).Msg("sign file link")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "file storage unavailable"})
		return
	}

	c.Redirect(http.StatusFound, link)
}
