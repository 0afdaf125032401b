// Package upload implements the out-of-band file side channel: a file is
// stored in object storage and the caller gets back a URL it can share in a
// file chat message.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vovakirdan/wireboard-server/internal/utils"
)

var (
	// ErrTypeNotAllowed is returned for file extensions outside the allow-list.
	ErrTypeNotAllowed = errors.New("file type not allowed")
	// ErrTooLarge is returned when the file exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrMissingName is returned when the upload carries no filename.
	ErrMissingName = errors.New("no filename provided")
	// ErrInvalidRoom is returned for room IDs that cannot form an object key.
	ErrInvalidRoom = errors.New("invalid room id")
	// ErrInvalidKey is returned by Link for keys this service never issues.
	ErrInvalidKey = errors.New("invalid object key")
)

// FilesPath is the route prefix that resolves stored objects. File URLs handed
// to clients live under it so they stay valid after any signed URL expires.
const FilesPath = "/api/files/"

// ObjectStorage is the blob backend uploads are written to.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// File describes one upload request.
type File struct {
	Name        string
	Size        int64
	ContentType string
	RoomID      string
	UserID      string
	Body        io.Reader
}

// Result is returned to the uploader.
type Result struct {
	FileURL  string `json:"file_url"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
}

// Options configures a Service.
type Options struct {
	MaxBytes    int64
	URLExpiry   time.Duration
	AllowedExts []string
}

// Service validates uploads and stores them in object storage.
type Service struct {
	storage  ObjectStorage
	maxBytes int64
	expiry   time.Duration
	allowed  map[string]struct{}
}

// NewService builds an upload service over storage.
func NewService(storage ObjectStorage, opts Options) *Service {
	allowed := make(map[string]struct{}, len(opts.AllowedExts))
	for _, ext := range opts.AllowedExts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	return &Service{
		storage:  storage,
		maxBytes: opts.MaxBytes,
		expiry:   opts.URLExpiry,
		allowed:  allowed,
	}
}

// MaxBytes returns the configured size limit (0 means unlimited).
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Allowed reports whether filename has a permitted extension.
func (s *Service) Allowed(filename string) bool {
	_, ok := s.allowed[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Upload validates f, stores it under rooms/{room}/files/{id}{ext} and
// returns a stable file URL under FilesPath.
func (s *Service) Upload(ctx context.Context, f File) (*Result, error) {
	if f.Name == "" {
		return nil, ErrMissingName
	}
	if strings.ContainsAny(f.RoomID, `/\`) || f.RoomID == "." || f.RoomID == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, f.RoomID)
	}
	if !s.Allowed(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotAllowed, f.Name)
	}
	if s.maxBytes > 0 && f.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTooLarge, f.Size, s.maxBytes)
	}

	key := ObjectKey(f.RoomID, f.Name)
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.Put(ctx, key, f.Body, f.Size, contentType); err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return &Result{
		FileURL:  FileURL(key),
		Key:      key,
		Filename: f.Name,
		FileSize: f.Size,
		FileType: contentType,
	}, nil
}

// Link resolves a key issued by Upload to a signed download URL that expires
// after the configured URL expiry.
func (s *Service) Link(ctx context.Context, key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	u, err := s.storage.URL(ctx, key, s.expiry)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return u, nil
}

// FileURL returns the stable URL for key, each path segment escaped.
func FileURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return FilesPath + strings.Join(parts, "/")
}

// ValidKey reports whether key has the shape ObjectKey produces.
func ValidKey(key string) bool {
	if key == "" || path.Clean(key) != key {
		return false
	}
	parts := strings.Split(key, "/")
	switch {
	case len(parts) == 2 && parts[0] == "uploads":
		return parts[1] != ""
	case len(parts) == 4 && parts[0] == "rooms" && parts[2] == "files":
		return parts[1] != "" && parts[3] != ""
	default:
		return false
	}
}

// ObjectKey returns a fresh object key for a file in roomID. Files uploaded
// without a room go under uploads/.
func ObjectKey(roomID, filename string) string {
	name := utils.NewID() + strings.ToLower(filepath.Ext(filename))
	if roomID == "" {
		return path.Join("uploads", name)
	}
	return path.Join("rooms", roomID, "files", name)
}
