package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/core"
	"github.com/vovakirdan/wireboard-server/internal/utils"
)

const maxIDLength = 128

// WSOptions tunes per-connection transport behaviour.
type WSOptions struct {
	MaxMessageBytes   int64
	PingInterval      time.Duration
	MessagesPerMinute int
	AllowedOrigins    []string
}

// WSHandler upgrades /ws/:room_id/:user_id and drives a core.Session per connection.
type WSHandler struct {
	deps           core.SessionDeps
	opts           WSOptions
	originPatterns []string
	log            *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps core.SessionDeps, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		deps:           deps,
		opts:           opts,
		originPatterns: originPatterns(opts.AllowedOrigins),
		log:            logger,
	}
}

// wsPeer adapts a websocket connection to core.Sender.
type wsPeer struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
	log    *zerolog.Logger
}

func (p *wsPeer) Send(ctx context.Context, frame []byte) error {
	return p.conn.Write(ctx, websocket.MessageText, frame)
}

// Close tears the connection down without a close handshake. The read loop
// then fails and the handler runs the session's disconnect path.
func (p *wsPeer) Close(reason string) error {
	var err error
	p.once.Do(func() {
		p.log.Debug().Str("reason", reason).Msg("closing ws peer")
		p.cancel()
		err = p.conn.CloseNow()
	})
	return err
}

// Handle serves GET /ws/:room_id/:user_id.
func (h *WSHandler) Handle(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.Param("user_id")
	if !validID(roomID) || !validID(userID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room_id and user_id are required"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	logger := h.log.With().Str("room_id", roomID).Str("user_id", userID).Logger()
	peer := &wsPeer{conn: conn, cancel: cancel, log: &logger}
	client := core.NewClient(utils.NewID(), userID, peer)
	logger = logger.With().Str("client_id", client.ID).Logger()

	sess := core.NewSession(client, roomID, h.deps)
	if err := sess.Open(ctx); err != nil {
		switch {
		case errors.Is(err, core.ErrAlreadyJoined):
			logger.Info().Msg("rejecting duplicate connection")
			_ = sess.Reject(ctx, core.ErrCodeAlreadyJoined, "user is already connected")
			conn.Close(websocket.StatusPolicyViolation, "already joined")
			return
		case errors.Is(err, core.ErrStorageUnavailable):
			// Joined without a snapshot; the client already got an error envelope.
		default:
			logger.Warn().Err(err).Msg("open session")
			sess.Close(ctx)
			conn.Close(websocket.StatusInternalError, "open session failed")
			return
		}
	}

	limiter := newRateLimiter(h.opts.MessagesPerMinute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, limiter, &logger)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	sess.Close(ctx)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, limiter *rateLimiter, logger *zerolog.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			logger.Debug().Msg("ignoring binary frame")
			continue
		}
		if !limiter.allow() {
			if err := sess.Reject(ctx, core.ErrCodeRateLimited, "rate limit exceeded"); err != nil {
				return err
			}
			continue
		}

		if err := sess.Handle(ctx, data); err != nil {
			if errors.Is(err, core.ErrNotJoined) {
				return nil
			}
			logger.Warn().Err(err).Msg("handle inbound")
		}
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.opts.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength
}

// originPatterns turns configured origins into host patterns for websocket.Accept.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
