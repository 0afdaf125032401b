package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wireboard-server/internal/metrics"
)

const (
	defaultSendTimeout = 5 * time.Second
	defaultFanout      = 16
)

// Report summarizes one fan-out.
type Report struct {
	Delivered []string // client IDs that received the frame
	Evicted   []string // client IDs removed after a failed send
}

// Broadcaster delivers events to every member of a room. Peers whose send
// fails or times out are evicted from the registry and closed.
type Broadcaster struct {
	reg         *Registry
	sendTimeout time.Duration
	concurrency int
	metrics     *metrics.Metrics
	log         *zerolog.Logger
}

// NewBroadcaster builds a broadcaster over reg. Zero values pick defaults;
// metrics may be nil.
func NewBroadcaster(reg *Registry, sendTimeout time.Duration, concurrency int, m *metrics.Metrics, logger *zerolog.Logger) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if concurrency <= 0 {
		concurrency = defaultFanout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{
		reg:         reg,
		sendTimeout: sendTimeout,
		concurrency: concurrency,
		metrics:     m,
		log:         logger,
	}
}

// Broadcast encodes ev once and sends it to all current members of roomID
// except the excluded clients. Sends run concurrently, so one slow peer
// never delays the others by more than the send timeout. Cancelling ctx does
// not abort sends already started or queued.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID string, ev *Event, exclude ...*Client) Report {
	var report Report

	frame, err := EncodeEvent(ev)
	if err != nil {
		b.log.Error().Err(err).Str("room_id", roomID).Str("event", ev.Kind.String()).Msg("broadcast encode failed")
		return report
	}

	members := b.reg.MembersOf(roomID)
	targets := members[:0]
	for _, c := range members {
		if !contains(exclude, c) {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		b.metrics.Broadcast(ev.Kind.String(), 0, 0)
		return report
	}

	var (
		mu     sync.Mutex
		failed []*Client
	)
	// Peer sends outlive the originating request; only the per-peer timeout
	// may fail them.
	base := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for _, c := range targets {
		c := c
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(base, b.sendTimeout)
			defer cancel()

			err := c.Send(sendCtx, frame)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.log.Warn().Err(err).Str("room_id", roomID).Str("client_id", c.ID).Str("user_id", c.UserID).Msg("send failed, evicting peer")
				failed = append(failed, c)
				return nil
			}
			report.Delivered = append(report.Delivered, c.ID)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		for _, c := range b.reg.Evict(roomID, failed...) {
			report.Evicted = append(report.Evicted, c.ID)
			if err := c.Close("send failed"); err != nil {
				b.log.Debug().Err(err).Str("client_id", c.ID).Msg("close evicted peer")
			}
		}
	}

	b.metrics.Broadcast(ev.Kind.String(), len(report.Delivered), len(report.Evicted))
	return report
}

// SendTo delivers ev to a single client, bounded by the send timeout.
func (b *Broadcaster) SendTo(ctx context.Context, c *Client, ev *Event) error {
	frame, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	return c.Send(sendCtx, frame)
}

func contains(list []*Client, c *Client) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
