// Package syncnotify implements the Sync Notifier (C9): it publishes
// sync_available events whenever the Content Store commits a new
// revision, so workers subscribed to the push channel can set their
// sync-pending flag (spec §4.9) instead of waiting on the polling
// fallback. The Bus abstraction and its Redis-backed implementation are
// adapted from the teacher's internal/realtime/bus package.
package syncnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

const workersTopic = "sync-notify:workers"

// NoopBus discards every publish and never forwards anything; used when no
// Redis address is configured so the primary still runs on the polling
// fallback alone (spec §4.9).
type NoopBus struct{}

func (NoopBus) Publish(context.Context, Event) error                 { return nil }
func (NoopBus) StartForwarder(context.Context, func(Event)) error    { return nil }
func (NoopBus) Close() error                                         { return nil }

// Event is the payload published on every Content Store commit.
type Event struct {
	Revision      string `json:"revision"`
	ShortRevision string `json:"short_revision"`
}

// Bus is the pub/sub transport the Notifier publishes on; satisfied by
// RedisBus, and narrow enough that a test double needs no network.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	StartForwarder(ctx context.Context, onEvent func(Event)) error
	Close() error
}

// Notifier fans out sync_available events to connected workers and lets
// the content store's commit hook publish without knowing about transport.
type Notifier struct {
	log *logger.Logger
	bus Bus
}

func New(log *logger.Logger, bus Bus) *Notifier {
	return &Notifier{log: log.With("component", "syncnotify"), bus: bus}
}

// OnCommit matches contentstore.Subscriber's signature so it can be passed
// directly to Store.Subscribe; every commit triggers a push notification.
// Publish failures are logged, never fatal — the polling fallback in spec
// §4.9 covers a down or disconnected bus.
func (n *Notifier) OnCommit(revision string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	short := revision
	if len(short) > 8 {
		short = short[:8]
	}
	if err := n.bus.Publish(ctx, Event{Revision: revision, ShortRevision: short}); err != nil {
		n.log.Warn("failed to publish sync_available event", "error", err, "revision", revision)
	}
}

// RedisBus publishes and subscribes sync_available events over a single
// Redis pub/sub channel. Nothing in internal/server or internal/workerrt
// calls StartForwarder, so workers do not receive these events; they learn
// of new revisions through check-in's sync_needed flag and revision polling.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(log *logger.Logger, addr string) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("syncnotify: redis address required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("syncnotify: redis ping: %w", err)
	}

	return &RedisBus{
		log:     log.With("component", "syncnotify.redis"),
		rdb:     rdb,
		channel: workersTopic,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(Event)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("syncnotify: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("bad sync_available payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
