package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const slidesChangedChannel = "slides:changed"

// Notifier announces slide changes to this instance right away and to every other
// instance over Redis pub/sub. The payload is the origin instance id, so an instance
// ignores its own announcements.
type Notifier struct {
	rdb        *goredis.Client
	local      domain.ChangeNotifier
	instanceID string
	metrics    *metrics.NotifierMetrics
}

var _ domain.ChangeNotifier = (*Notifier)(nil)

func NewNotifier(rdb *goredis.Client, local domain.ChangeNotifier, instanceID string, m *metrics.NotifierMetrics) *Notifier {
	if m == nil {
		m = metrics.NewNotifierMetrics(nil)
	}
	return &Notifier{rdb: rdb, local: local, instanceID: instanceID, metrics: m}
}

// SlidesChanged triggers the local publish, then tells the other instances. A failed
// Redis publish is logged; local totems are already being served.
func (n *Notifier) SlidesChanged(ctx context.Context) {
	n.local.SlidesChanged(ctx)
	n.metrics.Sent.WithLabelValues("local", "ok").Inc()

	if err := n.rdb.Publish(ctx, slidesChangedChannel, n.instanceID).Err(); err != nil {
		n.metrics.Sent.WithLabelValues("redis", "error").Inc()
		slog.WarnContext(ctx, "Failed to announce slide change to other instances", "error", err)
		return
	}
	n.metrics.Sent.WithLabelValues("redis", "ok").Inc()
}

// Run relays announcements from other instances to the local notifier until ctx is
// cancelled. The subscription is confirmed before Run enters its loop.
func (n *Notifier) Run(ctx context.Context) error {
	pubsub := n.rdb.Subscribe(ctx, slidesChangedChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", slidesChangedChannel, err)
	}
	slog.Info("Subscribed to slide changes", "channel", slidesChangedChannel, "instance_id", n.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(ctx, msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Notifier) handle(ctx context.Context, origin string) {
	if origin == n.instanceID {
		return
	}
	n.metrics.Received.Inc()
	slog.DebugContext(ctx, "Slide change announced by another instance", "origin", origin)
	n.local.SlidesChanged(ctx)
}
