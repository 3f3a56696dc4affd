package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
)

const (
	defaultChannel    = "approvals:notifications"
	defaultInboxLimit = 100
	defaultInboxTTL   = 30 * 24 * time.Hour
)

// RedisDispatcher publishes notifications on a Redis channel for the delivery
// workers (email, push) and keeps a capped per-recipient inbox for in-app display.
type RedisDispatcher struct {
	client     *redis.Client
	channel    string
	inboxLimit int64
	inboxTTL   time.Duration
}

var _ ports.NotificationDispatcher = (*RedisDispatcher)(nil)

// RedisOption configures a RedisDispatcher.
type RedisOption func(*RedisDispatcher)

// WithChannel sets the pub/sub channel. Default is "approvals:notifications".
func WithChannel(channel string) RedisOption {
	return func(d *RedisDispatcher) {
		if channel != "" {
			d.channel = channel
		}
	}
}

// WithInboxLimit caps how many notifications are kept per recipient.
func WithInboxLimit(limit int64) RedisOption {
	return func(d *RedisDispatcher) {
		d.inboxLimit = limit
	}
}

// WithInboxTTL sets how long an idle inbox is kept. Zero keeps it forever.
func WithInboxTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDispatcher) {
		d.inboxTTL = ttl
	}
}

func NewRedisDispatcher(client *redis.Client, opts ...RedisOption) *RedisDispatcher {
	d := &RedisDispatcher{
		client:     client,
		channel:    defaultChannel,
		inboxLimit: defaultInboxLimit,
		inboxTTL:   defaultInboxTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch publishes n and, when it is meant for the in-app channel, stores it in the recipient's inbox.
func (d *RedisDispatcher) Dispatch(ctx context.Context, n ports.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := d.inboxKey(n.RecipientID)
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if n.HasChannel(models.ChannelInApp) {
			pipe.LPush(ctx, key, payload)
			if d.inboxLimit > 0 {
				pipe.LTrim(ctx, key, 0, d.inboxLimit-1)
			}
			if d.inboxTTL > 0 {
				pipe.Expire(ctx, key, d.inboxTTL)
			}
		}
		pipe.Publish(ctx, d.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification for %s: %w", n.RecipientID, err)
	}
	return nil
}

// Inbox returns up to limit of the recipient's most recent notifications, newest first.
func (d *RedisDispatcher) Inbox(ctx context.Context, recipientID string, limit int64) ([]ports.Notification, error) {
	if limit <= 0 {
		limit = d.inboxLimit
	}
	raw, err := d.client.LRange(ctx, d.inboxKey(recipientID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox of %s: %w", recipientID, err)
	}

	out := make([]ports.Notification, 0, len(raw))
	for _, item := range raw {
		var n ports.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *RedisDispatcher) inboxKey(recipientID string) string {
	return d.channel + ":inbox:" + recipientID
}
