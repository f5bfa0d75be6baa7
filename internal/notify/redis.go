package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes system notifications on a per-user Redis channel
// (notifications:<sub>). Desktop agents subscribe to it. Permission is a
// per-user key the user grants from the settings page.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func permissionKey(sub string) string { return "notify:permission:" + sub }

// ChannelFor returns the pub/sub channel carrying notifications for sub.
func ChannelFor(sub string) string { return "notifications:" + sub }

// SetPermission records whether sub allows system notifications.
func (n *RedisNotifier) SetPermission(ctx context.Context, sub string, granted bool) error {
	if !granted {
		return n.client.Del(ctx, permissionKey(sub)).Err()
	}
	return n.client.Set(ctx, permissionKey(sub), "granted", 0).Err()
}

func (n *RedisNotifier) Permitted(ctx context.Context, u *models.User) bool {
	if u == nil {
		return false
	}
	v, err := n.client.Get(ctx, permissionKey(u.Sub)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("notification permission lookup failed for %s: %v", u.Sub, err)
		}
		return false
	}
	return v == "granted"
}

type notification struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

func (n *RedisNotifier) Notify(ctx context.Context, u *models.User, title, body string) error {
	b, err := json.Marshal(notification{Title: title, Body: body, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, ChannelFor(u.Sub), b).Err()
}
