package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pacedrop/campaign-scheduler/internal/notify"
	goredis "github.com/redis/go-redis/v9"
)

const campaignEventsChannel = "campaign.events"

var _ notify.Notifier = (*RedisNotifier)(nil)

// RedisNotifier publishes campaign state changes on a pub/sub channel so UIs
// can refresh without polling.
type RedisNotifier struct {
	client *goredis.Client
}

func NewRedisNotifier(client *goredis.Client) (*RedisNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisNotifier{client: client}, nil
}

func (n *RedisNotifier) CampaignChanged(ctx context.Context, event notify.CampaignEvent) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("notifier is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign event: %w", err)
	}

	if err := n.client.Publish(ctx, campaignEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish campaign event: %w", err)
	}

	return nil
}
