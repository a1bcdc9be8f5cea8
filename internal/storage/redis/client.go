package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuslink/internal/storage"
)

// Subscriptions live under push:subs:{userID} as a list of JSON blobs.
// A user keeps at most maxSubsPerUser endpoints; stale ones age out via TTL.
const (
	keyPrefix       = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// AddSubscription appends the endpoint and trims the list so a user never
// accumulates more than maxSubsPerUser subscriptions.
func (c *Client) AddSubscription(ctx context.Context, userID string, sub storage.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("subscription encode: %w", err)
	}
	key := keyPrefix + userID
	pipe := c.cli.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("subscription save: %w", err)
	}
	return nil
}

// RemoveSubscription drops the entry with the given endpoint. Rewrites the
// whole list; the lists are tiny so this is fine.
func (c *Client) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	key := keyPrefix + userID
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("subscription load: %w", err)
	}
	var kept []string
	for _, item := range list {
		var sub storage.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	if err := c.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("subscription delete: %w", err)
	}
	if len(kept) == 0 {
		return nil
	}
	for _, v := range kept {
		c.cli.RPush(ctx, key, v)
	}
	c.cli.Expire(ctx, key, subscriptionTTL)
	return nil
}

func (c *Client) ListSubscriptions(ctx context.Context, userID string) ([]storage.Subscription, error) {
	list, err := c.cli.LRange(ctx, keyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("subscription load: %w", err)
	}
	subs := make([]storage.Subscription, 0, len(list))
	for _, item := range list {
		var sub storage.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// FlushDB clears the current Redis database (tests and dev restarts).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
