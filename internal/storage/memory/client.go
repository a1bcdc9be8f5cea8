package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campuslink/internal/storage"
)

const (
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

type entry struct {
	sub storage.Subscription
	exp time.Time
}

// Client is the in-process SubscriptionStore used by -dev runs and tests.
type Client struct {
	mu   sync.RWMutex
	subs map[string][]entry
}

func New() *Client {
	return &Client{subs: make(map[string][]entry)}
}

func (c *Client) Close() error { return nil }

func (c *Client) AddSubscription(ctx context.Context, userID string, sub storage.Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.live(userID)
	// Replacing an existing endpoint refreshes its TTL.
	out := kept[:0]
	for _, e := range kept {
		if e.sub.Endpoint != sub.Endpoint {
			out = append(out, e)
		}
	}
	out = append(out, entry{sub: sub, exp: time.Now().Add(subscriptionTTL)})
	if len(out) > maxSubsPerUser {
		out = out[len(out)-maxSubsPerUser:]
	}
	c.subs[userID] = out
	return nil
}

func (c *Client) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.live(userID)
	out := kept[:0]
	for _, e := range kept {
		if e.sub.Endpoint != endpoint {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		delete(c.subs, userID)
	} else {
		c.subs[userID] = out
	}
	return nil
}

func (c *Client) ListSubscriptions(ctx context.Context, userID string) ([]storage.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var subs []storage.Subscription
	now := time.Now()
	for _, e := range c.subs[userID] {
		if now.Before(e.exp) {
			subs = append(subs, e.sub)
		}
	}
	return subs, nil
}

// live filters expired entries. Caller holds the write lock.
func (c *Client) live(userID string) []entry {
	now := time.Now()
	var kept []entry
	for _, e := range c.subs[userID] {
		if now.Before(e.exp) {
			kept = append(kept, e)
		}
	}
	return kept
}
