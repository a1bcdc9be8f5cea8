package storage

import "context"

// Subscription is one browser push endpoint with its encryption keys.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscriptionStore keeps web-push subscriptions per user.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, userID string, sub Subscription) error
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
	ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
	Close() error
}
