package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/campuslink/internal/storage"
)

func newSub(endpoint string) storage.Subscription {
	var s storage.Subscription
	s.Endpoint = endpoint
	s.Keys.P256dh = "p256dh"
	s.Keys.Auth = "auth"
	return s
}

func TestAddListRemove(t *testing.T) {
	ctx := context.Background()
	c := New()

	if err := c.AddSubscription(ctx, "u1", newSub("https://push/ep1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddSubscription(ctx, "u1", newSub("https://push/ep2")); err != nil {
		t.Fatalf("add: %v", err)
	}
	subs, err := c.ListSubscriptions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("subs = %d, want 2", len(subs))
	}

	if err := c.RemoveSubscription(ctx, "u1", "https://push/ep1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	subs, _ = c.ListSubscriptions(ctx, "u1")
	if len(subs) != 1 || subs[0].Endpoint != "https://push/ep2" {
		t.Fatalf("after remove: %+v", subs)
	}

	// Unknown users and endpoints are quiet no-ops.
	if err := c.RemoveSubscription(ctx, "u2", "https://push/ep1"); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
	subs, _ = c.ListSubscriptions(ctx, "u2")
	if len(subs) != 0 {
		t.Fatalf("unknown user has subs: %+v", subs)
	}
}

func TestReplaceSameEndpoint(t *testing.T) {
	ctx := context.Background()
	c := New()
	for i := 0; i < 3; i++ {
		if err := c.AddSubscription(ctx, "u1", newSub("https://push/same")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	subs, _ := c.ListSubscriptions(ctx, "u1")
	if len(subs) != 1 {
		t.Fatalf("re-subscribing duplicated the endpoint: %d", len(subs))
	}
}

func TestCapsPerUser(t *testing.T) {
	ctx := context.Background()
	c := New()
	for i := 0; i < maxSubsPerUser+5; i++ {
		if err := c.AddSubscription(ctx, "u1", newSub(fmt.Sprintf("https://push/ep%d", i))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	subs, _ := c.ListSubscriptions(ctx, "u1")
	if len(subs) != maxSubsPerUser {
		t.Fatalf("subs = %d, want cap %d", len(subs), maxSubsPerUser)
	}
	// The oldest endpoints are the ones evicted.
	if subs[0].Endpoint != "https://push/ep5" {
		t.Fatalf("oldest kept = %s", subs[0].Endpoint)
	}
}
