package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucketPerUser(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 0.1, time.Minute)

	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "user-1")
		if err != nil || !d.Allowed {
			t.Fatalf("start %d: expected allowed got %+v err=%v", i, d, err)
		}
	}
	d, err := bucket.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected third start to be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 10*time.Second {
		t.Fatalf("unexpected retry-after %s", d.RetryAfter)
	}

	other, err := bucket.Allow(ctx, "user-2")
	if err != nil || !other.Allowed {
		t.Fatalf("buckets must be per user, got %+v err=%v", other, err)
	}

	// Refill cannot be exercised with miniredis.FastForward: the script takes
	// its clock from the caller, not from Redis.
}
