package ratelimit

import "context"

// RateLimiter controls outbound send throughput per chat destination.
type RateLimiter interface {
	Allow(ctx context.Context, destination string) (bool, error)
	Wait(ctx context.Context, destination string) error
}
