package ratelimit

import "context"

// RateLimiter caps outbound transport calls per owner. Campaign pacing keeps
// traffic looking organic; this is the hard ceiling shared by every concurrent
// engine invocation sending on the same owner's channel.
type RateLimiter interface {
	Allow(ctx context.Context, ownerID string) (bool, error)
	Wait(ctx context.Context, ownerID string) error
}
