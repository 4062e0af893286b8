package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting, used to throttle Broker
// calls so a burst of simultaneous rule triggers does not overwhelm the
// venue API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The Executor uses it to
// enforce at most one concurrent run per ruleID: Acquire either succeeds
// or returns ErrLockHeld atomically, so in-flight-drop semantics do not
// rely on a best-effort check.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. The SubscriptionReconciler
// subscribes to rule-change notifications published here so it reacts to a
// rule mutation immediately, in addition to its periodic timer.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RuleChangeChannel is the well-known SignalBus pub/sub channel the
// RuleStore publishes to on any rule mutation, and the
// SubscriptionReconciler subscribes to.
const RuleChangeChannel = "rules:changed"
