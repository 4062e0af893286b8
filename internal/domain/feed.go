package domain

import (
	"context"
	"fmt"
	"time"
)

// PriceUpdate is one emitted price observation for a single token. Every
// Price is guaranteed to be in (0, 1].
type PriceUpdate struct {
	TokenID   string
	Price     float64
	Timestamp time.Time
}

func (p PriceUpdate) String() string {
	return fmt.Sprintf("PriceUpdate{token=%s price=%.4f}", p.TokenID, p.Price)
}

// MarketFeed is the live market-data connection. It is re-architected
// around an explicit lazy, infinite, non-restartable price sequence
// (Prices) with connection state exposed as a separate observable signal
// (IsConnected), rather than registered per-message callbacks. Consumers
// must tolerate missed updates across reconnects: Prices does not replay
// history.
//
// Subscribe/Unsubscribe are idempotent and may be called before Connect;
// the desired token set is recorded and flushed as one aggregate
// subscribe frame once a connection is established or re-established.
// SubscriptionReconciler is the only caller of Subscribe/Unsubscribe;
// nothing else touches subscription state directly.
type MarketFeed interface {
	// Connect establishes the websocket connection and starts the
	// reconnect/keepalive machinery. It fails open: a dial failure queues
	// pending ops and schedules a reconnect rather than returning an error,
	// except when ctx is already canceled or the feed has been closed.
	Connect(ctx context.Context) error

	Subscribe(tokenIDs ...string)
	Unsubscribe(tokenIDs ...string)

	// Prices returns the feed's price sequence. The channel is created once
	// and is not recreated across reconnects; callers should range over it
	// for the lifetime of the feed.
	Prices() <-chan PriceUpdate

	IsConnected() bool
	SubscribedTokens() []string

	// Close sends a proper close frame, cancels any pending reconnect, and
	// releases resources. Safe to call once during shutdown.
	Close() error
}
