package domain

import (
	"context"
	"time"
)

// ListOpts controls pagination and time-range filtering for read queries,
// following the same shape across every store and the dashboard handlers.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RuleStore is the single source of truth for Rules. It is mutated only by
// the Worker (index rebuilds that read it, trailing-price persistence) and
// the Executor (terminal transitions, Trade writes).
type RuleStore interface {
	ListActive(ctx context.Context) ([]Rule, error)
	GetByID(ctx context.Context, id string) (Rule, error)
	RecentRules(ctx context.Context, n int) ([]Rule, error)

	// TransitionToTriggered moves a rule from ACTIVE to TRIGGERED and
	// inserts the corresponding Trade in a single transaction. It returns
	// ErrRuleNotActive/ErrConflict if the rule's current status is not
	// ACTIVE at the time of the update (e.g. it was externally canceled
	// while an Executor run was in flight).
	TransitionToTriggered(ctx context.Context, ruleID, txID string, trade Trade) error

	// TransitionToFailed moves a rule from ACTIVE to FAILED, recording the
	// broker's failure message. Returns ErrRuleNotActive/ErrConflict under
	// the same race as TransitionToTriggered.
	TransitionToFailed(ctx context.Context, ruleID, reason string) error

	// UpdateTrailing persists a TRAILING_STOP rule's advanced trigger and
	// high-water price. Both values must only increase across calls.
	UpdateTrailing(ctx context.Context, ruleID string, newTrigger, newHighWater float64) error

	AppendEvent(ctx context.Context, e Event) error
	RecentEvents(ctx context.Context, n int) ([]Event, error)
	RecentTrades(ctx context.Context, n int) ([]Trade, error)
}

// TradeArchiveStore is the narrow read-side interface the archiver needs:
// all trades recorded before a cutoff, for archival to cold storage.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// EventArchiveStore is the narrow read-side interface the archiver needs:
// all events recorded before a cutoff, for archival to cold storage.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
}
