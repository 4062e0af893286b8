// Package reconciler keeps a MarketFeed's subscription set in sync with the
// token set of currently-ACTIVE rules (C7).
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
)

// Reconciler is the sole caller of MarketFeed.Subscribe/Unsubscribe. The
// Worker never touches subscription state directly.
type Reconciler struct {
	ruleStore domain.RuleStore
	feed      domain.MarketFeed
	signalBus domain.SignalBus
	interval  time.Duration
	logger    *slog.Logger
}

// New constructs a Reconciler. interval is the reconcileInterval config key
// (default 5s).
func New(ruleStore domain.RuleStore, feed domain.MarketFeed, signalBus domain.SignalBus, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ruleStore: ruleStore,
		feed:      feed,
		signalBus: signalBus,
		interval:  interval,
		logger:    logger.With(slog.String("component", "reconciler")),
	}
}

// Run reconciles on every timer tick and on every rule-change notification
// until ctx is canceled. It runs once immediately on entry so a fresh
// worker subscribes to its initial rule set without waiting a full
// interval.
func (r *Reconciler) Run(ctx context.Context) error {
	changes, err := r.signalBus.Subscribe(ctx, domain.RuleChangeChannel)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reconcileOnce(ctx)
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	rules, err := r.ruleStore.ListActive(ctx)
	if err != nil {
		r.logger.Error("list active rules failed", slog.Any("error", err))
		return
	}

	desired := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		desired[rule.TokenID] = struct{}{}
	}

	current := make(map[string]struct{})
	for _, tokenID := range r.feed.SubscribedTokens() {
		current[tokenID] = struct{}{}
	}

	var toSubscribe, toUnsubscribe []string
	for tokenID := range desired {
		if _, ok := current[tokenID]; !ok {
			toSubscribe = append(toSubscribe, tokenID)
		}
	}
	for tokenID := range current {
		if _, ok := desired[tokenID]; !ok {
			toUnsubscribe = append(toUnsubscribe, tokenID)
		}
	}

	if len(toSubscribe) > 0 {
		r.feed.Subscribe(toSubscribe...)
	}
	if len(toUnsubscribe) > 0 {
		r.feed.Unsubscribe(toUnsubscribe...)
	}
}
