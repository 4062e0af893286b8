// Package worker implements the core evaluation loop (C8): for every price
// update from the MarketFeed, evaluate all ACTIVE rules subscribed to that
// token and hand off triggers to the Executor.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmarket/trademanager/internal/domain"
	"github.com/openmarket/trademanager/internal/evaluator"
	"github.com/openmarket/trademanager/internal/eventlog"
)

// Executor is the narrow interface the Worker needs from the execution
// layer: run the full trigger-to-trade flow for one ruleID.
type Executor interface {
	Execute(ctx context.Context, ruleID string) error
}

// Notifier is the narrow alerting capability the Worker needs to announce a
// feed disconnect. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Worker owns the in-memory rule index and position cache, and runs
// Activities B and E of the concurrency model. It is the sole writer of
// its own snapshots; readers (the dashboard handlers) always receive a
// copy, never the live index.
type Worker struct {
	ruleStore domain.RuleStore
	feed      domain.MarketFeed
	broker    domain.Broker
	exec      Executor
	signalBus domain.SignalBus
	notifier  Notifier
	eventLog  *eventlog.Log
	logger    *slog.Logger

	positionRefreshInterval time.Duration
	evaluationEventRate     time.Duration

	mu             sync.RWMutex
	index          map[string][]domain.Rule // tokenID -> ACTIVE rules
	positions      []domain.Position
	lastSync       time.Time
	lastEmit       map[string]time.Time // ruleID -> last RULE_EVALUATED emission
	pendingRuleID  map[string]struct{}  // ruleID -> in-flight marker, single-slot handoff
	feedWasHealthy bool
}

// New constructs a Worker. notifier may be nil, in which case feed
// disconnects are logged but not alerted.
func New(ruleStore domain.RuleStore, feed domain.MarketFeed, broker domain.Broker, exec Executor, signalBus domain.SignalBus, notifier Notifier, eventLog *eventlog.Log, positionRefreshInterval, evaluationEventRate time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		ruleStore:               ruleStore,
		feed:                    feed,
		broker:                  broker,
		exec:                    exec,
		signalBus:               signalBus,
		notifier:                notifier,
		eventLog:                eventLog,
		positionRefreshInterval: positionRefreshInterval,
		evaluationEventRate:     evaluationEventRate,
		logger:                  logger.With(slog.String("component", "worker")),
		index:                   make(map[string][]domain.Rule),
		lastEmit:                make(map[string]time.Time),
		pendingRuleID:           make(map[string]struct{}),
		feedWasHealthy:          true,
	}
}

// Run drives Activities B and E until ctx is canceled: it consumes
// MarketFeed.Prices(), rebuilds the rule index on rule-change
// notifications, and refreshes the position cache on a timer.
func (w *Worker) Run(ctx context.Context) error {
	changes, err := w.signalBus.Subscribe(ctx, domain.RuleChangeChannel)
	if err != nil {
		return err
	}

	w.resync(ctx)
	w.refreshPositions(ctx)

	positionTicker := time.NewTicker(w.positionRefreshInterval)
	defer positionTicker.Stop()

	prices := w.feed.Prices()
	for {
		select {
		case <-ctx.Done():
			return nil

		case price, ok := <-prices:
			if !ok {
				return nil
			}
			w.onPrice(ctx, price)

		case _, ok := <-changes:
			if !ok {
				return nil
			}
			w.resync(ctx)

		case <-positionTicker.C:
			w.refreshPositions(ctx)
			w.checkFeedHealth(ctx)
		}
	}
}

// resync reloads the ACTIVE rule set and rebuilds the tokenID index.
func (w *Worker) resync(ctx context.Context) {
	rules, err := w.ruleStore.ListActive(ctx)
	if err != nil {
		w.logger.Error("resync: list active rules failed", slog.Any("error", err))
		return
	}

	index := make(map[string][]domain.Rule, len(rules))
	for _, rule := range rules {
		index[rule.TokenID] = append(index[rule.TokenID], rule)
	}

	w.mu.Lock()
	w.index = index
	w.mu.Unlock()
}

func (w *Worker) refreshPositions(ctx context.Context) {
	positions, err := w.broker.GetPositions(ctx)
	if err != nil {
		w.logger.Error("refresh positions failed", slog.Any("error", err))
		return
	}
	w.mu.Lock()
	w.positions = positions
	w.mu.Unlock()
}

// checkFeedHealth alerts on the falling edge of the feed's connected state.
// The reconnect loop itself never surfaces errors; this is the only place a
// prolonged disconnect becomes visible outside the dashboard.
func (w *Worker) checkFeedHealth(ctx context.Context) {
	connected := w.feed.IsConnected()

	w.mu.Lock()
	wasHealthy := w.feedWasHealthy
	w.feedWasHealthy = connected
	w.mu.Unlock()

	if wasHealthy && !connected && w.notifier != nil {
		if err := w.notifier.Notify(ctx, "FEED_DISCONNECTED", "Market feed disconnected", "the market data feed is reconnecting"); err != nil {
			w.logger.Error("notify feed disconnect failed", slog.Any("error", err))
		}
	}
}

// onPrice evaluates every ACTIVE rule subscribed to price.TokenID and
// reacts to the resulting decision.
func (w *Worker) onPrice(ctx context.Context, price domain.PriceUpdate) {
	w.mu.RLock()
	rules := w.index[price.TokenID]
	w.mu.RUnlock()

	w.mu.Lock()
	w.lastSync = time.Now().UTC()
	w.mu.Unlock()

	for _, rule := range rules {
		decision := evaluator.Evaluate(rule, price.Price)

		switch decision.Kind {
		case evaluator.UpdateTrailing:
			if err := w.ruleStore.UpdateTrailing(ctx, rule.ID, decision.NewTrigger, decision.NewHighWater); err != nil {
				w.logger.Error("update trailing failed", slog.String("rule_id", rule.ID), slog.Any("error", err))
				continue
			}
			w.appendEvent(ctx, rule.ID, domain.EventRuleTrailingUpdate, map[string]any{
				"newTrigger": decision.NewTrigger, "newHighWater": decision.NewHighWater,
			})

		case evaluator.Trigger:
			w.handoff(ctx, rule.ID)
		}

		w.emitEvaluated(ctx, rule, price.Price, decision.Kind == evaluator.Trigger)
	}
}

// handoff attempts to pass a trigger to the Executor through a single slot
// per ruleID. A trigger that arrives while a prior one for the same rule
// is still in flight is dropped, not queued, matching the Executor's own
// in-flight-drop semantics under LockManager.
func (w *Worker) handoff(ctx context.Context, ruleID string) {
	w.mu.Lock()
	if _, inFlight := w.pendingRuleID[ruleID]; inFlight {
		w.mu.Unlock()
		return
	}
	w.pendingRuleID[ruleID] = struct{}{}
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.pendingRuleID, ruleID)
			w.mu.Unlock()
		}()
		if err := w.exec.Execute(ctx, ruleID); err != nil {
			w.logger.Error("executor run failed", slog.String("rule_id", ruleID), slog.Any("error", err))
		}
	}()
}

// emitEvaluated emits RULE_EVALUATED, rate-limited to at most one per rule
// per evaluationEventRate.
func (w *Worker) emitEvaluated(ctx context.Context, rule domain.Rule, currentPrice float64, triggered bool) {
	now := time.Now()

	w.mu.Lock()
	last, ok := w.lastEmit[rule.ID]
	if ok && now.Sub(last) < w.evaluationEventRate {
		w.mu.Unlock()
		return
	}
	w.lastEmit[rule.ID] = now
	w.mu.Unlock()

	w.appendEvent(ctx, rule.ID, domain.EventRuleEvaluated, map[string]any{
		"currentPrice": currentPrice, "triggerPrice": rule.TriggerPrice, "triggered": triggered,
	})
}

func (w *Worker) appendEvent(ctx context.Context, ruleID string, t domain.EventType, data map[string]any) {
	evt := domain.Event{ID: uuid.NewString(), RuleID: ruleID, Type: t, Data: data, CreatedAt: time.Now().UTC()}
	if err := w.eventLog.Append(ctx, evt); err != nil {
		w.logger.Error("append event failed", slog.String("rule_id", ruleID), slog.String("type", string(t)), slog.Any("error", err))
	}
}

// Status returns an immutable snapshot of the Worker's operational state,
// implementing handler.WorkerStatusProvider.
func (w *Worker) Status() domain.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	activeCount := 0
	for _, rules := range w.index {
		activeCount += len(rules)
	}

	return domain.WorkerStatus{
		Running:          true,
		FeedConnected:    w.feed.IsConnected(),
		ActiveRulesCount: activeCount,
		Subscriptions:    w.feed.SubscribedTokens(),
		LastSyncTime:     w.lastSync,
	}
}

// Positions returns an immutable snapshot of the cached Broker positions,
// implementing handler.PositionsProvider.
func (w *Worker) Positions() []domain.Position {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.Position, len(w.positions))
	copy(out, w.positions)
	return out
}
