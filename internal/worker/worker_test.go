package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
	"github.com/openmarket/trademanager/internal/eventlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRuleStore struct {
	domain.RuleStore
	active          []domain.Rule
	trailingUpdates []trailingCall
	trailingErr     error
	appended        []domain.Event
	mu              sync.Mutex
}

type trailingCall struct {
	ruleID               string
	newTrigger, newHigh float64
}

func (f *fakeRuleStore) ListActive(ctx context.Context) ([]domain.Rule, error) {
	return f.active, nil
}

func (f *fakeRuleStore) UpdateTrailing(ctx context.Context, ruleID string, newTrigger, newHighWater float64) error {
	if f.trailingErr != nil {
		return f.trailingErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trailingUpdates = append(f.trailingUpdates, trailingCall{ruleID, newTrigger, newHighWater})
	return nil
}

func (f *fakeRuleStore) AppendEvent(ctx context.Context, e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return nil
}

type fakeFeed struct {
	domain.MarketFeed
	connected   bool
	subscribed  []string
	priceCh     chan domain.PriceUpdate
}

func (f *fakeFeed) IsConnected() bool          { return f.connected }
func (f *fakeFeed) SubscribedTokens() []string { return f.subscribed }
func (f *fakeFeed) Prices() <-chan domain.PriceUpdate {
	if f.priceCh == nil {
		f.priceCh = make(chan domain.PriceUpdate)
	}
	return f.priceCh
}

type fakeBroker struct {
	domain.Broker
	positions []domain.Position
}

func (f *fakeBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return f.positions, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ruleID)
	return nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSignalBus struct {
	domain.SignalBus
}

func (f *fakeSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, event)
	return nil
}

func newTestWorker(store *fakeRuleStore, feed *fakeFeed, broker *fakeBroker, exec Executor, notifier Notifier) *Worker {
	evLog := eventlog.New(store, testLogger())
	return New(store, feed, broker, exec, &fakeSignalBus{}, notifier, evLog, time.Hour, time.Hour, testLogger())
}

func TestResyncBuildsTokenIndex(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{active: []domain.Rule{
		{ID: "r1", TokenID: "tok-a", Status: domain.RuleStatusActive},
		{ID: "r2", TokenID: "tok-a", Status: domain.RuleStatusActive},
		{ID: "r3", TokenID: "tok-b", Status: domain.RuleStatusActive},
	}}
	w := newTestWorker(store, &fakeFeed{}, &fakeBroker{}, &fakeExecutor{}, nil)

	w.resync(context.Background())

	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.index["tok-a"]) != 2 {
		t.Errorf("index[tok-a] has %d rules, want 2", len(w.index["tok-a"]))
	}
	if len(w.index["tok-b"]) != 1 {
		t.Errorf("index[tok-b] has %d rules, want 1", len(w.index["tok-b"]))
	}
}

func TestOnPriceTriggersHandoffToExecutor(t *testing.T) {
	t.Parallel()
	rule := domain.Rule{ID: "r1", TokenID: "tok-a", Type: domain.RuleTypeStopLoss, Side: domain.OrderSideSell, TriggerPrice: 0.5, Status: domain.RuleStatusActive}
	store := &fakeRuleStore{active: []domain.Rule{rule}}
	exec := &fakeExecutor{}
	w := newTestWorker(store, &fakeFeed{}, &fakeBroker{}, exec, nil)
	w.resync(context.Background())

	w.onPrice(context.Background(), domain.PriceUpdate{TokenID: "tok-a", Price: 0.4})

	deadline := time.Now().Add(time.Second)
	for exec.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if exec.callCount() != 1 {
		t.Fatalf("executor called %d times, want 1", exec.callCount())
	}
}

func TestOnPriceUpdatesTrailingStop(t *testing.T) {
	t.Parallel()
	rule := domain.Rule{ID: "r1", TokenID: "tok-a", Type: domain.RuleTypeTrailingStop, Side: domain.OrderSideSell, TriggerPrice: 0.45, HighWaterPrice: 0.50, TrailingPercent: 10, Status: domain.RuleStatusActive}
	store := &fakeRuleStore{active: []domain.Rule{rule}}
	w := newTestWorker(store, &fakeFeed{}, &fakeBroker{}, &fakeExecutor{}, nil)
	w.resync(context.Background())

	w.onPrice(context.Background(), domain.PriceUpdate{TokenID: "tok-a", Price: 0.60})

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.trailingUpdates) != 1 {
		t.Fatalf("expected one trailing update, got %d", len(store.trailingUpdates))
	}
	if store.trailingUpdates[0].newHigh != 0.60 {
		t.Errorf("newHighWater = %v, want 0.60", store.trailingUpdates[0].newHigh)
	}
}

func TestHandoffDropsConcurrentTriggerForSameRule(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	exec := &fakeExecutor{}
	w := newTestWorker(store, &fakeFeed{}, &fakeBroker{}, exec, nil)

	w.mu.Lock()
	w.pendingRuleID["r1"] = struct{}{}
	w.mu.Unlock()

	w.handoff(context.Background(), "r1")

	time.Sleep(50 * time.Millisecond)
	if exec.callCount() != 0 {
		t.Errorf("expected the in-flight rule's second trigger to be dropped, got %d calls", exec.callCount())
	}
}

func TestEmitEvaluatedRateLimited(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	evLog := eventlog.New(store, testLogger())
	w := New(store, &fakeFeed{}, &fakeBroker{}, &fakeExecutor{}, &fakeSignalBus{}, nil, evLog, time.Hour, time.Hour, testLogger())

	rule := domain.Rule{ID: "r1"}
	w.emitEvaluated(context.Background(), rule, 0.5, false)
	w.emitEvaluated(context.Background(), rule, 0.5, false)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.appended) != 1 {
		t.Errorf("expected exactly one RULE_EVALUATED event within the rate window, got %d", len(store.appended))
	}
}

func TestCheckFeedHealthNotifiesOnlyOnFallingEdge(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	feed := &fakeFeed{connected: true}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, feed, &fakeBroker{}, &fakeExecutor{}, notifier)

	w.checkFeedHealth(context.Background())
	if len(notifier.notified) != 0 {
		t.Errorf("still connected: expected no notification, got %d", len(notifier.notified))
	}

	feed.connected = false
	w.checkFeedHealth(context.Background())
	if len(notifier.notified) != 1 {
		t.Fatalf("falling edge: expected one notification, got %d", len(notifier.notified))
	}

	w.checkFeedHealth(context.Background())
	if len(notifier.notified) != 1 {
		t.Errorf("still disconnected: expected no further notification, got %d", len(notifier.notified))
	}

	feed.connected = true
	w.checkFeedHealth(context.Background())
	feed.connected = false
	w.checkFeedHealth(context.Background())
	if len(notifier.notified) != 2 {
		t.Errorf("second falling edge: expected two total notifications, got %d", len(notifier.notified))
	}
}

func TestStatusReflectsFeedAndIndex(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{active: []domain.Rule{
		{ID: "r1", TokenID: "tok-a", Status: domain.RuleStatusActive},
	}}
	feed := &fakeFeed{connected: true, subscribed: []string{"tok-a"}}
	w := newTestWorker(store, feed, &fakeBroker{}, &fakeExecutor{}, nil)
	w.resync(context.Background())

	status := w.Status()
	if !status.FeedConnected {
		t.Error("FeedConnected = false, want true")
	}
	if status.ActiveRulesCount != 1 {
		t.Errorf("ActiveRulesCount = %d, want 1", status.ActiveRulesCount)
	}
}

func TestPositionsReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	broker := &fakeBroker{positions: []domain.Position{{TokenID: "tok-a", Quantity: 5}}}
	w := newTestWorker(store, &fakeFeed{}, broker, &fakeExecutor{}, nil)
	w.refreshPositions(context.Background())

	positions := w.Positions()
	positions[0].Quantity = 999

	again := w.Positions()
	if again[0].Quantity != 5 {
		t.Errorf("mutating the returned slice leaked into the worker's internal state: got %v, want 5", again[0].Quantity)
	}
}
