package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
)

type fakeRuleStore struct {
	domain.RuleStore
	rules         []domain.Rule
	trades        []domain.Trade
	events        []domain.Event
	lastTradesN   int
	lastEventsN   int
	recentErr     error
}

func (f *fakeRuleStore) RecentRules(ctx context.Context, n int) ([]domain.Rule, error) {
	return f.rules, nil
}

func (f *fakeRuleStore) RecentTrades(ctx context.Context, n int) ([]domain.Trade, error) {
	f.lastTradesN = n
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.trades, nil
}

func (f *fakeRuleStore) RecentEvents(ctx context.Context, n int) ([]domain.Event, error) {
	f.lastEventsN = n
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.events, nil
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	h := NewHealthHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestListTradesCapsLimitAtMaxRecentList(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	h := NewTradesHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/api/trades?limit=9999", nil)
	rec := httptest.NewRecorder()

	h.ListTrades(rec, req)

	if store.lastTradesN != maxRecentList {
		t.Errorf("RecentTrades called with n=%d, want capped to %d", store.lastTradesN, maxRecentList)
	}
}

func TestListEventsCapsLimitAtMaxRecentList(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{}
	h := NewEventsHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=9999", nil)
	rec := httptest.NewRecorder()

	h.ListEvents(rec, req)

	if store.lastEventsN != maxRecentList {
		t.Errorf("RecentEvents called with n=%d, want capped to %d", store.lastEventsN, maxRecentList)
	}
}

func TestListTradesReturnsErrorOnStoreFailure(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{recentErr: errors.New("db down")}
	h := NewTradesHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()

	h.ListTrades(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListRulesReturnsRules(t *testing.T) {
	t.Parallel()
	store := &fakeRuleStore{rules: []domain.Rule{{ID: "r1"}, {ID: "r2"}}}
	h := NewRulesHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	rec := httptest.NewRecorder()

	h.ListRules(rec, req)

	var rules []domain.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("got %d rules, want 2", len(rules))
	}
}

type fakeStatusProvider struct {
	status domain.WorkerStatus
}

func (f *fakeStatusProvider) Status() domain.WorkerStatus { return f.status }

func TestGetWorkerStatus(t *testing.T) {
	t.Parallel()
	provider := &fakeStatusProvider{status: domain.WorkerStatus{Running: true, FeedConnected: true, ActiveRulesCount: 3}}
	h := NewStatusHandler(provider)
	req := httptest.NewRequest(http.MethodGet, "/health/worker", nil)
	rec := httptest.NewRecorder()

	h.GetWorkerStatus(rec, req)

	var status domain.WorkerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if status.ActiveRulesCount != 3 {
		t.Errorf("ActiveRulesCount = %d, want 3", status.ActiveRulesCount)
	}
}

type fakePositionsProvider struct {
	positions []domain.Position
}

func (f *fakePositionsProvider) Positions() []domain.Position { return f.positions }

func TestListPositions(t *testing.T) {
	t.Parallel()
	provider := &fakePositionsProvider{positions: []domain.Position{{TokenID: "tok-a", Quantity: 10}}}
	h := NewPositionsHandler(provider)
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()

	h.ListPositions(rec, req)

	var positions []domain.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &positions); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(positions) != 1 || positions[0].TokenID != "tok-a" {
		t.Errorf("got %+v, want one position for tok-a", positions)
	}
}

type fakeBlobReader struct {
	domain.BlobReader
	infos []domain.BlobInfo
	err   error
	lastPrefix string
}

func (f *fakeBlobReader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	f.lastPrefix = prefix
	return f.infos, f.err
}

func TestListArchiveDefaultsPrefix(t *testing.T) {
	t.Parallel()
	reader := &fakeBlobReader{infos: []domain.BlobInfo{{Path: "archive/trades/2026-01-01.jsonl", Size: 100, LastModified: time.Now()}}}
	h := NewArchiveHandler(reader)
	req := httptest.NewRequest(http.MethodGet, "/api/archive", nil)
	rec := httptest.NewRecorder()

	h.ListArchive(rec, req)

	if reader.lastPrefix != "archive/" {
		t.Errorf("prefix = %q, want \"archive/\"", reader.lastPrefix)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListArchiveHonorsExplicitPrefix(t *testing.T) {
	t.Parallel()
	reader := &fakeBlobReader{}
	h := NewArchiveHandler(reader)
	req := httptest.NewRequest(http.MethodGet, "/api/archive?prefix=archive/events/", nil)
	rec := httptest.NewRecorder()

	h.ListArchive(rec, req)

	if reader.lastPrefix != "archive/events/" {
		t.Errorf("prefix = %q, want archive/events/", reader.lastPrefix)
	}
}

func TestListArchiveReturnsErrorOnReaderFailure(t *testing.T) {
	t.Parallel()
	reader := &fakeBlobReader{err: errors.New("s3 unavailable")}
	h := NewArchiveHandler(reader)
	req := httptest.NewRequest(http.MethodGet, "/api/archive", nil)
	rec := httptest.NewRecorder()

	h.ListArchive(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
