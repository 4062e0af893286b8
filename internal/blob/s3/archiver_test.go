package s3blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
)

type fakeWriter struct {
	domain.BlobWriter
	lastPath string
	lastBody string
	err      error
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	f.lastPath = path
	b, _ := io.ReadAll(data)
	f.lastBody = string(b)
	return f.err
}

type fakeTradeStore struct {
	domain.TradeArchiveStore
	trades []domain.Trade
	err    error
}

func (f *fakeTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	return f.trades, f.err
}

type fakeEventStore struct {
	domain.EventArchiveStore
	events []domain.Event
	err    error
}

func (f *fakeEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	return f.events, f.err
}

func TestArchiveTradesUploadsJSONLToMonthlyPath(t *testing.T) {
	t.Parallel()
	writer := &fakeWriter{}
	trades := &fakeTradeStore{trades: []domain.Trade{
		{ID: "t1", RuleID: "r1"},
		{ID: "t2", RuleID: "r2"},
	}}
	a := NewArchiver(writer, trades, &fakeEventStore{})

	cutoff := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveTrades(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if writer.lastPath != "archive/trades/2026-01.jsonl" {
		t.Errorf("path = %q, want archive/trades/2026-01.jsonl", writer.lastPath)
	}
	if strings.Count(writer.lastBody, "\n") != 2 {
		t.Errorf("expected two JSONL lines, got body %q", writer.lastBody)
	}
	if !strings.Contains(writer.lastBody, `"t1"`) || !strings.Contains(writer.lastBody, `"t2"`) {
		t.Errorf("expected both trade IDs in the uploaded body, got %q", writer.lastBody)
	}
}

func TestArchiveTradesSkipsUploadWhenNothingToArchive(t *testing.T) {
	t.Parallel()
	writer := &fakeWriter{}
	a := NewArchiver(writer, &fakeTradeStore{}, &fakeEventStore{})

	count, err := a.ArchiveTrades(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if writer.lastPath != "" {
		t.Error("expected no upload when there are no trades to archive")
	}
}

func TestArchiveEventsUploadsJSONLToMonthlyPath(t *testing.T) {
	t.Parallel()
	writer := &fakeWriter{}
	events := &fakeEventStore{events: []domain.Event{{ID: "e1", RuleID: "r1"}}}
	a := NewArchiver(writer, &fakeTradeStore{}, events)

	cutoff := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if writer.lastPath != "archive/events/2026-03.jsonl" {
		t.Errorf("path = %q, want archive/events/2026-03.jsonl", writer.lastPath)
	}
}

func TestArchiveTradesPropagatesStoreError(t *testing.T) {
	t.Parallel()
	trades := &fakeTradeStore{err: errTestStore}
	a := NewArchiver(&fakeWriter{}, trades, &fakeEventStore{})

	if _, err := a.ArchiveTrades(context.Background(), time.Now()); err == nil {
		t.Fatal("expected the store error to propagate")
	}
}

func TestArchiveTradesPropagatesUploadError(t *testing.T) {
	t.Parallel()
	writer := &fakeWriter{err: errTestStore}
	trades := &fakeTradeStore{trades: []domain.Trade{{ID: "t1"}}}
	a := NewArchiver(writer, trades, &fakeEventStore{})

	if _, err := a.ArchiveTrades(context.Background(), time.Now()); err == nil {
		t.Fatal("expected the upload error to propagate")
	}
}

func TestArchivePathFormatsYearMonth(t *testing.T) {
	t.Parallel()
	got := archivePath("trades", time.Date(2026, time.December, 31, 23, 59, 0, 0, time.UTC))
	if got != "archive/trades/2026-12.jsonl" {
		t.Errorf("archivePath = %q, want archive/trades/2026-12.jsonl", got)
	}
}

func TestMarshalJSONLOneLinePerRecord(t *testing.T) {
	t.Parallel()
	buf, err := marshalJSONL([]domain.Trade{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("got %d lines, want 3", len(lines))
	}
}

var errTestStore = &testStoreError{"store failure"}

type testStoreError struct{ msg string }

func (e *testStoreError) Error() string { return e.msg }
