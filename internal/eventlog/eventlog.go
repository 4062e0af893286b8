// Package eventlog wraps append/read access to the structured Event log and
// runs its bounded-retention archival pass.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
)

// Log provides append/read access to Events, backed by RuleStore.
type Log struct {
	store  domain.RuleStore
	logger *slog.Logger
}

// New constructs a Log.
func New(store domain.RuleStore, logger *slog.Logger) *Log {
	return &Log{store: store, logger: logger.With(slog.String("component", "eventlog"))}
}

// Append records e. Callers treat a failure here as best-effort and
// non-fatal, per the Error Handling section: event-log writes are not
// themselves a source of inconsistency.
func (l *Log) Append(ctx context.Context, e domain.Event) error {
	if err := l.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("eventlog: append: %w", err)
	}
	return nil
}

// Recent returns the n most recent events, n capped at 100.
func (l *Log) Recent(ctx context.Context, n int) ([]domain.Event, error) {
	if n > 100 {
		n = 100
	}
	events, err := l.store.RecentEvents(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent: %w", err)
	}
	return events, nil
}

// tradeTrimmer and eventTrimmer are the narrow delete capabilities the
// archival pass needs once an
// archive upload has succeeded. Store implementations (e.g. the Postgres
// RuleStore/EventStore) satisfy them directly; they are not part of
// domain.RuleStore so read-only callers cannot trim by accident.
type tradeTrimmer interface {
	DeleteTradesBefore(ctx context.Context, before time.Time) error
}

type eventTrimmer interface {
	DeleteEventsBefore(ctx context.Context, before time.Time) error
}

// Archiver runs the periodic archive-then-trim pass: Trades and Events
// older than the retention window are uploaded to cold storage as JSONL
// before being deleted from the primary store. A failed upload aborts the
// pass for that kind without trimming anything.
type Archiver struct {
	archiver domain.Archiver
	trades   tradeTrimmer
	events   eventTrimmer
	logger   *slog.Logger
}

// NewArchiver constructs an Archiver. trades/events must be the concrete
// store types backing domain.TradeArchiveStore/domain.EventArchiveStore,
// so they can also satisfy tradeTrimmer/eventTrimmer.
func NewArchiver(archiver domain.Archiver, trades tradeTrimmer, events eventTrimmer, logger *slog.Logger) *Archiver {
	return &Archiver{archiver: archiver, trades: trades, events: events, logger: logger.With(slog.String("component", "eventlog.archiver"))}
}

// Run archives and trims Trades and Events older than retention, relative
// to now. The app's archiver loop calls it on a periodic timer.
func (a *Archiver) Run(ctx context.Context, now time.Time, retention time.Duration) {
	before := now.Add(-retention)

	tradeCount, err := a.archiver.ArchiveTrades(ctx, before)
	if err != nil {
		a.logger.Error("archive trades failed, skipping trim", slog.Any("error", err))
	} else if tradeCount > 0 {
		if err := a.trades.DeleteTradesBefore(ctx, before); err != nil {
			a.logger.Error("trim trades failed after successful archive", slog.Any("error", err))
		} else {
			a.logger.Info("archived and trimmed trades", slog.Int64("count", tradeCount))
		}
	}

	eventCount, err := a.archiver.ArchiveEvents(ctx, before)
	if err != nil {
		a.logger.Error("archive events failed, skipping trim", slog.Any("error", err))
	} else if eventCount > 0 {
		if err := a.events.DeleteEventsBefore(ctx, before); err != nil {
			a.logger.Error("trim events failed after successful archive", slog.Any("error", err))
		} else {
			a.logger.Info("archived and trimmed events", slog.Int64("count", eventCount))
		}
	}
}
