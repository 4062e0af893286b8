package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmarket/trademanager/internal/domain"
)

// EventStore implements domain.EventArchiveStore: the read-only query the
// archiver needs to pull events older than a cutoff for cold storage. It
// shares the events table with RuleStore.AppendEvent/RecentEvents.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_id, type, data, created_at FROM events
		WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		var data []byte
		if err := rows.Scan(&e.ID, &e.RuleID, &typ, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event data: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// DeleteEventsBefore removes events older than the cutoff. The caller (the
// eventlog archiver) is responsible for archiving them first.
func (s *EventStore) DeleteEventsBefore(ctx context.Context, before time.Time) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM events WHERE created_at < $1", before); err != nil {
		return fmt.Errorf("postgres: delete events before %s: %w", before, err)
	}
	return nil
}

var _ domain.EventArchiveStore = (*EventStore)(nil)
