package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmarket/trademanager/internal/domain"
)

// RuleStore implements domain.RuleStore and domain.TradeArchiveStore
// against PostgreSQL (EventStore implements domain.EventArchiveStore over
// the same events table). It publishes to
// domain.RuleChangeChannel on every mutation so the SubscriptionReconciler
// reacts immediately rather than waiting for its periodic timer.
type RuleStore struct {
	pool      *pgxpool.Pool
	signalBus domain.SignalBus
}

// NewRuleStore constructs a RuleStore. signalBus may be nil, in which case
// mutation notifications are skipped (the reconciler falls back to its
// periodic timer alone).
func NewRuleStore(pool *pgxpool.Pool, signalBus domain.SignalBus) *RuleStore {
	return &RuleStore{pool: pool, signalBus: signalBus}
}

func (s *RuleStore) ListActive(ctx context.Context) ([]domain.Rule, error) {
	rows, err := s.pool.Query(ctx, ruleSelectColumns+" FROM rules WHERE status = 'ACTIVE' ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list active rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (s *RuleStore) GetByID(ctx context.Context, id string) (domain.Rule, error) {
	rows, err := s.pool.Query(ctx, ruleSelectColumns+" FROM rules WHERE id = $1", id)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("postgres: get rule %s: %w", id, err)
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return domain.Rule{}, err
	}
	if len(rules) == 0 {
		return domain.Rule{}, fmt.Errorf("postgres: rule %s: %w", id, domain.ErrNotFound)
	}
	return rules[0], nil
}

func (s *RuleStore) RecentRules(ctx context.Context, n int) ([]domain.Rule, error) {
	rows, err := s.pool.Query(ctx, ruleSelectColumns+" FROM rules ORDER BY created_at DESC LIMIT $1", n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

func (s *RuleStore) TransitionToTriggered(ctx context.Context, ruleID, txID string, trade domain.Trade) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rules SET status = 'TRIGGERED', triggered_at = NOW(),
				triggered_by_tx_id = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'ACTIVE'`, ruleID, txID)
		if err != nil {
			return fmt.Errorf("postgres: update rule %s: %w", ruleID, err)
		}
		if tag.RowsAffected() == 0 {
			exists, checkErr := ruleExists(ctx, tx, ruleID)
			if checkErr != nil {
				return checkErr
			}
			if !exists {
				return fmt.Errorf("postgres: rule %s: %w", ruleID, domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: rule %s: %w", ruleID, domain.ErrConflict)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO trades (id, rule_id, rule_type, market_id, token_id, trade_side, trigger_price, price, amount, order_id, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			trade.ID, trade.RuleID, string(trade.RuleType), trade.MarketID, trade.TokenID,
			string(trade.TradeSide), trade.TriggerPrice, trade.Price, trade.Amount, trade.OrderID, trade.Timestamp)
		if err != nil {
			return fmt.Errorf("postgres: insert trade for rule %s: %w", ruleID, err)
		}
		return nil
	}, ruleID)
}

func (s *RuleStore) TransitionToFailed(ctx context.Context, ruleID, reason string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rules SET status = 'FAILED', error_message = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'ACTIVE'`, ruleID, reason)
		if err != nil {
			return fmt.Errorf("postgres: fail rule %s: %w", ruleID, err)
		}
		if tag.RowsAffected() == 0 {
			exists, checkErr := ruleExists(ctx, tx, ruleID)
			if checkErr != nil {
				return checkErr
			}
			if !exists {
				return fmt.Errorf("postgres: rule %s: %w", ruleID, domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: rule %s: %w", ruleID, domain.ErrConflict)
		}
		return nil
	}, ruleID)
}

func (s *RuleStore) UpdateTrailing(ctx context.Context, ruleID string, newTrigger, newHighWater float64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rules SET trigger_price = $2, high_water_price = $3, updated_at = NOW()
			WHERE id = $1 AND status = 'ACTIVE'`, ruleID, newTrigger, newHighWater)
		if err != nil {
			return fmt.Errorf("postgres: update trailing for rule %s: %w", ruleID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: rule %s: %w", ruleID, domain.ErrConflict)
		}
		return nil
	}, ruleID)
}

func (s *RuleStore) AppendEvent(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("postgres: marshal event data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (id, rule_id, type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`, e.ID, e.RuleID, string(e.Type), data, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append event: %w", err)
	}
	return nil
}

func (s *RuleStore) RecentEvents(ctx context.Context, n int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_id, type, data, created_at FROM events
		ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent events: %w", err)
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
	return events, rows.Err()
}

func (s *RuleStore) RecentTrades(ctx context.Context, n int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_id, rule_type, market_id, token_id, trade_side, trigger_price, price, amount, order_id, ts
		FROM trades ORDER BY ts DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListBefore implements domain.TradeArchiveStore for trades.
func (s *RuleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_id, rule_type, market_id, token_id, trade_side, trigger_price, price, amount, order_id, ts
		FROM trades WHERE ts < $1 ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// DeleteTradesBefore removes trades older than the cutoff. The caller
// (the eventlog archiver) is responsible for archiving them first.
func (s *RuleStore) DeleteTradesBefore(ctx context.Context, before time.Time) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM trades WHERE ts < $1", before); err != nil {
		return fmt.Errorf("postgres: delete trades before %s: %w", before, err)
	}
	return nil
}

func (s *RuleStore) withTx(ctx context.Context, fn func(pgx.Tx) error, ruleID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	if s.signalBus != nil {
		_ = s.signalBus.Publish(context.WithoutCancel(ctx), domain.RuleChangeChannel, []byte(ruleID))
	}
	return nil
}

func ruleExists(ctx context.Context, tx pgx.Tx, ruleID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)", ruleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check rule %s exists: %w", ruleID, err)
	}
	return exists, nil
}

const ruleSelectColumns = `
	SELECT id, type, side, market_id, token_id, trigger_price, trailing_percent,
		high_water_price, action_kind, action_amount, status, triggered_at,
		triggered_by_tx_id, error_message, created_at, updated_at`

func scanRules(rows pgx.Rows) ([]domain.Rule, error) {
	var rules []domain.Rule
	for rows.Next() {
		var r domain.Rule
		var typ, side, actionKind, status string
		var actionAmount float64
		if err := rows.Scan(&r.ID, &typ, &side, &r.MarketID, &r.TokenID, &r.TriggerPrice,
			&r.TrailingPercent, &r.HighWaterPrice, &actionKind, &actionAmount, &status,
			&r.TriggeredAt, &r.TriggeredByTxID, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		r.Type = domain.RuleType(typ)
		r.Side = domain.OrderSide(side)
		r.Status = domain.RuleStatus(status)
		action, err := domain.ParseAction(actionKind, actionAmount)
		if err != nil {
			return nil, fmt.Errorf("postgres: rule %s: %w", r.ID, err)
		}
		r.Action = action
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rules: %w", err)
	}
	return rules, nil
}

func scanTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var ruleType, tradeSide string
		if err := rows.Scan(&t.ID, &t.RuleID, &ruleType, &t.MarketID, &t.TokenID, &tradeSide,
			&t.TriggerPrice, &t.Price, &t.Amount, &t.OrderID, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.RuleType = domain.RuleType(ruleType)
		t.TradeSide = domain.OrderSide(tradeSide)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return trades, nil
}

var (
	_ domain.RuleStore         = (*RuleStore)(nil)
	_ domain.TradeArchiveStore = (*RuleStore)(nil)
)
