// Package executor turns a triggered Rule into a placed order: it resolves
// the holding behind the rule, tries a slippage-bounded limit order, falls
// back to a market order on a no-match, and records the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmarket/trademanager/internal/domain"
	"github.com/openmarket/trademanager/internal/eventlog"
)

// lockTTL bounds how long a single ruleID's execution may hold its
// single-flight lock. An execution that runs longer than this is assumed
// stuck and the lock is released so a later trigger is not permanently
// starved.
const lockTTL = 30 * time.Second

// lockKeyPrefix namespaces the single-flight lock held for the duration of
// one rule's Execute call, keyed by ruleID so two rules never block each
// other.
const lockKeyPrefix = "rule:"

// placeOrderRateLimitKey is the single rate-limit bucket every broker order
// placement shares, regardless of which rule triggered it. The venue API
// enforces one request budget per account, not per rule.
const placeOrderRateLimitKey = "broker:place-order"

// Notifier is the narrow alerting capability the Executor needs. It is
// satisfied by *notify.Notifier; kept as an interface here to avoid an
// import cycle between executor and notify.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Executor places the order behind one triggered rule at a time, per
// ruleID, serialized through a LockManager so a burst of price updates
// cannot run the same rule's action twice concurrently.
type Executor struct {
	ruleStore   domain.RuleStore
	broker      domain.Broker
	lockManager domain.LockManager
	rateLimiter domain.RateLimiter
	notifier    Notifier
	eventLog    *eventlog.Log
	logger      *slog.Logger

	slippageStopLoss   float64
	slippageTakeProfit float64
}

// New constructs an Executor. slippageStopLoss/slippageTakeProfit are the
// fractional slippage tolerances applied to the limit-order tier for
// STOP_LOSS/TRAILING_STOP and TAKE_PROFIT rules respectively. notifier may
// be nil, in which case rule failures are logged but not alerted.
func New(ruleStore domain.RuleStore, broker domain.Broker, lockManager domain.LockManager, rateLimiter domain.RateLimiter, notifier Notifier, eventLog *eventlog.Log, slippageStopLoss, slippageTakeProfit float64, logger *slog.Logger) *Executor {
	return &Executor{
		ruleStore:          ruleStore,
		broker:             broker,
		lockManager:        lockManager,
		rateLimiter:        rateLimiter,
		notifier:           notifier,
		eventLog:           eventLog,
		slippageStopLoss:   slippageStopLoss,
		slippageTakeProfit: slippageTakeProfit,
		logger:             logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the full trigger-to-trade flow for ruleID. It never returns
// an error for a rule-level failure (permanent broker rejection, stale
// rule, conflicting cancellation) — those are recorded as events and a
// FAILED transition. It returns an error only for conditions the caller
// should treat as unexpected: a RuleStore/LockManager failure.
func (e *Executor) Execute(ctx context.Context, ruleID string) error {
	unlock, err := e.lockManager.Acquire(ctx, lockKeyPrefix+ruleID, lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		e.logger.Debug("execution already in flight, dropping trigger", slog.String("rule_id", ruleID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("executor: acquire lock: %w", err)
	}
	defer unlock()

	rule, err := e.ruleStore.GetByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("executor: load rule: %w", err)
	}
	if rule.Status != domain.RuleStatusActive {
		e.logger.Debug("rule no longer active, skipping", slog.String("rule_id", ruleID), slog.String("status", string(rule.Status)))
		return nil
	}

	e.recordAttempt(ctx, rule, map[string]any{"rule_type": string(rule.Type)})

	amount, err := e.resolveAmount(ctx, rule)
	if err != nil {
		e.fail(ctx, rule, err.Error())
		return nil
	}

	currentPrice, err := e.broker.GetCurrentPrice(ctx, rule.MarketID, rule.TokenID)
	if err != nil {
		e.fail(ctx, rule, fmt.Sprintf("fetch current price: %v", err))
		return nil
	}
	if currentPrice <= 0 {
		e.fail(ctx, rule, "no orderbook data")
		return nil
	}

	trade, orderErr := e.placeWithRetry(ctx, rule, amount, currentPrice)
	if orderErr != nil {
		if classify(orderErr) == failurePermanent {
			e.fail(ctx, rule, orderErr.Error())
			return nil
		}
		e.event(ctx, rule.ID, domain.EventActionFailed, map[string]any{"reason": orderErr.Error(), "isPermanent": false})
		return nil
	}

	if err := e.ruleStore.TransitionToTriggered(ctx, rule.ID, trade.OrderID, trade); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrRuleNotActive) {
			e.event(ctx, rule.ID, domain.EventActionFailed, map[string]any{"reason": "canceled_during_execution"})
			return nil
		}
		return fmt.Errorf("executor: transition to triggered: %w", err)
	}

	e.event(ctx, rule.ID, domain.EventActionExecuted, map[string]any{
		"order_id": trade.OrderID, "price": trade.Price, "amount": trade.Amount,
	})
	return nil
}

// resolveAmount determines how many shares to sell: the venue's reported
// holding for SELL_ALL, or the rule's configured amount for SELL_PARTIAL.
// It runs two distinct gates against two distinct broker calls: first a
// GetPositions call guards against a market that has closed (Redeemable or
// past its EndDate), then — for SELL_ALL only — a GetHoldings call re-checks
// Redeemable and reads the share count. Both calls go to the broker when
// the rule fires; the Worker's cached positions are not consulted.
func (e *Executor) resolveAmount(ctx context.Context, rule domain.Rule) (float64, error) {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch positions: %w", err)
	}

	var pos *domain.Position
	for i := range positions {
		if positions[i].TokenID == rule.TokenID {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return 0, fmt.Errorf("position not found")
	}
	if pos.Redeemable || (pos.EndDate != nil && pos.EndDate.Before(time.Now())) {
		return 0, fmt.Errorf("market closed")
	}

	switch rule.Action.Kind {
	case domain.ActionSellAll:
		return e.resolveSellAllAmount(ctx, rule.TokenID)
	case domain.ActionSellPartial:
		return rule.Action.Amount, nil
	default:
		return 0, fmt.Errorf("unrecognized action kind %q", rule.Action.Kind)
	}
}

// resolveSellAllAmount reads the current holding from the broker's
// GetHoldings view rather than trusting resolveAmount's Position lookup, so
// a holding that is missing, empty or already Redeemable is caught before
// the full balance is sold.
func (e *Executor) resolveSellAllAmount(ctx context.Context, tokenID string) (float64, error) {
	holdings, err := e.broker.GetHoldings(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch holdings: %w", err)
	}

	var holding *domain.Holding
	for i := range holdings {
		if holdings[i].TokenID == tokenID {
			holding = &holdings[i]
			break
		}
	}
	if holding == nil || holding.Shares <= 0 {
		return 0, fmt.Errorf("position not found")
	}
	if holding.Redeemable {
		return 0, fmt.Errorf("market closed")
	}
	return holding.Shares, nil
}

// placeWithRetry tries a slippage-bounded limit order first, then falls
// back to a market order if the limit order is rejected for lack of a
// matching counterparty.
func (e *Executor) placeWithRetry(ctx context.Context, rule domain.Rule, amount, currentPrice float64) (domain.Trade, error) {
	if err := e.rateLimiter.Wait(ctx, placeOrderRateLimitKey); err != nil {
		return domain.Trade{}, fmt.Errorf("rate limiter: %w", err)
	}

	slippage := e.slippageStopLoss
	if rule.Type == domain.RuleTypeTakeProfit {
		slippage = e.slippageTakeProfit
	}
	limitPrice := domain.ClampTrigger(limitPriceFor(currentPrice, slippage))

	limitReq := domain.PlaceOrderRequest{
		MarketID: rule.MarketID, TokenID: rule.TokenID, Side: domain.OrderSideSell,
		Amount: amount, Kind: domain.OrderKindLimit, LimitPrice: &limitPrice,
	}
	e.recordAttempt(ctx, rule, map[string]any{"type": "limit_order", "price": limitPrice})
	result, err := e.broker.PlaceOrder(ctx, limitReq)
	if err == nil {
		return toTrade(rule, limitPrice, amount, result), nil
	}
	if !isNoMatch(err) {
		return domain.Trade{}, err
	}

	e.logger.Info("limit order found no match, retrying at market", slog.String("rule_id", rule.ID))

	if err := e.rateLimiter.Wait(ctx, placeOrderRateLimitKey); err != nil {
		return domain.Trade{}, fmt.Errorf("rate limiter: %w", err)
	}
	marketReq := domain.PlaceOrderRequest{
		MarketID: rule.MarketID, TokenID: rule.TokenID, Side: domain.OrderSideSell,
		Amount: amount, Kind: domain.OrderKindMarket,
	}
	e.recordAttempt(ctx, rule, map[string]any{"type": "market_order"})
	result, err = e.broker.PlaceOrder(ctx, marketReq)
	if err != nil {
		if isNoMatch(err) {
			return domain.Trade{}, fmt.Errorf("no match at market: %w", err)
		}
		return domain.Trade{}, err
	}
	return toTrade(rule, currentPrice, amount, result), nil
}

// limitPriceFor computes the slippage-bounded limit price for the first
// execution tier. Selling at a bound below the current price by slippage
// gives the order room to clear without chasing the book.
func limitPriceFor(currentPrice, slippage float64) float64 {
	return currentPrice * (1 - slippage)
}

func toTrade(rule domain.Rule, price, amount float64, result domain.PlaceOrderResult) domain.Trade {
	return domain.Trade{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		RuleType:     rule.Type,
		MarketID:     rule.MarketID,
		TokenID:      rule.TokenID,
		TradeSide:    domain.OrderSideSell,
		TriggerPrice: rule.TriggerPrice,
		Price:        price,
		Amount:       amount,
		OrderID:      result.OrderID,
		Timestamp:    time.Now().UTC(),
	}
}

type failureClass int

const (
	failureTransient failureClass = iota
	failurePermanent
)

// classify decides whether a broker failure should fail the rule outright
// (permanent) or be logged and left ACTIVE for a future trigger to retry
// (transient). HTTP 400/403/404, a 5xx whose message hints at a missing
// orderbook or no match, explicit rejection messages, and a no-match that
// survives the market-order retry are permanent; everything else —
// timeouts, other 5xx, transport errors, rate limiting — is transient.
func classify(err error) failureClass {
	var berr *domain.BrokerError
	if errors.As(err, &berr) {
		switch berr.StatusCode {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return failurePermanent
		}
		if berr.StatusCode >= 500 {
			hint := strings.ToLower(berr.Message)
			if strings.Contains(hint, "orderbook") || strings.Contains(hint, "no match") {
				return failurePermanent
			}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range permanentMessageSubstrings {
		if strings.Contains(msg, substr) {
			return failurePermanent
		}
	}
	return failureTransient
}

var permanentMessageSubstrings = []string{
	"insufficient funds",
	"invalid token",
	"invalid price",
	"market closed",
	"market resolved",
	"position not found",
	"no orderbook data",
	"no match at market",
}

func isNoMatch(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no match") || strings.Contains(msg, "no liquidity")
}

func (e *Executor) recordAttempt(ctx context.Context, rule domain.Rule, data map[string]any) {
	e.event(ctx, rule.ID, domain.EventActionAttempt, data)
}

func (e *Executor) fail(ctx context.Context, rule domain.Rule, reason string) {
	e.event(ctx, rule.ID, domain.EventActionFailed, map[string]any{"reason": reason, "isPermanent": true})
	if err := e.ruleStore.TransitionToFailed(ctx, rule.ID, reason); err != nil && !errors.Is(err, domain.ErrRuleNotActive) && !errors.Is(err, domain.ErrConflict) {
		e.logger.Error("failed to record rule failure", slog.String("rule_id", rule.ID), slog.Any("error", err))
		return
	}
	e.event(ctx, rule.ID, domain.EventRuleFailed, map[string]any{"reason": reason})
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, string(domain.EventRuleFailed), "Rule failed", fmt.Sprintf("rule %s failed: %s", rule.ID, reason)); err != nil {
			e.logger.Error("notify rule failure failed", slog.String("rule_id", rule.ID), slog.Any("error", err))
		}
	}
}

func (e *Executor) event(ctx context.Context, ruleID string, t domain.EventType, data map[string]any) {
	evt := domain.Event{ID: uuid.NewString(), RuleID: ruleID, Type: t, Data: data, CreatedAt: time.Now().UTC()}
	if err := e.eventLog.Append(ctx, evt); err != nil {
		e.logger.Error("failed to append event", slog.String("rule_id", ruleID), slog.String("type", string(t)), slog.Any("error", err))
	}
}
