// Package evaluator implements the pure rule-trigger decision function (C5).
package evaluator

import (
	"github.com/openmarket/trademanager/internal/domain"
)

// DecisionKind enumerates the possible outcomes of Evaluate.
type DecisionKind int

const (
	// NoAction: neither trigger nor trailing update applies.
	NoAction DecisionKind = iota
	// UpdateTrailing: the rule is a TRAILING_STOP whose high-water mark
	// advanced; NewTrigger/NewHighWater carry the proposed new values. The
	// caller (Worker), not the evaluator, is responsible for persisting them.
	UpdateTrailing
	// Trigger: the rule's condition is satisfied and should be executed.
	Trigger
)

// Decision is the result of evaluating one rule against one price.
type Decision struct {
	Kind         DecisionKind
	NewTrigger   float64
	NewHighWater float64
}

// Evaluate is a pure, deterministic function: given a rule and the latest
// price for its token, it returns what should happen next. It never mutates
// rule or performs I/O.
//
// Only side == sell rule semantics are implemented. Buy-side trailing stops
// are unsupported; a buy-side rule always yields NoAction. This asymmetry is
// intentional, not an oversight — see the trailing-stop open question.
func Evaluate(rule domain.Rule, latestPrice float64) Decision {
	if rule.Side != domain.OrderSideSell {
		return Decision{Kind: NoAction}
	}

	switch rule.Type {
	case domain.RuleTypeStopLoss:
		if latestPrice <= rule.TriggerPrice {
			return Decision{Kind: Trigger}
		}
		return Decision{Kind: NoAction}

	case domain.RuleTypeTakeProfit:
		if latestPrice >= rule.TriggerPrice {
			return Decision{Kind: Trigger}
		}
		return Decision{Kind: NoAction}

	case domain.RuleTypeTrailingStop:
		if latestPrice <= rule.TriggerPrice {
			return Decision{Kind: Trigger}
		}
		if latestPrice > rule.HighWaterPrice {
			newHighWater := latestPrice
			newTrigger := domain.ClampTrigger(newHighWater * (1 - rule.TrailingPercent/100))
			if newTrigger > rule.TriggerPrice {
				return Decision{
					Kind:         UpdateTrailing,
					NewTrigger:   newTrigger,
					NewHighWater: newHighWater,
				}
			}
		}
		return Decision{Kind: NoAction}

	default:
		return Decision{Kind: NoAction}
	}
}
