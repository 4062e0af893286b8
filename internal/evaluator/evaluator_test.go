package evaluator

import (
	"testing"

	"github.com/openmarket/trademanager/internal/domain"
)

func sellRule(typ domain.RuleType, trigger, highWater, trailingPct float64) domain.Rule {
	return domain.Rule{
		ID:              "rule-1",
		Type:            typ,
		Side:            domain.OrderSideSell,
		TriggerPrice:    trigger,
		HighWaterPrice:  highWater,
		TrailingPercent: trailingPct,
		Status:          domain.RuleStatusActive,
	}
}

func TestEvaluateBuySideNeverTriggers(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeStopLoss, 0.50, 0, 0)
	rule.Side = domain.OrderSideBuy

	d := Evaluate(rule, 0.10)
	if d.Kind != NoAction {
		t.Fatalf("buy-side rule should never trigger, got %v", d.Kind)
	}
}

func TestEvaluateStopLossTriggersAtOrBelow(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeStopLoss, 0.50, 0, 0)

	if d := Evaluate(rule, 0.51); d.Kind != NoAction {
		t.Errorf("price above trigger: got %v, want NoAction", d.Kind)
	}
	if d := Evaluate(rule, 0.50); d.Kind != Trigger {
		t.Errorf("price at trigger: got %v, want Trigger", d.Kind)
	}
	if d := Evaluate(rule, 0.49); d.Kind != Trigger {
		t.Errorf("price below trigger: got %v, want Trigger", d.Kind)
	}
}

func TestEvaluateTakeProfitTriggersAtOrAbove(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeTakeProfit, 0.80, 0, 0)

	if d := Evaluate(rule, 0.79); d.Kind != NoAction {
		t.Errorf("price below trigger: got %v, want NoAction", d.Kind)
	}
	if d := Evaluate(rule, 0.80); d.Kind != Trigger {
		t.Errorf("price at trigger: got %v, want Trigger", d.Kind)
	}
	if d := Evaluate(rule, 0.85); d.Kind != Trigger {
		t.Errorf("price above trigger: got %v, want Trigger", d.Kind)
	}
}

func TestEvaluateTrailingStopTriggersBelowTrigger(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeTrailingStop, 0.50, 0.60, 10)

	d := Evaluate(rule, 0.50)
	if d.Kind != Trigger {
		t.Fatalf("got %v, want Trigger", d.Kind)
	}
}

func TestEvaluateTrailingStopAdvancesHighWater(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeTrailingStop, 0.54, 0.60, 10)

	d := Evaluate(rule, 0.70)
	if d.Kind != UpdateTrailing {
		t.Fatalf("got %v, want UpdateTrailing", d.Kind)
	}
	if d.NewHighWater != 0.70 {
		t.Errorf("NewHighWater = %v, want 0.70", d.NewHighWater)
	}
	wantTrigger := 0.70 * 0.9
	if d.NewTrigger != wantTrigger {
		t.Errorf("NewTrigger = %v, want %v", d.NewTrigger, wantTrigger)
	}
}

func TestEvaluateTrailingStopNoUpdateWhenTriggerWouldNotImprove(t *testing.T) {
	t.Parallel()
	// HighWater barely above current trigger's breakeven: new trigger would
	// not exceed the existing trigger, so no update should be proposed.
	rule := sellRule(domain.RuleTypeTrailingStop, 0.60, 0.60, 10)

	d := Evaluate(rule, 0.61)
	if d.Kind != NoAction {
		t.Fatalf("got %v, want NoAction (new trigger %.4f does not improve on %.4f)", d.Kind, 0.61*0.9, rule.TriggerPrice)
	}
}

func TestEvaluateTrailingStopClampsTriggerToMax(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleTypeTrailingStop, 0.01, 0.10, 1)

	d := Evaluate(rule, 0.999)
	if d.Kind != UpdateTrailing {
		t.Fatalf("got %v, want UpdateTrailing", d.Kind)
	}
	if d.NewTrigger > domain.MaxTriggerPrice {
		t.Errorf("NewTrigger = %v exceeds MaxTriggerPrice %v", d.NewTrigger, domain.MaxTriggerPrice)
	}
}

func TestEvaluateUnknownRuleTypeIsNoAction(t *testing.T) {
	t.Parallel()
	rule := sellRule(domain.RuleType("BOGUS"), 0.5, 0, 0)

	if d := Evaluate(rule, 0.1); d.Kind != NoAction {
		t.Fatalf("got %v, want NoAction", d.Kind)
	}
}
