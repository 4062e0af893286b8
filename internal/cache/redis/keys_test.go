package redis

import "testing"

func TestLockKeyPrefixesWithRuleEngineLock(t *testing.T) {
	t.Parallel()
	if got := lockKey("rule:rule-1"); got != "rule-engine:lock:rule:rule-1" {
		t.Errorf("lockKey = %q, want rule-engine:lock:rule:rule-1", got)
	}
}

func TestRateLimitKeyPrefixesWithRuleEngineThrottle(t *testing.T) {
	t.Parallel()
	if got := rateLimitKey("broker:place-order"); got != "rule-engine:throttle:broker:place-order" {
		t.Errorf("rateLimitKey = %q, want rule-engine:throttle:broker:place-order", got)
	}
}

func TestHasPatternDetectsGlobWildcards(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"rule.changed":   false,
		"rule.*":         true,
		"rule.?":         true,
		"rule.[ab]":      true,
		"plain-channel":  false,
	}
	for channel, want := range cases {
		if got := hasPattern(channel); got != want {
			t.Errorf("hasPattern(%q) = %v, want %v", channel, got, want)
		}
	}
}
