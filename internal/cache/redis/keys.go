package redis

import "strings"

// ruleLockPrefix namespaces the single-flight lock the Executor holds for
// the duration of one rule's Execute call (internal/executor's
// lockKeyPrefix constant supplies the "rule:"+ruleID suffix this wraps).
const ruleLockPrefix = "rule-engine:lock:"

// brokerThrottlePrefix namespaces the sliding-window bucket every broker
// order placement shares, keyed by the Executor's placeOrderRateLimitKey
// constant rather than per-rule, since the venue enforces one request
// budget per account.
const brokerThrottlePrefix = "rule-engine:throttle:"

func lockKey(key string) string {
	return ruleLockPrefix + key
}

func rateLimitKey(key string) string {
	return brokerThrottlePrefix + key
}

// hasPattern reports whether a SignalBus channel name contains glob-style
// wildcards, in which case Subscribe must issue PSUBSCRIBE instead of
// SUBSCRIBE. The engine only ever subscribes to the literal
// domain.RuleChangeChannel today, but trade/event stream consumers added
// later may want wildcard fan-out (e.g. "rules:changed:*").
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}
