package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// ErrRuleNotActive is returned by RuleStore transition methods when the
	// rule's current status is not ACTIVE.
	ErrRuleNotActive = errors.New("rule not active")

	// ErrConflict is returned when a transition is refused because the rule
	// was concurrently modified, e.g. externally canceled while an Executor
	// run was already in flight against it.
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidRule is returned when a Rule fails validation at load time:
	// an unrecognized Action variant, an out-of-range triggerPrice, or a
	// TRAILING_STOP rule missing trailingPercent.
	ErrInvalidRule = errors.New("invalid rule")
)
