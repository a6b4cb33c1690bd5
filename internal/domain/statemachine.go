package domain

import (
	"slices"
	"time"
)

// ReasonCode explains a state machine decision or the cause of a recorded transition.
type ReasonCode string

const (
	ReasonOK                      ReasonCode = "OK"
	ReasonUnknownStatus           ReasonCode = "UNKNOWN_STATUS"
	ReasonSameState               ReasonCode = "SAME_STATE"
	ReasonTerminalState           ReasonCode = "TERMINAL_STATE"
	ReasonTransitionNotAllowed    ReasonCode = "TRANSITION_NOT_ALLOWED"
	ReasonDeadlineExceeded        ReasonCode = "DEADLINE_EXCEEDED"
	ReasonDeadlineNotReached      ReasonCode = "DEADLINE_NOT_REACHED"
	ReasonAttemptsExhausted       ReasonCode = "ATTEMPTS_EXHAUSTED"
	ReasonInvalidAmount           ReasonCode = "INVALID_AMOUNT"
	ReasonAmountExceedsAuthorized ReasonCode = "AMOUNT_EXCEEDS_AUTHORIZED"
	ReasonPartialReversal         ReasonCode = "PARTIAL_REVERSAL_NOT_SUPPORTED"

	// Causes of a ConcurrencyError; both surface as errorCode 409.
	ReasonLockTimeout  ReasonCode = "LOCK_TIMEOUT"
	ReasonStaleVersion ReasonCode = "STALE_VERSION"

	// Causes written to TransitionRecord.ReasonCode.
	ReasonMerchantRequest ReasonCode = "MERCHANT_REQUEST"
	ReasonProcessorEvent  ReasonCode = "PROCESSOR_EVENT"
	ReasonDeadlineSweep   ReasonCode = "DEADLINE_SWEEP"
	ReasonStuckRecovery   ReasonCode = "STUCK_RECOVERY"
	ReasonPartialRefund   ReasonCode = "PARTIAL_REFUND"
)

// TransitionContext carries the facts a transition decision depends on.
type TransitionContext struct {
	AttemptCount     int
	MaxAttempts      int
	Now              time.Time
	ExpiresAt        time.Time
	RequestedAmount  int64
	AuthorizedAmount int64
}

func (c TransitionContext) deadlinePassed() bool {
	return !c.ExpiresAt.IsZero() && c.Now.After(c.ExpiresAt)
}

// StateMachine decides whether a lifecycle transition is legal. It holds no
// mutable state and is safe for concurrent use.
type StateMachine struct {
	transitions map[Status][]Status
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusCreated:             {StatusFormShown, StatusCancelled, StatusExpired},
			StatusFormShown:           {StatusVerifying, StatusExpired},
			StatusVerifying:           {StatusAuthorizing, StatusExpired},
			StatusAuthorizing:         {StatusAuthorized, StatusAuthorizationFailed, StatusExpired},
			StatusAuthorizationFailed: {StatusAuthorizing, StatusRejected, StatusExpired},
			StatusAuthorized:          {StatusConfirming, StatusReversing},
			StatusConfirming:          {StatusConfirmed},
			StatusConfirmed:           {StatusRefunding},
			StatusRefunding:           {StatusRefunded},
			StatusReversing:           {StatusReversed},
			StatusCancelled:           {},
			StatusRejected:            {},
			StatusExpired:             {},
			StatusReversed:            {},
			StatusRefunded:            {},
		},
	}
}

// CanTransition reports whether current may move to target under ctx, and
// why not when it may not. Moving into the current state is never allowed.
func (sm *StateMachine) CanTransition(current, target Status, ctx TransitionContext) (bool, ReasonCode) {
	allowed, ok := sm.transitions[current]
	if !ok || !target.Valid() {
		return false, ReasonUnknownStatus
	}
	if current == target {
		return false, ReasonSameState
	}
	if current.IsTerminal() {
		return false, ReasonTerminalState
	}
	if !slices.Contains(allowed, target) {
		return false, ReasonTransitionNotAllowed
	}

	if target == StatusExpired {
		if !ctx.deadlinePassed() {
			return false, ReasonDeadlineNotReached
		}
		return true, ReasonOK
	}
	if current.IsPending() && ctx.deadlinePassed() {
		return false, ReasonDeadlineExceeded
	}

	switch {
	case current == StatusAuthorizationFailed && target == StatusAuthorizing:
		if ctx.AttemptCount >= ctx.MaxAttempts {
			return false, ReasonAttemptsExhausted
		}
	case current == StatusAuthorized && target == StatusConfirming:
		return checkAmount(ctx.RequestedAmount, ctx.AuthorizedAmount)
	case current == StatusAuthorized && target == StatusReversing:
		if ctx.RequestedAmount != 0 && ctx.RequestedAmount != ctx.AuthorizedAmount {
			return false, ReasonPartialReversal
		}
	case current == StatusRefunding && target == StatusRefunded:
		return checkAmount(ctx.RequestedAmount, ctx.AuthorizedAmount)
	}

	return true, ReasonOK
}

// AllowedTargets returns the states reachable from current by the table
// alone, before any context guard is applied.
func (sm *StateMachine) AllowedTargets(current Status) []Status {
	return slices.Clone(sm.transitions[current])
}

func checkAmount(requested, authorized int64) (bool, ReasonCode) {
	if requested <= 0 {
		return false, ReasonInvalidAmount
	}
	if requested > authorized {
		return false, ReasonAmountExceedsAuthorized
	}
	return true, ReasonOK
}
