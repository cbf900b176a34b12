package hydro

import (
	"errors"
	"fmt"
)

// Error taxonomy. Specific named conditions wrap one of these sentinels so
// callers can branch on category with errors.Is while the wrapped message
// carries the specific reason.
var (
	ErrInvalidInput      = errors.New("hydro: invalid input")
	ErrUnauthorized      = errors.New("hydro: unauthorized")
	ErrNotFound          = errors.New("hydro: not found")
	ErrPolicyViolation   = errors.New("hydro: policy violation")
	ErrCapacityExceeded  = errors.New("hydro: capacity exceeded")
	ErrArithmeticFailure = errors.New("hydro: arithmetic failure")
	ErrHistoricalAccess  = errors.New("hydro: historical access before snapshot activation")
)

// Named policy-violation conditions, each wrapping ErrPolicyViolation so
// errors.Is(err, ErrPolicyViolation) succeeds regardless of which specific
// condition fired, while errors.Is(err, ErrTokenNotLockable) (etc.) still
// distinguishes the exact reason.
var (
	ErrTokenNotLockable           = fmt.Errorf("hydro: token not lockable: %w", ErrPolicyViolation)
	ErrCapExceeded                = fmt.Errorf("hydro: locked-token cap exceeded: %w", ErrPolicyViolation)
	ErrPauseActive                = fmt.Errorf("hydro: module paused: %w", ErrPolicyViolation)
	ErrProposalDurationOutOfRange = fmt.Errorf("hydro: proposal deployment duration out of range: %w", ErrPolicyViolation)
	ErrVotingLockedUntilRound     = fmt.Errorf("hydro: voting locked until a later round: %w", ErrPolicyViolation)
	ErrMergeHeterogeneousHistory  = fmt.Errorf("hydro: merge inputs have heterogeneous vote history: %w", ErrPolicyViolation)
	ErrLSMNotTransferable         = fmt.Errorf("hydro: LSM-backed lock is not transferable: %w", ErrPolicyViolation)
	ErrUnlockExpiryNotReached     = fmt.Errorf("hydro: lock has not reached its expiry: %w", ErrPolicyViolation)
)
