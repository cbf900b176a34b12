package guard

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrCapExceeded indicates a lock would push total_locked_tokens beyond
// max_locked_tokens plus any known-users-cap headroom available to the
// caller.
var ErrCapExceeded = errors.New("hydro: locked-token cap exceeded")

// ErrCounterOverflow indicates a cap counter would overflow uint64, which
// would otherwise silently wrap and corrupt the conservation invariant.
var ErrCounterOverflow = errors.New("hydro: cap counter overflow")

// CapCheck evaluates whether adding amount to totalLocked stays within
// maxLockedTokens, falling back to the caller's known-users-cap grant for
// the portion that would otherwise exceed it. It returns the new global
// total and the new cumulative extra-cap usage for the caller.
//
// Arithmetic is performed on uint256 so a cap near the uint64 ceiling can
// never silently wrap before the maxLockedTokens comparison runs.
func CapCheck(totalLocked, amount, maxLockedTokens, userExtraGranted, userExtraUsed uint64) (newTotal uint64, newUserExtraUsed uint64, err error) {
	total := uint256.NewInt(totalLocked)
	add := uint256.NewInt(amount)
	sum, overflow := new(uint256.Int).AddOverflow(total, add)
	if overflow {
		return 0, 0, fmt.Errorf("%w: total_locked + amount", ErrCounterOverflow)
	}

	max := uint256.NewInt(maxLockedTokens)
	if sum.Cmp(max) <= 0 {
		if !sum.IsUint64() {
			return 0, 0, fmt.Errorf("%w: total_locked", ErrCounterOverflow)
		}
		return sum.Uint64(), userExtraUsed, nil
	}

	over := new(uint256.Int).Sub(sum, max)
	granted := uint256.NewInt(userExtraGranted)
	used := uint256.NewInt(userExtraUsed)
	available, underflow := new(uint256.Int).SubOverflow(granted, used)
	if underflow {
		available = uint256.NewInt(0)
	}
	if over.Cmp(available) > 0 {
		return 0, 0, fmt.Errorf("%w: over cap by %s, available extra %s", ErrCapExceeded, over.String(), available.String())
	}
	newUsed, overflow := new(uint256.Int).AddOverflow(used, over)
	if overflow || !newUsed.IsUint64() || !sum.IsUint64() {
		return 0, 0, fmt.Errorf("%w: extra cap usage", ErrCounterOverflow)
	}
	return sum.Uint64(), newUsed.Uint64(), nil
}
