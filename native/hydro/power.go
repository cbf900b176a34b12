package hydro

import (
	"fmt"
	"sort"

	"hydro/native/hydro/decimal"
)

// CurrentRound returns floor((now - firstRoundStart)/roundLength). now and
// firstRoundStart are nanosecond Unix timestamps; roundLength is a
// nanosecond duration.
func CurrentRound(now, firstRoundStart, roundLength int64) (uint64, error) {
	if now < firstRoundStart {
		return 0, fmt.Errorf("%w: round clock not started", ErrInvalidInput)
	}
	if roundLength <= 0 {
		return 0, fmt.Errorf("%w: non-positive round length", ErrInvalidInput)
	}
	return uint64((now - firstRoundStart) / roundLength), nil
}

// RoundEnd returns first_round_start + (r+1)*round_length.
func RoundEnd(round uint64, firstRoundStart, roundLength int64) int64 {
	return firstRoundStart + int64(round+1)*roundLength
}

// RemainingEpochs returns floor((lockEnd - roundEnd)/lockEpochLength). A
// negative result means the lock has zero power this round.
func RemainingEpochs(lockEnd, roundEnd, lockEpochLength int64) int64 {
	if lockEpochLength <= 0 {
		return 0
	}
	diff := lockEnd - roundEnd
	if diff < 0 {
		return -1
	}
	return diff / lockEpochLength
}

// Multiplier selects the largest threshold <= remainingEpochs from an
// ordered RoundLockPowerSchedule. A schedule is expected sorted ascending
// by threshold; Multiplier sorts defensively.
func Multiplier(schedule []RoundLockPowerStep, remainingEpochs int64) decimal.Dec {
	if remainingEpochs < 0 || len(schedule) == 0 {
		return decimal.Zero
	}
	sorted := append([]RoundLockPowerStep(nil), schedule...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LockEpochsThreshold < sorted[j].LockEpochsThreshold })
	best := decimal.Zero
	found := false
	for _, step := range sorted {
		if int64(step.LockEpochsThreshold) <= remainingEpochs {
			best = step.Multiplier
			found = true
			continue
		}
		break
	}
	if !found {
		return decimal.Zero
	}
	return best
}

// ScaledPower computes floor(funds.amount * multiplier) for the given lock
// against the round described by roundEnd/lockEpochLength/schedule.
func ScaledPower(l Lock, roundEnd, lockEpochLength int64, schedule []RoundLockPowerStep) decimal.Dec {
	remaining := RemainingEpochs(l.LockEnd, roundEnd, lockEpochLength)
	mult := Multiplier(schedule, remaining)
	amount := decimal.FromInt64(int64(l.Funds.Amount))
	return decimal.FromInt64(int64(amount.Mul(mult).ToUint64Floor()))
}
