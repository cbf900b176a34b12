package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/native/hydro/decimal"
)

func TestCurrentRoundFloorsDivision(t *testing.T) {
	const day = int64(24 * 3600 * 1_000_000_000)
	first := int64(1_000 * day)
	roundLength := 30 * day

	r, err := CurrentRound(first, first, roundLength)
	require.NoError(t, err)
	require.Equal(t, uint64(0), r)

	r, err = CurrentRound(first+roundLength-1, first, roundLength)
	require.NoError(t, err)
	require.Equal(t, uint64(0), r)

	r, err = CurrentRound(first+roundLength, first, roundLength)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r)
}

func TestCurrentRoundBeforeFirstRoundStartFails(t *testing.T) {
	_, err := CurrentRound(0, 100, 10)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRoundEnd(t *testing.T) {
	require.Equal(t, int64(130), RoundEnd(2, 10, 40))
}

func TestRemainingEpochsNegativeBelowZero(t *testing.T) {
	require.Equal(t, int64(-1), RemainingEpochs(5, 10, 2))
}

func TestMultiplierPicksLargestThresholdAtOrBelow(t *testing.T) {
	schedule := []RoundLockPowerStep{
		{LockEpochsThreshold: 1, Multiplier: decimal.One},
		{LockEpochsThreshold: 2, Multiplier: mustDec(t, "1.25")},
		{LockEpochsThreshold: 3, Multiplier: mustDec(t, "1.5")},
	}
	require.Equal(t, "1.5", Multiplier(schedule, 3).String())
	require.Equal(t, "1.5", Multiplier(schedule, 10).String())
	require.Equal(t, "1.25", Multiplier(schedule, 2).String())
	require.True(t, Multiplier(schedule, 0).IsZero())
	require.True(t, Multiplier(schedule, -1).IsZero())
}

func TestScaledPowerFloorsProduct(t *testing.T) {
	schedule := []RoundLockPowerStep{
		{LockEpochsThreshold: 1, Multiplier: decimal.One},
		{LockEpochsThreshold: 3, Multiplier: mustDec(t, "1.5")},
	}
	l := Lock{Funds: Coin{Denom: "D", Amount: 1000}, LockEnd: 100}
	// roundEnd=0, lockEpochLength=10: remaining=(100-0)/10=10 epochs -> multiplier 1.5
	got := ScaledPower(l, 0, 10, schedule)
	require.Equal(t, "1500", got.String())
}

func mustDec(t *testing.T, s string) decimal.Dec {
	t.Helper()
	d, err := decimal.FromString(s)
	require.NoError(t, err)
	return d
}
