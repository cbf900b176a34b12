package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureRoundPromotesOneRoundAtATimeAndCopiesRatios(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	require.NoError(t, e.RegisterTranche(1, "main"))
	require.NoError(t, e.Store().SetRatio(0, "G", mustDecVal("2")))

	round, err := e.ensureRound()
	require.NoError(t, err)
	require.Equal(t, uint64(0), round)

	// Jump three rounds ahead in one step; ensureRound must promote through
	// every intermediate round so each one's ratio snapshot is seeded.
	e.SetNowFunc(func() int64 { return 3 * 30 * day })
	round, err = e.ensureRound()
	require.NoError(t, err)
	require.Equal(t, uint64(3), round)

	for r := uint64(0); r <= 3; r++ {
		has, err := e.store.HasRatio(r, "G")
		require.NoError(t, err)
		require.True(t, has, "round %d should have a copied-forward ratio", r)
		ratio, err := e.store.Ratio(r, "G")
		require.NoError(t, err)
		require.Equal(t, "2", ratio.String())
	}
}

func TestRoundEndAtMatchesRoundEndFormula(t *testing.T) {
	e := newTestEngine(t)
	c := baseConstants()
	c.FirstRoundStartNanos = 100
	c.RoundLengthNanos = 40
	require.NoError(t, e.UpdateConfig(c))

	end, err := e.RoundEndAt(2)
	require.NoError(t, err)
	require.Equal(t, RoundEnd(2, 100, 40), end)
}

func TestCurrentRoundQueryDoesNotMutateStoredPointer(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))

	_, err := e.ensureRound()
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 5 * 30 * day })
	queried, err := e.CurrentRound()
	require.NoError(t, err)
	require.Equal(t, uint64(5), queried)

	stored, ok, err := e.store.CurrentRoundStored()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), stored)
}
