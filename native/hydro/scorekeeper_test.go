package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/native/hydro/decimal"
)

func TestApplyDeltaUpdatesSharesAndRoundTotal(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetRatio(0, "G", mustDecVal("2")))
	k := NewScoreKeeper(s)

	delta, err := k.ApplyDelta(ProposalPowerUpdate{RoundID: 0, TrancheID: 1, ProposalID: 7, TokenGroupID: "G", SharesDelta: mustDecVal("100")})
	require.NoError(t, err)
	require.Equal(t, "200", delta.String())

	power, err := k.ProposalPower(0, 1, 7)
	require.NoError(t, err)
	require.Equal(t, "200", power.String())

	total, err := s.RoundTotal(0)
	require.NoError(t, err)
	require.Equal(t, "200", total.String())
}

func TestApplyDeltaZeroIsNoop(t *testing.T) {
	s := newTestStore(t)
	k := NewScoreKeeper(s)
	delta, err := k.ApplyDelta(ProposalPowerUpdate{RoundID: 0, TrancheID: 1, ProposalID: 1, TokenGroupID: "G", SharesDelta: decimal.Zero})
	require.NoError(t, err)
	require.True(t, delta.IsZero())
}

func TestProposalPowerNeverNegative(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetRatio(0, "G", mustDecVal("1")))
	k := NewScoreKeeper(s)
	require.NoError(t, s.SetProposalShares(0, 1, 1, "G", mustDecVal("-5")))

	power, err := k.ProposalPower(0, 1, 1)
	require.NoError(t, err)
	require.True(t, power.IsZero())
}

func TestRewriteRatioMovesRoundTotalByDelta(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetRatio(0, "G", decimal.One))
	k := NewScoreKeeper(s)

	_, err := k.ApplyDelta(ProposalPowerUpdate{RoundID: 0, TrancheID: 1, ProposalID: 1, TokenGroupID: "G", SharesDelta: mustDecVal("100")})
	require.NoError(t, err)

	require.NoError(t, s.SetRatio(0, "G", mustDecVal("1.5")))
	require.NoError(t, k.RewriteRatio(0, 1, 1, "G", decimal.One, mustDecVal("1.5")))

	total, err := s.RoundTotal(0)
	require.NoError(t, err)
	require.Equal(t, "150", total.String())

	power, err := k.ProposalPower(0, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "150", power.String())
}

func TestRewriteRatioSkipsProposalsWithNoShares(t *testing.T) {
	s := newTestStore(t)
	k := NewScoreKeeper(s)
	require.NoError(t, k.RewriteRatio(0, 1, 9, "G", decimal.One, mustDecVal("3")))
	total, err := s.RoundTotal(0)
	require.NoError(t, err)
	require.True(t, total.IsZero())
}
