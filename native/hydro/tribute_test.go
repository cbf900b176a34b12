package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/native/hydro/decimal"
)

func tributeEngine(t *testing.T) (*Engine, Proposal) {
	t.Helper()
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)
	prop, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	return e, prop
}

func TestAddTributeRejectsUnknownProposal(t *testing.T) {
	e, _ := tributeEngine(t)
	_, err := e.AddTribute("sponsor", 1, 9999, Coin{Denom: "D2", Amount: 100})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimTributeRejectsBeforeRoundEnd(t *testing.T) {
	e, prop := tributeEngine(t)
	trib, err := e.AddTribute("sponsor", 1, prop.ProposalID, Coin{Denom: "D2", Amount: 100})
	require.NoError(t, err)

	_, err = e.ClaimTribute(0, 1, trib.TributeID, "alice")
	require.ErrorIs(t, err, ErrPolicyViolation)
}

func TestClaimTributeRejectsNonVoter(t *testing.T) {
	e, prop := tributeEngine(t)
	trib, err := e.AddTribute("sponsor", 1, prop.ProposalID, Coin{Denom: "D2", Amount: 100})
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 30*day + 1 })
	_, err = e.ClaimTribute(0, 1, trib.TributeID, "mallory")
	require.ErrorIs(t, err, ErrPolicyViolation)
}

// TestClaimTributeSplitsAcrossVoters covers §8's tribute conservation
// invariant: two voters of unequal power split a tribute in proportion to
// their power, and the sum never exceeds the deposit.
func TestClaimTributeSplitsAcrossVoters(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	l1, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6) // 1.5x -> 1500
	require.NoError(t, err)
	l2, _, err := e.Lock("bob", Coin{Denom: "D", Amount: 500}, 6) // 1.5x -> 750
	require.NoError(t, err)

	prop, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{l1.LockID}}})
	require.NoError(t, err)
	_, err = e.Vote("bob", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{l2.LockID}}})
	require.NoError(t, err)

	trib, err := e.AddTribute("sponsor", 1, prop.ProposalID, Coin{Denom: "D2", Amount: 2250})
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 30*day + 1 })

	paidAlice, err := e.ClaimTribute(0, 1, trib.TributeID, "alice")
	require.NoError(t, err)
	paidBob, err := e.ClaimTribute(0, 1, trib.TributeID, "bob")
	require.NoError(t, err)

	require.Equal(t, uint64(1500), paidAlice.Amount)
	require.Equal(t, uint64(750), paidBob.Amount)
	require.LessOrEqual(t, paidAlice.Amount+paidBob.Amount, trib.Funds.Amount)
}

// TestRefundTributeOnlyOutsideTopN covers §4.G RefundTribute's top-N gate
// and depositor-only, once-only invariants.
func TestRefundTributeOnlyOutsideTopN(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	winner, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)

	p1, err := e.CreateProposal(nil, 1, "Winner", "", 1, 0)
	require.NoError(t, err)
	p2, err := e.CreateProposal(nil, 1, "Loser", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p1.ProposalID, LockIDs: []uint64{winner.LockID}}})
	require.NoError(t, err)

	tribWinner, err := e.AddTribute("sponsor", 1, p1.ProposalID, Coin{Denom: "D2", Amount: 100})
	require.NoError(t, err)
	tribLoser, err := e.AddTribute("sponsor", 1, p2.ProposalID, Coin{Denom: "D2", Amount: 50})
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 30*day + 1 })

	_, err = e.RefundTribute(0, 1, tribWinner.TributeID, "sponsor")
	require.ErrorIs(t, err, ErrPolicyViolation)

	refunded, err := e.RefundTribute(0, 1, tribLoser.TributeID, "sponsor")
	require.NoError(t, err)
	require.Equal(t, tribLoser.Funds, refunded)

	_, err = e.RefundTribute(0, 1, tribLoser.TributeID, "sponsor")
	require.ErrorIs(t, err, ErrPolicyViolation)

	_, err = e.RefundTribute(0, 1, tribWinner.TributeID, "mallory")
	require.ErrorIs(t, err, ErrUnauthorized)
}

// TestClaimCommunityPoolTributeRoutesBpsShareAndMarksClaimed covers §4.G's
// ClaimCommunityPoolTribute.
func TestClaimCommunityPoolTributeRoutesBpsShareAndMarksClaimed(t *testing.T) {
	e, prop := tributeEngine(t)
	c := baseConstants()
	c.CommunityTaxBps = 1000 // 10%
	c.CommunityPoolBucket = "community-bucket"
	require.NoError(t, e.UpdateConfig(c))

	trib, err := e.AddTribute("sponsor", 1, prop.ProposalID, Coin{Denom: "D2", Amount: 1000})
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 30*day + 1 })

	effects, err := e.ClaimCommunityPoolTribute(0, 1)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, uint64(100), effects[0].Coin.Amount)
	require.Equal(t, "community-bucket", effects[0].Recipient)

	claimed, err := e.store.IsCommunityClaimed(trib.TributeID)
	require.NoError(t, err)
	require.True(t, claimed)

	// A second call is a no-op: the tribute is already marked claimed.
	effects, err = e.ClaimCommunityPoolTribute(0, 1)
	require.NoError(t, err)
	require.Len(t, effects, 0)
}
