package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/native/hydro/decimal"
)

func voteEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)
	return e
}

func TestCreateProposalRejectsUnknownTranche(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	_, err := e.CreateProposal(nil, 99, "P", "", 1, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProposalRejectsOutOfRangeDeploymentDuration(t *testing.T) {
	e := voteEngine(t)
	_, err := e.CreateProposal(nil, 1, "P", "", 0, 0)
	require.ErrorIs(t, err, ErrProposalDurationOutOfRange)

	c := baseConstants()
	c.MaxDeploymentDuration = 2
	require.NoError(t, e.UpdateConfig(c))
	_, err = e.CreateProposal(nil, 1, "P", "", 3, 0)
	require.ErrorIs(t, err, ErrProposalDurationOutOfRange)
}

func TestVoteRejectsDuplicateProposalOrLock(t *testing.T) {
	e := voteEngine(t)
	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 100}, 1)
	require.NoError(t, err)
	p1, err := e.CreateProposal(nil, 1, "P1", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{
		{ProposalID: p1.ProposalID, LockIDs: []uint64{lock.LockID}},
		{ProposalID: p1.ProposalID, LockIDs: []uint64{lock.LockID}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	p2, err := e.CreateProposal(nil, 1, "P2", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{
		{ProposalID: p1.ProposalID, LockIDs: []uint64{lock.LockID}},
		{ProposalID: p2.ProposalID, LockIDs: []uint64{lock.LockID}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestVoteRejectsLockNotOwnedByCaller(t *testing.T) {
	e := voteEngine(t)
	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 100}, 1)
	require.NoError(t, err)
	p, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("bob", 1, []VoteLockRequest{{ProposalID: p.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.ErrorIs(t, err, ErrUnauthorized)
}

// TestIdempotentVoting covers §8's "Idempotent voting" invariant: voting for
// the same proposal with the same locks twice in a row is a no-op.
func TestIdempotentVoting(t *testing.T) {
	e := voteEngine(t)
	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)
	p, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	power1, err := e.scores.ProposalPower(0, 1, p.ProposalID)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	power2, err := e.scores.ProposalPower(0, 1, p.ProposalID)
	require.NoError(t, err)
	require.Equal(t, power1.String(), power2.String())

	total, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)
	require.Equal(t, power1.String(), total.String())
}

// TestVoteSkipsNoLongerLockableDenomSilently covers §4.E step 3: a lock
// whose token group is no longer lockable is skipped, not rejected.
func TestVoteSkipsNoLongerLockableDenomSilently(t *testing.T) {
	e := voteEngine(t)
	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 100}, 1)
	require.NoError(t, err)
	p, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)

	require.NoError(t, e.RemoveTokenInfoProvider("deriv/D"))

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	_, ok, err := e.store.GetVote(0, 1, lock.LockID)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestTopNBreaksTiesByAscendingProposalID covers §8's top-N monotonicity
// invariant's tie-break clause.
func TestTopNBreaksTiesByAscendingProposalID(t *testing.T) {
	e := voteEngine(t)
	l1, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)
	l2, _, err := e.Lock("bob", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)

	p1, err := e.CreateProposal(nil, 1, "P1", "", 1, 0)
	require.NoError(t, err)
	p2, err := e.CreateProposal(nil, 1, "P2", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("bob", 1, []VoteLockRequest{{ProposalID: p2.ProposalID, LockIDs: []uint64{l2.LockID}}})
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p1.ProposalID, LockIDs: []uint64{l1.LockID}}})
	require.NoError(t, err)

	top, err := e.TopN(0, 1, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, p1.ProposalID, top[0].ProposalID)
	require.Equal(t, p2.ProposalID, top[1].ProposalID)
}

// TestAtomicSwitchPreservesRoundTotal covers §8's "Atomic switch" invariant
// directly against RoundTotalVotingPower (TestVoteSwitchThenRatioChange in
// engine_test.go covers the same scenario via per-proposal power).
func TestAtomicSwitchPreservesRoundTotal(t *testing.T) {
	e := voteEngine(t)
	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)
	p1, err := e.CreateProposal(nil, 1, "P1", "", 1, 0)
	require.NoError(t, err)
	p2, err := e.CreateProposal(nil, 1, "P2", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p1.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	totalBefore, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p2.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	totalAfter, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)

	require.Equal(t, totalBefore.String(), totalAfter.String())
}
