package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/core/state"
	"hydro/native/hydro/decimal"
	"hydro/storage"
)

const day = int64(24 * 3600 * 1_000_000_000)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kv := state.NewManager(storage.NewMemDB())
	providers := NewProviderRegistry(nil, nil)
	e := NewEngine(kv, providers)
	e.SetNowFunc(func() int64 { return 0 })
	return e
}

func baseConstants() Constants {
	return Constants{
		ActivationTimestamp:   0,
		RoundLengthNanos:      30 * day,
		LockEpochLengthNanos:  30 * day,
		FirstRoundStartNanos:  0,
		MaxLockedTokens:       1_000_000,
		MaxDeploymentDuration: 3,
		RoundLockPowerSchedule: []RoundLockPowerStep{
			{LockEpochsThreshold: 1, Multiplier: decimal.One},
			{LockEpochsThreshold: 2, Multiplier: mustDecVal("1.25")},
			{LockEpochsThreshold: 3, Multiplier: mustDecVal("1.5")},
		},
		TopNProposals:   1,
		CommunityTaxBps: 0,
		LockDepthLimit:  16,
	}
}

func mustDecVal(s string) decimal.Dec {
	d, err := decimal.FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setupDerivative(t *testing.T, e *Engine, denom, group string, ratio decimal.Dec) {
	t.Helper()
	require.NoError(t, e.RegisterTranche(1, "main"))
	require.NoError(t, e.AddTokenInfoProvider(TokenInfoProvider{
		ID: "deriv/" + denom, Kind: ProviderDerivative,
		DerivativeDenom: denom, DerivativeTokenGroup: group,
	}))
	require.NoError(t, e.Store().SetRatio(0, group, ratio))
}

// TestLockVoteRoundEndClaim uses a 6-epoch lock (an allowed duration) so the
// schedule's top multiplier (1.5, threshold 3) applies unambiguously under
// floor((lock_end-round_end)/lock_epoch_length).
func TestLockVoteRoundEndClaim(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)

	prop, err := e.CreateProposal(nil, 1, "P", "desc", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	top, err := e.TopN(0, 1, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, prop.ProposalID, top[0].ProposalID)
	require.Equal(t, "1500", top[0].Power.String())

	trib, err := e.AddTribute("sponsor", 1, prop.ProposalID, Coin{Denom: "D2", Amount: 100})
	require.NoError(t, err)

	e.SetNowFunc(func() int64 { return 30*day + 1 })

	paid, err := e.ClaimTribute(0, 1, trib.TributeID, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(100), paid.Amount)

	// Idempotent: claiming again returns the same result without error.
	paid2, err := e.ClaimTribute(0, 1, trib.TributeID, "alice")
	require.NoError(t, err)
	require.Equal(t, paid, paid2)
}

// TestVoteSwitchThenRatioChange is spec.md §8 scenario 2.
func TestVoteSwitchThenRatioChange(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)

	p1, err := e.CreateProposal(nil, 1, "P1", "", 1, 0)
	require.NoError(t, err)
	p2, err := e.CreateProposal(nil, 1, "P2", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p1.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
	power1, err := e.scores.ProposalPower(0, 1, p1.ProposalID)
	require.NoError(t, err)
	require.Equal(t, "1500", power1.String())

	// Same transaction (message): switch lock 0's vote to P2.
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: p2.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	power1, err = e.scores.ProposalPower(0, 1, p1.ProposalID)
	require.NoError(t, err)
	require.True(t, power1.IsZero())
	power2, err := e.scores.ProposalPower(0, 1, p2.ProposalID)
	require.NoError(t, err)
	require.Equal(t, "1500", power2.String())

	total, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)
	require.Equal(t, "1500", total.String())

	require.NoError(t, e.UpdateTokenGroupRatio("G", decimal.One, mustDecVal("1.6")))

	power2, err = e.scores.ProposalPower(0, 1, p2.ProposalID)
	require.NoError(t, err)
	require.Equal(t, "2400", power2.String())

	total, err = e.RoundTotalVotingPower(0)
	require.NoError(t, err)
	require.Equal(t, "2400", total.String())
}

// TestSplitPreservesHistory is spec.md §8 scenario 3.
func TestSplitPreservesHistory(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 6)
	require.NoError(t, err)

	prop, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	// Split within the same round the parent voted in: the child inherits a
	// companion vote at shares proportional to the split fraction.
	parent, child, err := e.Split("alice", lock.LockID, 400)
	require.NoError(t, err)
	require.Equal(t, uint64(600), parent.Funds.Amount)
	require.Equal(t, uint64(400), child.Funds.Amount)

	parentVote, ok, err := e.store.GetVote(0, 1, lock.LockID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prop.ProposalID, parentVote.ProposalID)
	require.Equal(t, "1500", parentVote.Shares.Shares.String())

	childVote, ok, err := e.store.GetVote(0, 1, child.LockID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prop.ProposalID, childVote.ProposalID)
	require.Equal(t, "600", childVote.Shares.Shares.String())

	total, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)
	require.Equal(t, "2100", total.String())

	// A split in a later round still registers the child under the round the
	// parent voted in, at zero shares, so history shows the lineage without
	// inflating that round's total.
	e.SetNowFunc(func() int64 { return 2 * 30 * day })
	grandparent, grandchild, err := e.Split("alice", parent.LockID, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(500), grandparent.Funds.Amount)
	grandchildVote, ok, err := e.store.GetVote(0, 1, grandchild.LockID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, grandchildVote.Shares.Shares.IsZero())
}

// TestVotingLockoutAndEarlyRelease is spec.md §8 scenario 4.
func TestVotingLockoutAndEarlyRelease(t *testing.T) {
	e := newTestEngine(t)
	c := baseConstants()
	c.MaxDeploymentDuration = 3
	require.NoError(t, e.UpdateConfig(c))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1000}, 12)
	require.NoError(t, err)

	q, err := e.CreateProposal(nil, 1, "Q", "", 3, 0)
	require.NoError(t, err)
	other, err := e.CreateProposal(nil, 1, "Other", "", 1, 0)
	require.NoError(t, err)

	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: q.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	// Round 1: the same lock cannot vote for any proposal.
	e.SetNowFunc(func() int64 { return 30 * day })
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: other.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.ErrorIs(t, err, ErrVotingLockedUntilRound)

	// A zero-funds deployment for Q, recorded during round 1 under Q's voting
	// round (round 0), releases the lock early.
	require.NoError(t, e.RecordDeployment(0, 1, q.ProposalID, Coin{}))
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: other.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)
}

// TestCapEnforcement is spec.md §8 scenario 5.
func TestCapEnforcement(t *testing.T) {
	e := newTestEngine(t)
	c := baseConstants()
	c.MaxLockedTokens = 2000
	require.NoError(t, e.UpdateConfig(c))
	setupDerivative(t, e, "D", "G", decimal.One)

	_, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 1500}, 1)
	require.NoError(t, err)

	_, _, err = e.Lock("bob", Coin{Denom: "D", Amount: 1000}, 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	_, _, err = e.Lock("bob", Coin{Denom: "D", Amount: 500}, 1)
	require.NoError(t, err)

	c2 := c
	c2.ActivationTimestamp = 1
	c2.KnownUsersCap = 285
	require.NoError(t, e.UpdateConfig(c2))
	e.SetNowFunc(func() int64 { return 1 })

	_, _, err = e.Lock("alice", Coin{Denom: "D", Amount: 285}, 1)
	require.NoError(t, err)

	_, _, err = e.Lock("alice", Coin{Denom: "D", Amount: 1}, 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

// lsmFake implements LSMDenomResolver and ValidatorPowerSource for
// TestLSMTopNDropout.
type lsmFake struct {
	validator string
	inTopN    bool
}

func (f *lsmFake) ResolveValidator(channelID, denom string) (string, bool) {
	if denom == "ibc/lsm-share" {
		return f.validator, true
	}
	return "", false
}

func (f *lsmFake) InTopN(round uint64, validatorAddr string) bool {
	return validatorAddr == f.validator && f.inTopN
}

// TestLSMTopNDropout is spec.md §8 scenario 6: a validator dropping out of
// top-N zeroes its ratio contribution without deleting any vote entry.
func TestLSMTopNDropout(t *testing.T) {
	kv := state.NewManager(storage.NewMemDB())
	fake := &lsmFake{validator: "valoper1", inTopN: true}
	providers := NewProviderRegistry(fake, fake)
	e := NewEngine(kv, providers)
	e.SetNowFunc(func() int64 { return 0 })
	c := baseConstants()
	require.NoError(t, e.UpdateConfig(c))
	require.NoError(t, e.RegisterTranche(1, "main"))
	require.NoError(t, e.AddTokenInfoProvider(TokenInfoProvider{
		ID: "lsm_token_info_provider", Kind: ProviderLSM, TransferChannelID: "channel-0",
	}))
	require.NoError(t, e.Store().SetRatio(0, "validator/valoper1", decimal.One))

	lock, _, err := e.Lock("alice", Coin{Denom: "ibc/lsm-share", Amount: 1000}, 6)
	require.NoError(t, err)
	prop, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{lock.LockID}}})
	require.NoError(t, err)

	power, err := e.scores.ProposalPower(0, 1, prop.ProposalID)
	require.NoError(t, err)
	require.Equal(t, "1500", power.String())

	// V1 drops out of top-N: ratio goes to zero, no vote row is deleted.
	require.NoError(t, e.UpdateTokenGroupRatio("validator/valoper1", decimal.One, decimal.Zero))

	power, err = e.scores.ProposalPower(0, 1, prop.ProposalID)
	require.NoError(t, err)
	require.True(t, power.IsZero())

	total, err := e.RoundTotalVotingPower(0)
	require.NoError(t, err)
	require.True(t, total.IsZero())

	_, ok, err := e.store.GetVote(0, 1, lock.LockID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnlockBeforeExpiryFails(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	lock, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 100}, 1)
	require.NoError(t, err)

	_, err = e.Unlock("alice", []uint64{lock.LockID})
	require.ErrorIs(t, err, ErrUnlockExpiryNotReached)

	e.SetNowFunc(func() int64 { return lock.LockEnd + 1 })
	effects, err := e.Unlock("alice", []uint64{lock.LockID})
	require.NoError(t, err)
	require.Len(t, effects, 1)
	require.Equal(t, uint64(100), effects[0].Coin.Amount)
}

func TestMergeRequiresUniformEligibilityForCurrentRoundVote(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.UpdateConfig(baseConstants()))
	setupDerivative(t, e, "D", "G", decimal.One)

	l1, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 500}, 6)
	require.NoError(t, err)
	l2, _, err := e.Lock("alice", Coin{Denom: "D", Amount: 500}, 3)
	require.NoError(t, err)

	prop, err := e.CreateProposal(nil, 1, "P", "", 1, 0)
	require.NoError(t, err)
	_, err = e.Vote("alice", 1, []VoteLockRequest{{ProposalID: prop.ProposalID, LockIDs: []uint64{l1.LockID, l2.LockID}}})
	require.NoError(t, err)

	merged, err := e.Merge("alice", []uint64{l1.LockID, l2.LockID})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), merged.Funds.Amount)

	v, ok, err := e.store.GetVote(0, 1, merged.LockID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prop.ProposalID, v.ProposalID)
	require.False(t, v.Shares.Shares.IsZero())
}
