package hydro

import (
	"fmt"

	"hydro/native/hydro/decimal"
)

// AddTribute implements §4.G's AddTribute: accepts exactly one coin,
// tags it with the depositor, and assigns a tribute_id.
func (e *Engine) AddTribute(depositor string, tranche, proposal uint64, funds Coin) (Tribute, error) {
	c, err := e.constants()
	if err != nil {
		return Tribute{}, err
	}
	if err := requireNotPaused(c); err != nil {
		return Tribute{}, err
	}
	if funds.Amount == 0 {
		return Tribute{}, fmt.Errorf("%w: tribute funds must be non-zero", ErrInvalidInput)
	}
	round, err := e.ensureRound()
	if err != nil {
		return Tribute{}, err
	}
	if _, ok, err := e.store.GetProposal(round, tranche, proposal); err != nil {
		return Tribute{}, err
	} else if !ok {
		return Tribute{}, fmt.Errorf("%w: proposal %d", ErrNotFound, proposal)
	}

	id, err := e.store.NextID("tribute")
	if err != nil {
		return Tribute{}, err
	}
	t := Tribute{
		TributeID:  id,
		RoundID:    round,
		TrancheID:  tranche,
		ProposalID: proposal,
		Funds:      funds,
		Depositor:  depositor,
	}
	if err := e.store.PutTribute(t); err != nil {
		return Tribute{}, err
	}
	e.emit(TributeDepositedEvent{TributeID: id, ProposalID: proposal, Depositor: depositor, Coin: funds})
	e.audit("add-tribute", depositor, round, tranche, proposal, 0, fmt.Sprintf("tribute %d", id))
	return t, nil
}

// isTopN reports whether proposal ranks within the top
// Constants.TopNProposals of (round, tranche) by cached power, ties broken
// by ascending proposal_id (mirrors TopN's ordering).
func (e *Engine) isTopN(round, tranche, proposal uint64, n uint32) (bool, error) {
	top, err := e.TopN(round, tranche, int(n))
	if err != nil {
		return false, err
	}
	for _, p := range top {
		if p.ProposalID == proposal {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) requireRoundEnded(round uint64) error {
	c, err := e.constants()
	if err != nil {
		return err
	}
	roundEnd := RoundEnd(round, c.FirstRoundStartNanos, c.RoundLengthNanos)
	if e.now() < roundEnd {
		return fmt.Errorf("%w: round %d has not ended", ErrPolicyViolation, round)
	}
	return nil
}

// ClaimTribute implements §4.G's ClaimTribute: only after round end; voter
// must have voted for a top-N proposal with positive power; claim amount is
// floor(floor(tribute.amount*(1-community_tax)) * voter_power/proposal_power),
// each step rounded down so per-voter payouts plus the community share never
// exceed the deposit. Idempotent per (voter, tribute_id).
func (e *Engine) ClaimTribute(round, tranche, tributeID uint64, voter string) (Coin, error) {
	if err := e.requireRoundEnded(round); err != nil {
		return Coin{}, err
	}
	tribute, ok, err := e.store.GetTribute(tributeID)
	if err != nil {
		return Coin{}, err
	}
	if !ok || tribute.RoundID != round || tribute.TrancheID != tranche {
		return Coin{}, fmt.Errorf("%w: tribute %d", ErrNotFound, tributeID)
	}

	if paid, claimed, err := e.store.GetClaim(voter, tributeID); err != nil {
		return Coin{}, err
	} else if claimed {
		return paid, nil
	}

	c, err := e.constants()
	if err != nil {
		return Coin{}, err
	}
	topN, err := e.isTopN(round, tranche, tribute.ProposalID, c.TopNProposals)
	if err != nil {
		return Coin{}, err
	}
	if !topN {
		return Coin{}, fmt.Errorf("%w: proposal %d is not in the top %d of round %d tranche %d", ErrPolicyViolation, tribute.ProposalID, c.TopNProposals, round, tranche)
	}

	proposalPower, err := e.scores.ProposalPower(round, tranche, tribute.ProposalID)
	if err != nil {
		return Coin{}, err
	}
	if proposalPower.IsZero() {
		return Coin{}, fmt.Errorf("%w: proposal %d has zero power", ErrPolicyViolation, tribute.ProposalID)
	}

	voterPower, err := e.voterPower(round, tranche, tribute.ProposalID, voter)
	if err != nil {
		return Coin{}, err
	}
	if voterPower.IsZero() {
		return Coin{}, fmt.Errorf("%w: %s did not vote for proposal %d", ErrPolicyViolation, voter, tribute.ProposalID)
	}

	gross := decimal.FromInt64(int64(tribute.Funds.Amount)).Mul(bpsComplement(c.CommunityTaxBps))
	distributable := decimal.FromInt64(int64(gross.ToUint64Floor()))
	// Multiply by voterPower before dividing by proposalPower (rather than
	// dividing first) so a voter holding all of a proposal's power is paid
	// distributable exactly instead of losing dust to an unnecessary
	// intermediate truncation; after the floor of distributable above, the
	// division is the only other rounding step, and it floors.
	payout, err := distributable.Mul(voterPower).QuoFloor(proposalPower)
	if err != nil {
		return Coin{}, err
	}
	paidCoin := Coin{Denom: tribute.Funds.Denom, Amount: payout.ToUint64Floor()}

	if err := e.store.SetClaim(voter, tributeID, paidCoin); err != nil {
		return Coin{}, err
	}
	e.metrics.tributeClaimed.Inc()
	e.emit(TributeClaimedEvent{TributeID: tributeID, Voter: voter, Paid: paidCoin})
	e.audit("claim-tribute", voter, round, tranche, tribute.ProposalID, 0, fmt.Sprintf("tribute %d paid %d%s", tributeID, paidCoin.Amount, paidCoin.Denom))
	return paidCoin, nil
}

// voterPower sums the scaled shares voter's locks contributed to proposal
// in round/tranche, across every token group, expressed in the group's
// ratio-adjusted power (the same unit ScoreKeeper.ProposalPower sums in).
func (e *Engine) voterPower(round, tranche, proposal uint64, voter string) (decimal.Dec, error) {
	active, err := e.store.OwnerLocks(voter)
	if err != nil {
		return decimal.Zero, err
	}
	consumed, err := e.store.ClaimLocks(voter)
	if err != nil {
		return decimal.Zero, err
	}
	lockIDs := append(append([]uint64(nil), active...), consumed...)
	total := decimal.Zero
	for _, lockID := range lockIDs {
		v, ok, err := e.store.GetVote(round, tranche, lockID)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok || v.ProposalID != proposal {
			continue
		}
		ratio, err := e.store.Ratio(round, v.Shares.TokenGroupID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Shares.Shares.Mul(ratio))
	}
	return total, nil
}

// bpsComplement returns (1 - bps/10000) as a Dec.
func bpsComplement(bps uint32) decimal.Dec {
	one := decimal.One
	frac, _ := decimal.FromInt64(int64(bps)).QuoFloor(decimal.FromInt64(10000))
	return one.Sub(frac)
}

// bpsFraction returns bps/10000 as a Dec.
func bpsFraction(bps uint32) decimal.Dec {
	frac, _ := decimal.FromInt64(int64(bps)).QuoFloor(decimal.FromInt64(10000))
	return frac
}

// RefundTribute implements §4.G's RefundTribute: only for proposals outside
// the top-N of an ended round, only by the depositor, and only once.
func (e *Engine) RefundTribute(round, tranche, tributeID uint64, caller string) (Coin, error) {
	if err := e.requireRoundEnded(round); err != nil {
		return Coin{}, err
	}
	tribute, ok, err := e.store.GetTribute(tributeID)
	if err != nil {
		return Coin{}, err
	}
	if !ok || tribute.RoundID != round || tribute.TrancheID != tranche {
		return Coin{}, fmt.Errorf("%w: tribute %d", ErrNotFound, tributeID)
	}
	if tribute.Depositor != caller {
		return Coin{}, fmt.Errorf("%w: %s is not the depositor of tribute %d", ErrUnauthorized, caller, tributeID)
	}
	if tribute.Refunded {
		return Coin{}, fmt.Errorf("%w: tribute %d already refunded", ErrPolicyViolation, tributeID)
	}

	c, err := e.constants()
	if err != nil {
		return Coin{}, err
	}
	topN, err := e.isTopN(round, tranche, tribute.ProposalID, c.TopNProposals)
	if err != nil {
		return Coin{}, err
	}
	if topN {
		return Coin{}, fmt.Errorf("%w: proposal %d is in the top %d of round %d tranche %d", ErrPolicyViolation, tribute.ProposalID, c.TopNProposals, round, tranche)
	}

	tribute.Refunded = true
	if err := e.store.PutTribute(tribute); err != nil {
		return Coin{}, err
	}
	e.metrics.tributeRefunded.Inc()
	e.emit(TributeRefundedEvent{TributeID: tributeID, Depositor: caller, Coin: tribute.Funds})
	e.audit("refund-tribute", caller, round, tranche, tribute.ProposalID, 0, fmt.Sprintf("tribute %d", tributeID))
	return tribute.Funds, nil
}

// ClaimCommunityPoolTribute implements §4.G's ClaimCommunityPoolTribute:
// for every top-N proposal of an ended round, for every not-yet-claimed
// tribute, it emits a cross-chain-transfer side effect of
// floor(tribute.amount*community_tax) to the configured bucket and marks
// the tribute community-claimed.
func (e *Engine) ClaimCommunityPoolTribute(round, tranche uint64) ([]SideEffect, error) {
	if err := e.requireRoundEnded(round); err != nil {
		return nil, err
	}
	c, err := e.constants()
	if err != nil {
		return nil, err
	}
	top, err := e.TopN(round, tranche, int(c.TopNProposals))
	if err != nil {
		return nil, err
	}

	var effects []SideEffect
	for _, p := range top {
		tributeIDs, err := e.store.ListTributes(round, tranche, p.ProposalID)
		if err != nil {
			return nil, err
		}
		for _, tributeID := range tributeIDs {
			claimed, err := e.store.IsCommunityClaimed(tributeID)
			if err != nil {
				return nil, err
			}
			if claimed {
				continue
			}
			tribute, ok, err := e.store.GetTribute(tributeID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			share := decimal.FromInt64(int64(tribute.Funds.Amount)).Mul(bpsFraction(c.CommunityTaxBps))
			amount := share.ToUint64Floor()
			if amount > 0 {
				effects = append(effects, SideEffect{
					Kind:      SideEffectCrossChainTransfer,
					Recipient: c.CommunityPoolBucket,
					Coin:      Coin{Denom: tribute.Funds.Denom, Amount: amount},
					Memo:      fmt.Sprintf("hydro community tax: tribute %d", tributeID),
				})
			}
			if err := e.store.SetCommunityClaimed(tributeID); err != nil {
				return nil, err
			}
			e.audit("claim-community-tribute", "", round, tranche, p.ProposalID, 0, fmt.Sprintf("tribute %d amount %d", tributeID, amount))
		}
	}
	return effects, nil
}
