package hydro

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"hydro/native/hydro/decimal"
)

// RegisterTranche is the administrative message that creates a tranche id
// (e.g. "Community Pool", "Outpost") so CreateProposal's tranche_id
// argument resolves to something. Re-registering an existing id is a
// no-op, matching Store.RegisterTranche's idempotent write.
func (e *Engine) RegisterTranche(id uint64, name string) error {
	if err := e.store.RegisterTranche(id, name); err != nil {
		return err
	}
	e.audit("register-tranche", "", 0, id, 0, 0, name)
	return nil
}

// CreateProposal implements §4.E's CreateProposal: defaults round to
// current; fails if paused, if deployment_duration is outside
// [1, max_deployment_duration], or if tranche is unknown.
func (e *Engine) CreateProposal(roundID *uint64, trancheID uint64, title, description string, deploymentDuration uint64, minimumAtomLiquidityRequest uint64) (Proposal, error) {
	c, err := e.constants()
	if err != nil {
		return Proposal{}, err
	}
	if err := requireNotPaused(c); err != nil {
		return Proposal{}, err
	}
	exists, err := e.store.TrancheExists(trancheID)
	if err != nil {
		return Proposal{}, err
	}
	if !exists {
		return Proposal{}, fmt.Errorf("%w: tranche %d", ErrNotFound, trancheID)
	}
	if deploymentDuration < 1 || deploymentDuration > c.MaxDeploymentDuration {
		return Proposal{}, fmt.Errorf("%w: deployment_duration %d outside [1,%d]", ErrProposalDurationOutOfRange, deploymentDuration, c.MaxDeploymentDuration)
	}

	round, err := e.ensureRound()
	if err != nil {
		return Proposal{}, err
	}
	if roundID != nil {
		round = *roundID
	}

	id, err := e.store.NextID(fmt.Sprintf("proposal/%d/%d", round, trancheID))
	if err != nil {
		return Proposal{}, err
	}
	sum := blake3.Sum256([]byte(title + "\x00" + description))
	p := Proposal{
		RoundID:                     round,
		TrancheID:                   trancheID,
		ProposalID:                  id,
		Title:                       title,
		Description:                 description,
		DeploymentDuration:          deploymentDuration,
		MinimumAtomLiquidityRequest: minimumAtomLiquidityRequest,
		ContentHash:                 hex.EncodeToString(sum[:]),
	}
	if err := e.store.PutProposal(p); err != nil {
		return Proposal{}, err
	}
	e.emit(ProposalCreatedEvent{RoundID: round, TrancheID: trancheID, ProposalID: id})
	e.audit("create-proposal", "", round, trancheID, id, 0, title)
	return p, nil
}

// voteIntent is the internal per-lock decision reached during the vote
// pass of §4.E step 3.
type voteIntent struct {
	lockID       uint64
	proposalID   uint64
	tokenGroupID string
	shares       decimal.Dec
	skip         bool
}

// Vote implements §4.E's Vote: preflight validation, an unvote pass that
// reverses every existing vote among the targeted locks (or marks it a
// same-target no-op), then a vote pass that enforces the voting lockout,
// resolves token groups, computes scaled shares, and accumulates deltas —
// applied to the score keeper atomically at the end.
func (e *Engine) Vote(caller string, trancheID uint64, requests []VoteLockRequest) ([]SideEffect, error) {
	_, span := e.span("hydro.Vote")
	defer span.End()
	c, err := e.constants()
	if err != nil {
		return nil, err
	}
	if err := requireNotPaused(c); err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: vote message has no proposals", ErrInvalidInput)
	}

	seenProposal := map[uint64]bool{}
	seenLock := map[uint64]bool{}
	for _, req := range requests {
		if seenProposal[req.ProposalID] {
			return nil, fmt.Errorf("%w: proposal %d repeated in vote message", ErrInvalidInput, req.ProposalID)
		}
		seenProposal[req.ProposalID] = true
		for _, lockID := range req.LockIDs {
			if seenLock[lockID] {
				return nil, fmt.Errorf("%w: lock %d repeated in vote message", ErrInvalidInput, lockID)
			}
			seenLock[lockID] = true
			lock, ok, err := e.store.GetLock(lockID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
			}
			if lock.Owner != caller {
				return nil, fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, lockID, caller)
			}
		}
	}

	round, err := e.ensureRound()
	if err != nil {
		return nil, err
	}
	roundEnd := RoundEnd(round, c.FirstRoundStartNanos, c.RoundLengthNanos)

	deltas := map[string]ProposalPowerUpdate{}
	addDelta := func(round, tranche, proposal uint64, tokenGroup string, shares decimal.Dec) {
		key := fmt.Sprintf("%d/%d/%d/%s", round, tranche, proposal, tokenGroup)
		upd, ok := deltas[key]
		if !ok {
			upd = ProposalPowerUpdate{RoundID: round, TrancheID: tranche, ProposalID: proposal, TokenGroupID: tokenGroup}
		}
		upd.SharesDelta = upd.SharesDelta.Add(shares)
		deltas[key] = upd
	}

	skip := map[uint64]bool{}

	// --- unvote pass ---
	for _, req := range requests {
		for _, lockID := range req.LockIDs {
			existing, ok, err := e.store.GetVote(round, trancheID, lockID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if existing.ProposalID == req.ProposalID {
				skip[lockID] = true
				continue
			}
			addDelta(round, trancheID, existing.ProposalID, existing.Shares.TokenGroupID, existing.Shares.Shares.Neg())
			if err := e.store.DeleteVote(round, trancheID, lockID); err != nil {
				return nil, err
			}
			if err := e.clearVotingAllowedRound(trancheID, lockID); err != nil {
				return nil, err
			}
		}
	}

	// --- vote pass ---
	var intents []voteIntent
	for _, req := range requests {
		for _, lockID := range req.LockIDs {
			if skip[lockID] {
				continue
			}
			lock, _, err := e.store.GetLock(lockID)
			if err != nil {
				return nil, err
			}

			if err := e.enforceVotingLockout(trancheID, lockID, round); err != nil {
				return nil, err
			}

			tokenGroup, err := e.providers.ValidateDenom(round, lock.Funds.Denom)
			if err != nil {
				// §4.E step 3: "if it is no longer lockable, skip this lock
				// silently."
				continue
			}
			shares := ScaledPower(lock, roundEnd, c.LockEpochLengthNanos, c.RoundLockPowerSchedule)
			if shares.IsZero() {
				continue
			}
			intents = append(intents, voteIntent{lockID: lockID, proposalID: req.ProposalID, tokenGroupID: tokenGroup, shares: shares})
		}
	}

	for _, intent := range intents {
		proposal, ok, err := e.store.GetProposal(round, trancheID, intent.proposalID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: proposal %d", ErrNotFound, intent.proposalID)
		}
		if err := e.store.PutVote(round, trancheID, intent.lockID, Vote{
			ProposalID: intent.proposalID,
			Shares:     TimeWeightedShares{TokenGroupID: intent.tokenGroupID, Shares: intent.shares},
		}); err != nil {
			return nil, err
		}
		if err := e.store.SetVotingAllowedRound(trancheID, intent.lockID, round+proposal.DeploymentDuration); err != nil {
			return nil, err
		}
		addDelta(round, trancheID, intent.proposalID, intent.tokenGroupID, intent.shares)
	}

	for _, upd := range deltas {
		if _, err := e.scores.ApplyDelta(upd); err != nil {
			return nil, err
		}
	}

	e.emit(VoteCastEvent{RoundID: round, TrancheID: trancheID, Voter: caller, LockCount: len(seenLock)})
	e.audit("vote", caller, round, trancheID, 0, 0, fmt.Sprintf("%d proposals", len(requests)))
	return nil, nil
}

// clearVotingAllowedRound implements §4.E step 2's "remove the existing
// vote entry and the corresponding voting_allowed_round entry" clause. A
// successful vote always writes voting_allowed_round = round+deployment_
// duration with deployment_duration >= 1, so the entry is strictly greater
// than the current round immediately after voting; leaving it in place
// would make enforceVotingLockout reject the very next vote switch by the
// same lock in the same round (it would look for the just-deleted vote row
// via lastTiedProposal and, finding none, refuse the vote as locked).
func (e *Engine) clearVotingAllowedRound(tranche, lockID uint64) error {
	return e.store.DeleteVotingAllowedRound(tranche, lockID)
}

// enforceVotingLockout implements §4.E step 3's lockout check: if
// voting_allowed_round[tranche, lockID] exists and is > current_round, the
// vote is permitted only when a deployment exists for the lock's
// previously-tied proposal with zero funds.
func (e *Engine) enforceVotingLockout(tranche, lockID, currentRound uint64) error {
	allowed, ok, err := e.store.GetVotingAllowedRound(tranche, lockID)
	if err != nil {
		return err
	}
	if !ok || allowed <= currentRound {
		return nil
	}
	tiedRound, tiedProposal, ok, err := e.lastTiedProposal(tranche, lockID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: lock %d locked until round %d", ErrVotingLockedUntilRound, lockID, allowed)
	}
	funds, exists, err := e.store.GetDeployment(tiedRound, tranche, tiedProposal)
	if err != nil {
		return err
	}
	if !exists || funds.Amount != 0 {
		return fmt.Errorf("%w: lock %d locked until round %d", ErrVotingLockedUntilRound, lockID, allowed)
	}
	return nil
}

// lastTiedProposal finds the most recent round (strictly before now) in
// which lockID carried a non-zero-power vote for tranche, which is the
// proposal its current voting_allowed_round lockout is tied to.
func (e *Engine) lastTiedProposal(tranche, lockID uint64) (round, proposalID uint64, ok bool, err error) {
	rounds, err := e.store.VotedRounds(tranche, lockID)
	if err != nil {
		return 0, 0, false, err
	}
	for i := len(rounds) - 1; i >= 0; i-- {
		v, exists, err := e.store.GetVote(rounds[i], tranche, lockID)
		if err != nil {
			return 0, 0, false, err
		}
		if exists && !v.Shares.Shares.IsZero() {
			return rounds[i], v.ProposalID, true, nil
		}
	}
	return 0, 0, false, nil
}

// TopN returns the n proposals of (round, tranche) with the greatest
// cached power, ties broken by ascending proposal_id, per §4.G / §8.
func (e *Engine) TopN(round, tranche uint64, n int) ([]Proposal, error) {
	proposals, err := e.store.ListProposals(round, tranche)
	if err != nil {
		return nil, err
	}
	scoredList := make([]scored, 0, len(proposals))
	for _, p := range proposals {
		power, err := e.scores.ProposalPower(round, tranche, p.ProposalID)
		if err != nil {
			return nil, err
		}
		p.Power = power
		scoredList = append(scoredList, scored{p: p, power: power})
	}
	sortScored(scoredList)
	if n > len(scoredList) {
		n = len(scoredList)
	}
	out := make([]Proposal, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, scoredList[i].p)
	}
	return out, nil
}

// scored pairs a proposal with its looked-up power for TopN's sort.
type scored struct {
	p     Proposal
	power decimal.Dec
}

func sortScored(list []scored) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0; j-- {
			if less(list[j], list[j-1]) {
				list[j], list[j-1] = list[j-1], list[j]
			} else {
				break
			}
		}
	}
}

func less(a, b scored) bool {
	cmp := a.power.Cmp(b.power)
	if cmp != 0 {
		return cmp > 0 // descending power
	}
	return a.p.ProposalID < b.p.ProposalID // ascending id tiebreak
}
