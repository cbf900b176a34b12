package hydro

import (
	"errors"
	"fmt"

	"hydro/native/hydro/decimal"
	"hydro/native/hydro/guard"
)

// MaxLockEntries bounds the number of locks a single owner may hold, per
// §4.C: "Per-user lock count must not exceed MAX_LOCK_ENTRIES (100)."
const MaxLockEntries = 100

// AllowedLockDurationEpochs is the reference schedule of durations a Lock
// may request, expressed in lock_epoch_length units (§4.C: "duration ∈
// allowed set (1/3/6/12 epochs in the reference schedule)").
var AllowedLockDurationEpochs = []uint64{1, 3, 6, 12}

func isAllowedDuration(epochs uint64) bool {
	for _, d := range AllowedLockDurationEpochs {
		if d == epochs {
			return true
		}
	}
	return false
}

// capState adapts the engine's persisted total/known-user accounting onto
// guard.CapCheck's pure arithmetic.
type capState struct {
	totalLocked      uint64
	maxLockedTokens  uint64
	userExtraGranted uint64
	userExtraUsed    uint64
}

func totalLockedKey(denom string) []byte { return []byte("hydro/total-locked/" + denom) }

func (s *Store) TotalLocked(denom string) (uint64, error) {
	var rec struct{ Amount uint64 }
	_, err := s.kv.KVGet(totalLockedKey(denom), &rec)
	return rec.Amount, err
}

func (s *Store) SetTotalLocked(denom string, amount uint64) error {
	return s.kv.KVPut(totalLockedKey(denom), struct{ Amount uint64 }{Amount: amount})
}

func extraUsedKey(round uint64, user string) []byte {
	return []byte(fmt.Sprintf("hydro/extra-used/%d/%s", round, user))
}

func (s *Store) ExtraUsed(round uint64, user string) (uint64, error) {
	var rec struct{ Amount uint64 }
	_, err := s.kv.KVGet(extraUsedKey(round, user), &rec)
	return rec.Amount, err
}

func (s *Store) SetExtraUsed(round uint64, user string, amount uint64) error {
	return s.kv.KVPut(extraUsedKey(round, user), struct{ Amount uint64 }{Amount: amount})
}

// Lock is 4.C's Lock operation: the caller sends exactly one coin, which is
// resolved to a token group via the provider registry; the round's total
// locked and per-user known-users-cap accounting are checked; a lock_id is
// assigned and the entry saved with lock_start = now.
func (e *Engine) Lock(owner string, funds Coin, durationEpochs uint64) (Lock, []SideEffect, error) {
	_, span := e.span("hydro.Lock")
	defer span.End()
	c, err := e.constants()
	if err != nil {
		return Lock{}, nil, err
	}
	if err := requireNotPaused(c); err != nil {
		return Lock{}, nil, err
	}
	if e.lockLimiter != nil && !e.lockLimiter.allow(owner) {
		return Lock{}, nil, fmt.Errorf("%w: owner %s is submitting Lock messages too frequently", ErrPolicyViolation, owner)
	}
	if funds.Amount == 0 {
		return Lock{}, nil, fmt.Errorf("%w: funds.amount must be positive", ErrInvalidInput)
	}
	if !isAllowedDuration(durationEpochs) {
		return Lock{}, nil, fmt.Errorf("%w: duration %d epochs not in allowed set", ErrInvalidInput, durationEpochs)
	}

	existing, err := e.store.OwnerLocks(owner)
	if err != nil {
		return Lock{}, nil, err
	}
	if len(existing) >= MaxLockEntries {
		return Lock{}, nil, fmt.Errorf("%w: owner already holds %d locks", ErrCapacityExceeded, MaxLockEntries)
	}

	round, err := e.ensureRound()
	if err != nil {
		return Lock{}, nil, err
	}

	tokenGroup, err := e.providers.ValidateDenom(round, funds.Denom)
	if err != nil {
		return Lock{}, nil, err
	}
	nonTransferable := e.providerIsLSM(tokenGroup)

	if err := e.checkAndReserveCap(c, owner, round, funds.Denom, funds.Amount); err != nil {
		return Lock{}, nil, err
	}

	id, err := e.store.NextID("lock")
	if err != nil {
		return Lock{}, nil, err
	}
	now := e.now()
	lock := Lock{
		LockID:          id,
		Owner:           owner,
		Funds:           funds,
		TokenGroupID:    tokenGroup,
		NonTransferable: nonTransferable,
		LockStart:       now,
		LockEnd:         now + int64(durationEpochs)*c.LockEpochLengthNanos,
	}
	if err := e.store.PutLock(lock); err != nil {
		return Lock{}, nil, err
	}
	if err := e.store.AddOwnerLock(owner, id); err != nil {
		return Lock{}, nil, err
	}
	if err := e.store.SetLockExpiry(id, lock.LockEnd); err != nil {
		return Lock{}, nil, err
	}

	e.emit(LockCreatedEvent{LockID: id, Owner: owner, Denom: funds.Denom, Amount: funds.Amount})
	e.audit("lock", owner, round, 0, 0, id, fmt.Sprintf("%d %s for %d epochs", funds.Amount, funds.Denom, durationEpochs))
	return lock, nil, nil
}

// providerIsLSM reports whether tokenGroupID was minted by the LSM
// provider variant, per §4.C's "LSM-backed locks are non-transferable"
// policy. lsmTokenGroupID (tokeninfo.go) namespaces every LSM group under
// "validator/", which is the only namespace that dispatch ever produces.
func (e *Engine) providerIsLSM(tokenGroupID string) bool {
	const prefix = "validator/"
	return len(tokenGroupID) > len(prefix) && tokenGroupID[:len(prefix)] == prefix
}

// checkAndReserveCap enforces §4.I's total-cap / known-users-cap guard and
// persists the resulting counters on success.
func (e *Engine) checkAndReserveCap(c Constants, owner string, round uint64, denom string, amount uint64) error {
	total, err := e.store.TotalLocked(denom)
	if err != nil {
		return err
	}
	used, err := e.store.ExtraUsed(round, owner)
	if err != nil {
		return err
	}
	newTotal, newUsed, err := guard.CapCheck(total, amount, c.MaxLockedTokens, c.KnownUsersCap, used)
	if err != nil {
		// guard.CapCheck covers §4.I's total-cap plus per-round known-users
		// headroom together; §7 files that combination under the top-level
		// CapacityExceeded category ("per-round known-user cap"), distinct
		// from the PolicyViolation-level CapExceeded used elsewhere.
		if errors.Is(err, guard.ErrCapExceeded) {
			return fmt.Errorf("%w: %s", ErrCapacityExceeded, err)
		}
		return fmt.Errorf("%w: %s", ErrArithmeticFailure, err)
	}
	if err := e.store.SetTotalLocked(denom, newTotal); err != nil {
		return err
	}
	return e.store.SetExtraUsed(round, owner, newUsed)
}

func (e *Engine) releaseCap(denom string, amount uint64) error {
	total, err := e.store.TotalLocked(denom)
	if err != nil {
		return err
	}
	if amount > total {
		amount = total
	}
	return e.store.SetTotalLocked(denom, total-amount)
}

// Refresh is 4.C's RefreshLockDuration: extend lock_end to now +
// new_duration, where new_duration >= current remaining. If the lock has
// an active vote in the current round whose scaled power changes, the
// score keeper reconciles it (subtract old, add new).
func (e *Engine) Refresh(owner string, lockID uint64, newDurationEpochs uint64) (Lock, error) {
	c, err := e.constants()
	if err != nil {
		return Lock{}, err
	}
	if err := requireNotPaused(c); err != nil {
		return Lock{}, err
	}
	lock, ok, err := e.store.GetLock(lockID)
	if err != nil {
		return Lock{}, err
	}
	if !ok {
		return Lock{}, fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
	}
	if lock.Owner != owner {
		return Lock{}, fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, lockID, owner)
	}
	if !isAllowedDuration(newDurationEpochs) {
		return Lock{}, fmt.Errorf("%w: duration %d epochs not in allowed set", ErrInvalidInput, newDurationEpochs)
	}

	round, err := e.ensureRound()
	if err != nil {
		return Lock{}, err
	}
	roundEnd := RoundEnd(round, c.FirstRoundStartNanos, c.RoundLengthNanos)

	newEnd := e.now() + int64(newDurationEpochs)*c.LockEpochLengthNanos
	if newEnd < lock.LockEnd {
		return Lock{}, fmt.Errorf("%w: new duration must not shorten remaining lock time", ErrInvalidInput)
	}
	oldEnd := lock.LockEnd
	refreshed := lock
	refreshed.LockEnd = newEnd

	if err := e.reconcileVoteForLock(round, roundEnd, lock, refreshed, c); err != nil {
		return Lock{}, err
	}

	if err := e.store.PutLock(refreshed); err != nil {
		return Lock{}, err
	}
	if err := e.store.SetLockExpiry(lockID, refreshed.LockEnd); err != nil {
		return Lock{}, err
	}
	lock = refreshed

	e.emit(LockRefreshedEvent{LockID: lockID, OldLockEnd: oldEnd, NewLockEnd: newEnd})
	e.audit("refresh", owner, round, 0, 0, lockID, fmt.Sprintf("lock_end %d -> %d", oldEnd, newEnd))
	return lock, nil
}

// reconcileVoteForLock implements §4.C Refresh's reconciliation clause:
// for every tranche in which before carries an active vote in round, the
// score keeper subtracts before's scaled power and adds after's, keeping
// the vote entry's shares consistent with the lock's new duration.
func (e *Engine) reconcileVoteForLock(round uint64, roundEnd int64, before, after Lock, c Constants) error {
	tranches, err := e.store.TranchesVotedByLock(before.LockID)
	if err != nil {
		return err
	}
	oldScaled := ScaledPower(before, roundEnd, c.LockEpochLengthNanos, c.RoundLockPowerSchedule)
	newScaled := ScaledPower(after, roundEnd, c.LockEpochLengthNanos, c.RoundLockPowerSchedule)
	if oldScaled.Cmp(newScaled) == 0 {
		return nil
	}
	for _, tranche := range tranches {
		vote, ok, err := e.store.GetVote(round, tranche, before.LockID)
		if !ok || err != nil {
			continue
		}
		delta := newScaled.Sub(oldScaled)
		if _, err := e.scores.ApplyDelta(ProposalPowerUpdate{
			RoundID: round, TrancheID: tranche, ProposalID: vote.ProposalID,
			TokenGroupID: vote.Shares.TokenGroupID, SharesDelta: delta,
		}); err != nil {
			return err
		}
		vote.Shares.Shares = newScaled
		if err := e.store.PutVote(round, tranche, before.LockID, vote); err != nil {
			return err
		}
	}
	return nil
}

// Split implements 4.C's Split: create a sibling lock with the same owner,
// start, and end; subtract amount from the parent, assign the child a new
// lock_id, and record lineage.
func (e *Engine) Split(owner string, lockID uint64, amount uint64) (Lock, Lock, error) {
	c, err := e.constants()
	if err != nil {
		return Lock{}, Lock{}, err
	}
	if err := requireNotPaused(c); err != nil {
		return Lock{}, Lock{}, err
	}
	parent, ok, err := e.store.GetLock(lockID)
	if err != nil {
		return Lock{}, Lock{}, err
	}
	if !ok {
		return Lock{}, Lock{}, fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
	}
	if parent.Owner != owner {
		return Lock{}, Lock{}, fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, lockID, owner)
	}
	if amount == 0 || amount >= parent.Funds.Amount {
		return Lock{}, Lock{}, fmt.Errorf("%w: split amount must be in (0, parent amount)", ErrInvalidInput)
	}
	if err := e.store.requireLineageDepth(lockID, c.LockDepthLimit); err != nil {
		return Lock{}, Lock{}, err
	}

	round, err := e.ensureRound()
	if err != nil {
		return Lock{}, Lock{}, err
	}

	childID, err := e.store.NextID("lock")
	if err != nil {
		return Lock{}, Lock{}, err
	}
	fraction, err := decimal.FromFraction(int64(amount), int64(parent.Funds.Amount))
	if err != nil {
		return Lock{}, Lock{}, err
	}

	parent.Funds.Amount -= amount
	child := Lock{
		LockID:          childID,
		Owner:           owner,
		Funds:           Coin{Denom: parent.Funds.Denom, Amount: amount},
		TokenGroupID:    parent.TokenGroupID,
		NonTransferable: parent.NonTransferable,
		LockStart:       parent.LockStart,
		LockEnd:         parent.LockEnd,
	}

	if err := e.store.PutLock(parent); err != nil {
		return Lock{}, Lock{}, err
	}
	if err := e.store.PutLock(child); err != nil {
		return Lock{}, Lock{}, err
	}
	if err := e.store.AddOwnerLock(owner, childID); err != nil {
		return Lock{}, Lock{}, err
	}
	if err := e.store.SetLockExpiry(childID, child.LockEnd); err != nil {
		return Lock{}, Lock{}, err
	}
	if err := e.store.PutLineageForward(lockID, []LineageEdge{{ChildLockID: childID, Fraction: fraction}}); err != nil {
		return Lock{}, Lock{}, err
	}
	if err := e.store.PutLineageReverse(childID, []uint64{lockID}); err != nil {
		return Lock{}, Lock{}, err
	}

	if err := e.replicateSplitVotes(round, lockID, childID, fraction, c); err != nil {
		return Lock{}, Lock{}, err
	}

	e.emit(LockSplitEvent{ParentLockID: lockID, ChildLockID: childID, ChildAmount: amount})
	e.audit("split", owner, round, 0, 0, lockID, fmt.Sprintf("child %d amount %d", childID, amount))
	return parent, child, nil
}

// replicateSplitVotes implements §4.C Split's vote-lineage rule: if the
// parent has voted, a companion vote is registered for the child in every
// round that the parent had voted in — at zero time-weighted shares when
// the round is older than current (preserving history without inflating
// totals) and at positive shares proportional to the split ratio when the
// round is current. voting_allowed_round is inherited per tranche.
func (e *Engine) replicateSplitVotes(currentRound, parentID, childID uint64, fraction decimal.Dec, c Constants) error {
	tranches, err := e.store.TranchesVotedByLock(parentID)
	if err != nil {
		return err
	}
	for _, tranche := range tranches {
		rounds, err := e.store.VotedRounds(tranche, parentID)
		if err != nil {
			return err
		}
		for _, round := range rounds {
			vote, ok, err := e.store.GetVote(round, tranche, parentID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			var childShares decimal.Dec
			if round == currentRound {
				childShares = vote.Shares.Shares.Mul(fraction)
			} else {
				childShares = decimal.Zero
			}
			if err := e.store.PutVote(round, tranche, childID, Vote{
				ProposalID: vote.ProposalID,
				Shares:     TimeWeightedShares{TokenGroupID: vote.Shares.TokenGroupID, Shares: childShares},
			}); err != nil {
				return err
			}
			if !childShares.IsZero() {
				delta, err := e.scores.ApplyDelta(ProposalPowerUpdate{
					RoundID: round, TrancheID: tranche, ProposalID: vote.ProposalID,
					TokenGroupID: vote.Shares.TokenGroupID, SharesDelta: childShares,
				})
				if err != nil {
					return err
				}
				_ = delta
			}
			if allowed, ok, err := e.store.GetVotingAllowedRound(tranche, parentID); err != nil {
				return err
			} else if ok {
				if err := e.store.SetVotingAllowedRound(tranche, childID, allowed); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Merge implements §4.C Merge: produce a new lock whose amount equals the
// sum of inputs, and whose lock_end equals the maximum of the inputs'
// ends. Inputs are removed from the active set but retained in
// user-lockups-for-claim. The merged lock receives an active current-round
// vote only if every input is eligible and voted the same proposal in
// every tranche it voted in; for past rounds, zero-power vote entries
// preserve lineage only when eligibility was uniform, otherwise none are
// written (Design Notes' ambiguity resolved toward "no current-round vote
// for heterogeneous merges").
func (e *Engine) Merge(owner string, lockIDs []uint64) (Lock, error) {
	c, err := e.constants()
	if err != nil {
		return Lock{}, err
	}
	if err := requireNotPaused(c); err != nil {
		return Lock{}, err
	}
	if len(lockIDs) < 2 {
		return Lock{}, fmt.Errorf("%w: merge requires at least two locks", ErrInvalidInput)
	}
	locks := make([]Lock, 0, len(lockIDs))
	var denom string
	var total uint64
	var maxEnd int64
	for i, id := range lockIDs {
		l, ok, err := e.store.GetLock(id)
		if err != nil {
			return Lock{}, err
		}
		if !ok {
			return Lock{}, fmt.Errorf("%w: lock %d", ErrNotFound, id)
		}
		if l.Owner != owner {
			return Lock{}, fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, id, owner)
		}
		if i == 0 {
			denom = l.Funds.Denom
		} else if l.Funds.Denom != denom {
			return Lock{}, fmt.Errorf("%w: merge inputs must share a denom", ErrInvalidInput)
		}
		total += l.Funds.Amount
		if l.LockEnd > maxEnd {
			maxEnd = l.LockEnd
		}
		locks = append(locks, l)
	}

	round, err := e.ensureRound()
	if err != nil {
		return Lock{}, err
	}

	newID, err := e.store.NextID("lock")
	if err != nil {
		return Lock{}, err
	}
	merged := Lock{
		LockID:          newID,
		Owner:           owner,
		Funds:           Coin{Denom: denom, Amount: total},
		TokenGroupID:    locks[0].TokenGroupID,
		NonTransferable: anyNonTransferable(locks),
		LockStart:       e.now(),
		LockEnd:         maxEnd,
	}
	if err := e.store.PutLock(merged); err != nil {
		return Lock{}, err
	}
	if err := e.store.AddOwnerLock(owner, newID); err != nil {
		return Lock{}, err
	}
	if err := e.store.SetLockExpiry(newID, merged.LockEnd); err != nil {
		return Lock{}, err
	}
	if err := e.store.PutLineageReverse(newID, lockIDs); err != nil {
		return Lock{}, err
	}
	for _, id := range lockIDs {
		if err := e.store.PutLineageForward(id, []LineageEdge{{ChildLockID: newID, Fraction: decimal.One}}); err != nil {
			return Lock{}, err
		}
		if err := e.store.RemoveOwnerLock(owner, id); err != nil {
			return Lock{}, err
		}
		if err := e.store.AddClaimLock(owner, id); err != nil {
			return Lock{}, err
		}
	}

	if err := e.replicateMergeVotes(round, lockIDs, newID, c); err != nil {
		return Lock{}, err
	}

	e.emit(LockMergedEvent{InputLockIDs: lockIDs, NewLockID: newID})
	e.audit("merge", owner, round, 0, 0, newID, fmt.Sprintf("inputs %v", lockIDs))
	return merged, nil
}

func anyNonTransferable(locks []Lock) bool {
	for _, l := range locks {
		if l.NonTransferable {
			return true
		}
	}
	return false
}

func (e *Engine) replicateMergeVotes(currentRound uint64, inputIDs []uint64, newID uint64, c Constants) error {
	trancheSet := map[uint64]bool{}
	for _, id := range inputIDs {
		tranches, err := e.store.TranchesVotedByLock(id)
		if err != nil {
			return err
		}
		for _, t := range tranches {
			trancheSet[t] = true
		}
	}
	for tranche := range trancheSet {
		roundSet := map[uint64]bool{}
		for _, id := range inputIDs {
			rounds, err := e.store.VotedRounds(tranche, id)
			if err != nil {
				return err
			}
			for _, r := range rounds {
				roundSet[r] = true
			}
		}
		for round := range roundSet {
			uniform, proposalID, tokenGroup, totalShares, err := e.uniformMergeVote(round, tranche, inputIDs)
			if err != nil {
				return err
			}
			if !uniform {
				continue
			}
			var shares decimal.Dec
			if round == currentRound {
				shares = totalShares
			} else {
				shares = decimal.Zero
			}
			if err := e.store.PutVote(round, tranche, newID, Vote{
				ProposalID: proposalID,
				Shares:     TimeWeightedShares{TokenGroupID: tokenGroup, Shares: shares},
			}); err != nil {
				return err
			}
			if !shares.IsZero() {
				if _, err := e.scores.ApplyDelta(ProposalPowerUpdate{
					RoundID: round, TrancheID: tranche, ProposalID: proposalID,
					TokenGroupID: tokenGroup, SharesDelta: shares,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// uniformMergeVote reports whether every input lock voted in
// (round, tranche) and all of them voted the same proposal, returning that
// proposal id, token group, and the summed shares when uniform. A single
// input without a vote in the round makes the result non-uniform, so
// heterogeneous eligibility/voting yields no vote for the merged lock.
func (e *Engine) uniformMergeVote(round, tranche uint64, inputIDs []uint64) (uniform bool, proposalID uint64, tokenGroup string, totalShares decimal.Dec, err error) {
	var seenProposal uint64
	var seenAny bool
	totalShares = decimal.Zero
	for _, id := range inputIDs {
		v, ok, gerr := e.store.GetVote(round, tranche, id)
		if gerr != nil {
			return false, 0, "", decimal.Zero, gerr
		}
		if !ok {
			return false, 0, "", decimal.Zero, nil
		}
		if !seenAny {
			seenProposal = v.ProposalID
			tokenGroup = v.Shares.TokenGroupID
			seenAny = true
		} else if v.ProposalID != seenProposal {
			return false, 0, "", decimal.Zero, nil
		}
		totalShares = totalShares.Add(v.Shares.Shares)
	}
	if !seenAny {
		return false, 0, "", decimal.Zero, nil
	}
	return true, seenProposal, tokenGroup, totalShares, nil
}

// Approve grants spender the right to transfer lockID on the owner's
// behalf, per §4.C's narrow NFT-style surface.
func (e *Engine) Approve(owner string, lockID uint64, spender string, expiresAt int64) error {
	lock, ok, err := e.store.GetLock(lockID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
	}
	if lock.Owner != owner {
		return fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, lockID, owner)
	}
	return e.store.SetLockApproval(lockID, Approval{Spender: spender, ExpiresAt: expiresAt})
}

// Revoke clears spender's per-lock approval.
func (e *Engine) Revoke(owner string, lockID uint64, spender string) error {
	lock, ok, err := e.store.GetLock(lockID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
	}
	if lock.Owner != owner {
		return fmt.Errorf("%w: lock %d not owned by %s", ErrUnauthorized, lockID, owner)
	}
	return e.store.RevokeLockApproval(lockID, spender)
}

// ApproveAll grants operator the right to transfer every lock owner holds.
func (e *Engine) ApproveAll(owner, operator string, expiresAt int64) error {
	return e.store.SetOperatorApproval(owner, operator, expiresAt)
}

// RevokeAll clears operator's blanket approval over owner's locks.
func (e *Engine) RevokeAll(owner, operator string) error {
	return e.store.RevokeOperatorApproval(owner, operator)
}

func (e *Engine) isApproved(lock Lock, spender string, now int64) (bool, error) {
	if lock.Owner == spender {
		return true, nil
	}
	approvals, err := e.store.LockApprovals(lock.LockID)
	if err != nil {
		return false, err
	}
	for _, a := range approvals {
		if a.Spender == spender && (a.ExpiresAt == 0 || a.ExpiresAt > now) {
			return true, nil
		}
	}
	op, ok, err := e.store.OperatorApproval(lock.Owner, spender)
	if err != nil {
		return false, err
	}
	if ok && (op.ExpiresAt == 0 || op.ExpiresAt > now) {
		return true, nil
	}
	return false, nil
}

// Transfer implements §4.C's TransferNft: the lock is treated as a
// non-fungible token; LSM-backed locks are non-transferable by policy. A
// transfer clears per-lock approvals and moves the lock_id from the
// sender's owner-index to the recipient's; the claim-index is not changed.
func (e *Engine) Transfer(caller string, lockID uint64, recipient string) (Lock, error) {
	lock, ok, err := e.store.GetLock(lockID)
	if err != nil {
		return Lock{}, err
	}
	if !ok {
		return Lock{}, fmt.Errorf("%w: lock %d", ErrNotFound, lockID)
	}
	if lock.NonTransferable {
		return Lock{}, fmt.Errorf("%w: lock %d is LSM-backed and non-transferable", ErrLSMNotTransferable, lockID)
	}
	approved, err := e.isApproved(lock, caller, e.now())
	if err != nil {
		return Lock{}, err
	}
	if !approved {
		return Lock{}, fmt.Errorf("%w: %s may not transfer lock %d", ErrUnauthorized, caller, lockID)
	}
	from := lock.Owner
	if err := e.store.RemoveOwnerLock(from, lockID); err != nil {
		return Lock{}, err
	}
	if err := e.store.ClearLockApprovals(lockID); err != nil {
		return Lock{}, err
	}
	lock.Owner = recipient
	if err := e.store.PutLock(lock); err != nil {
		return Lock{}, err
	}
	if err := e.store.AddOwnerLock(recipient, lockID); err != nil {
		return Lock{}, err
	}
	e.emit(LockTransferredEvent{LockID: lockID, From: from, To: recipient})
	e.audit("transfer", caller, 0, 0, 0, lockID, fmt.Sprintf("%s -> %s", from, recipient))
	return lock, nil
}

// Unlock implements §4.C's Unlock: for each lock whose lock_end < now,
// emit a bank-send of its funds minus any pending-slash amount (bank-send
// to the slash-receiver for the slashed portion) and delete it.
func (e *Engine) Unlock(owner string, lockIDs []uint64) ([]SideEffect, error) {
	_, span := e.span("hydro.Unlock")
	defer span.End()
	c, err := e.constants()
	if err != nil {
		return nil, err
	}
	if len(lockIDs) == 0 {
		ids, err := e.store.OwnerLocks(owner)
		if err != nil {
			return nil, err
		}
		lockIDs = ids
	}
	now := e.now()
	var effects []SideEffect
	for _, id := range lockIDs {
		lock, ok, err := e.store.GetLock(id)
		if err != nil {
			return nil, err
		}
		if !ok || lock.Owner != owner {
			continue
		}
		if !lock.Expired(now) {
			return nil, fmt.Errorf("%w: lock %d has not reached its expiry", ErrUnlockExpiryNotReached, id)
		}
		released, slashed := splitSlash(lock.Funds, lock.PendingSlashBps)
		if released.Amount > 0 {
			effects = append(effects, SideEffect{Kind: SideEffectBankSend, Recipient: owner, Coin: released})
		}
		if slashed.Amount > 0 && c.SlashTokensReceiverAddr != "" {
			effects = append(effects, SideEffect{Kind: SideEffectBankSend, Recipient: c.SlashTokensReceiverAddr, Coin: slashed})
		}
		if err := e.releaseCap(lock.Funds.Denom, lock.Funds.Amount); err != nil {
			return nil, err
		}
		if err := e.store.RemoveOwnerLock(owner, id); err != nil {
			return nil, err
		}
		if err := e.store.DeleteLock(id); err != nil {
			return nil, err
		}
		e.emit(LockUnlockedEvent{LockID: id, Owner: owner, Released: released, Slashed: slashed})
		e.audit("unlock", owner, 0, 0, 0, id, fmt.Sprintf("released %d slashed %d", released.Amount, slashed.Amount))
	}
	return effects, nil
}

// RecordSlash implements the supplemented slashing-aware unlock feature:
// when a lock's backing validator is slashed mid-lock, the governance
// module (or an oracle acting on its behalf) reports slashBps (basis
// points, 0-10000) against the affected lockIDs. A report below
// Constants.SlashPercentageThresholdBPS is ignored, mirroring the
// original's slash_percentage_threshold gate; otherwise each lock's
// PendingSlashBps is raised to max(existing, slashBps) (a second, smaller
// slash report never un-does a larger pending one). A slashBps above 10000
// is rejected with ErrInvalidInput, so splitSlash never computes a
// negative released amount. The slashed
// portion is only actually withheld and redirected to
// Constants.SlashTokensReceiverAddr once the lock unlocks (§4.C Unlock).
func (e *Engine) RecordSlash(lockIDs []uint64, slashBps uint32) error {
	c, err := e.constants()
	if err != nil {
		return err
	}
	if slashBps > 10_000 {
		return fmt.Errorf("%w: slash_bps %d exceeds 10000", ErrInvalidInput, slashBps)
	}
	if slashBps < c.SlashPercentageThresholdBPS {
		return nil
	}
	for _, id := range lockIDs {
		lock, ok, err := e.store.GetLock(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if slashBps > lock.PendingSlashBps {
			lock.PendingSlashBps = slashBps
			if err := e.store.PutLock(lock); err != nil {
				return err
			}
			e.emit(LockSlashedEvent{LockID: id, SlashBps: slashBps, PendingSlashBps: lock.PendingSlashBps})
			e.audit("record-slash", "", 0, 0, 0, id, fmt.Sprintf("pending_slash_bps=%d", lock.PendingSlashBps))
		}
	}
	return nil
}

// splitSlash divides funds into the released and slashed portions per
// pendingSlashBps (basis points, 0-10000), rounding the slashed portion
// down so the released amount never undershoots what the slash schedule
// allows.
func splitSlash(funds Coin, pendingSlashBps uint32) (released Coin, slashed Coin) {
	if pendingSlashBps == 0 {
		return funds, Coin{Denom: funds.Denom, Amount: 0}
	}
	slashedAmount := funds.Amount * uint64(pendingSlashBps) / 10_000
	return Coin{Denom: funds.Denom, Amount: funds.Amount - slashedAmount}, Coin{Denom: funds.Denom, Amount: slashedAmount}
}
