package hydro

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"hydro/native/hydro/decimal"
)

// KV is the subset of core/state.Manager the engine depends on. Accepting
// the narrow interface here (rather than the concrete *state.Manager) keeps
// the domain package testable against an in-memory fake without pulling in
// the storage backend.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
	KVAppend(key []byte, value interface{}) error
	KVGetList(key []byte, decodeOne func(raw []byte) error) error
	SnapshotPut(logicalKey []byte, height uint64, value interface{}) error
	SnapshotGet(logicalKey []byte, height uint64, out interface{}) (bool, error)
}

// Store adapts the generic KV surface into the typed shapes the engine
// operates on.
type Store struct {
	kv KV
}

// NewStore constructs a Store over the supplied KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func lockKey(id uint64) []byte        { return []byte(fmt.Sprintf("hydro/lock/%d", id)) }
func ownerLocksKey(owner string) []byte { return []byte(fmt.Sprintf("hydro/owner-locks/%s", owner)) }
func lineageForwardKey(parent uint64) []byte {
	return []byte(fmt.Sprintf("hydro/lineage/fwd/%d", parent))
}
func lineageReverseKey(child uint64) []byte {
	return []byte(fmt.Sprintf("hydro/lineage/rev/%d", child))
}
func lockExpiryKey(id uint64) []byte { return []byte(fmt.Sprintf("hydro/lineage/expiry/%d", id)) }

func proposalKey(round, tranche, id uint64) []byte {
	return []byte(fmt.Sprintf("hydro/proposal/%d/%d/%d", round, tranche, id))
}
func proposalIndexKey(round, tranche uint64) []byte {
	return []byte(fmt.Sprintf("hydro/proposal-index/%d/%d", round, tranche))
}
func proposalSharesKey(round, tranche, id uint64, tokenGroup string) []byte {
	return []byte(fmt.Sprintf("hydro/proposal-shares/%d/%d/%d/%s", round, tranche, id, tokenGroup))
}
func proposalTokenGroupsKey(round, tranche, id uint64) []byte {
	return []byte(fmt.Sprintf("hydro/proposal-groups/%d/%d/%d", round, tranche, id))
}

func voteKey(round, tranche, lockID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/vote/%d/%d/%d", round, tranche, lockID))
}
func votingAllowedRoundKey(tranche, lockID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/voting-allowed/%d/%d", tranche, lockID))
}

func roundTotalKey(round uint64) []byte {
	return []byte(fmt.Sprintf("hydro/round-total/%d", round))
}

func tributeKey(id uint64) []byte { return []byte(fmt.Sprintf("hydro/tribute/%d", id)) }
func tributeIndexKey(round, tranche, proposal uint64) []byte {
	return []byte(fmt.Sprintf("hydro/tribute-index/%d/%d/%d", round, tranche, proposal))
}
func claimKey(voter string, tributeID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/claim/%s/%d", voter, tributeID))
}
func communityClaimKey(tributeID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/community-claim/%d", tributeID))
}

func deploymentKey(round, tranche, proposal uint64) []byte {
	return []byte(fmt.Sprintf("hydro/deployment/%d/%d/%d", round, tranche, proposal))
}

func sequenceKey(name string) []byte { return []byte(fmt.Sprintf("hydro/seq/%s", name)) }

func tokenGroupRatioKey(round uint64, tokenGroup string) []byte {
	return []byte(fmt.Sprintf("hydro/ratio/%d/%s", round, tokenGroup))
}

func constantsIndexKey() []byte { return []byte("hydro/constants-index") }
func constantsKey(activation int64) []byte {
	return []byte(fmt.Sprintf("hydro/constants/%d", activation))
}

// --- sequences ---

type seqRecord struct{ Next uint64 }

// NextID returns the next value of a named monotonic counter, starting at 1.
func (s *Store) NextID(name string) (uint64, error) {
	var rec seqRecord
	ok, err := s.kv.KVGet(sequenceKey(name), &rec)
	if err != nil {
		return 0, err
	}
	if !ok {
		rec = seqRecord{Next: 0}
	}
	rec.Next++
	if err := s.kv.KVPut(sequenceKey(name), rec); err != nil {
		return 0, err
	}
	return rec.Next, nil
}

// --- locks ---

func (s *Store) PutLock(l Lock) error {
	return s.kv.KVPut(lockKey(l.LockID), l)
}

func (s *Store) GetLock(id uint64) (Lock, bool, error) {
	var l Lock
	ok, err := s.kv.KVGet(lockKey(id), &l)
	return l, ok, err
}

func (s *Store) DeleteLock(id uint64) error {
	return s.kv.KVDelete(lockKey(id))
}

// SnapshotLock records l as the state of its lock_id as of height, enabling
// historical reads.
func (s *Store) SnapshotLock(l Lock, height uint64) error {
	return s.kv.SnapshotPut(lockKey(l.LockID), height, l)
}

// GetLockAt returns the lock state at or before height.
func (s *Store) GetLockAt(id uint64, height uint64) (Lock, bool, error) {
	var l Lock
	ok, err := s.kv.SnapshotGet(lockKey(id), height, &l)
	return l, ok, err
}

type ownerLockSet struct{ IDs []uint64 }

func (s *Store) AddOwnerLock(owner string, id uint64) error {
	var set ownerLockSet
	_, err := s.kv.KVGet(ownerLocksKey(owner), &set)
	if err != nil {
		return err
	}
	for _, existing := range set.IDs {
		if existing == id {
			return nil
		}
	}
	set.IDs = append(set.IDs, id)
	return s.kv.KVPut(ownerLocksKey(owner), set)
}

func (s *Store) RemoveOwnerLock(owner string, id uint64) error {
	var set ownerLockSet
	ok, err := s.kv.KVGet(ownerLocksKey(owner), &set)
	if err != nil || !ok {
		return err
	}
	out := set.IDs[:0]
	for _, existing := range set.IDs {
		if existing != id {
			out = append(out, existing)
		}
	}
	set.IDs = out
	return s.kv.KVPut(ownerLocksKey(owner), set)
}

func (s *Store) OwnerLocks(owner string) ([]uint64, error) {
	var set ownerLockSet
	_, err := s.kv.KVGet(ownerLocksKey(owner), &set)
	if err != nil {
		return nil, err
	}
	return set.IDs, nil
}

// AddClaimLock records id in owner's claim index: the per-owner set of
// lock_ids retained after a Merge consumed their active entry, read back
// by ClaimLocks (§4.C Merge: "removed from the active set but retained in
// user-lockups-for-claim").
func (s *Store) AddClaimLock(owner string, id uint64) error {
	var set ownerLockSet
	_, err := s.kv.KVGet(claimLocksKey(owner), &set)
	if err != nil {
		return err
	}
	for _, existing := range set.IDs {
		if existing == id {
			return nil
		}
	}
	set.IDs = append(set.IDs, id)
	return s.kv.KVPut(claimLocksKey(owner), set)
}

func (s *Store) ClaimLocks(owner string) ([]uint64, error) {
	var set ownerLockSet
	_, err := s.kv.KVGet(claimLocksKey(owner), &set)
	if err != nil {
		return nil, err
	}
	return set.IDs, nil
}

func claimLocksKey(owner string) []byte {
	return []byte(fmt.Sprintf("hydro/claim-locks/%s", owner))
}

// --- NFT-style approvals ---

// Approval is one per-lock or per-owner-operator grant with an optional
// expiration (unix nanoseconds, compared with the engine clock; zero means
// no expiration), per §4.C
// Transfer/Approve/Revoke.
type Approval struct {
	Spender   string
	ExpiresAt int64
}

func lockApprovalKey(lockID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/approval/%d", lockID))
}
func operatorApprovalKey(owner, operator string) []byte {
	return []byte(fmt.Sprintf("hydro/operator/%s/%s", owner, operator))
}

type lockApprovals struct{ Entries []Approval }

func (s *Store) SetLockApproval(lockID uint64, a Approval) error {
	var rec lockApprovals
	_, err := s.kv.KVGet(lockApprovalKey(lockID), &rec)
	if err != nil {
		return err
	}
	out := rec.Entries[:0]
	for _, e := range rec.Entries {
		if e.Spender != a.Spender {
			out = append(out, e)
		}
	}
	rec.Entries = append(out, a)
	return s.kv.KVPut(lockApprovalKey(lockID), rec)
}

func (s *Store) ClearLockApprovals(lockID uint64) error {
	return s.kv.KVDelete(lockApprovalKey(lockID))
}

func (s *Store) RevokeLockApproval(lockID uint64, spender string) error {
	var rec lockApprovals
	_, err := s.kv.KVGet(lockApprovalKey(lockID), &rec)
	if err != nil {
		return err
	}
	out := rec.Entries[:0]
	for _, e := range rec.Entries {
		if e.Spender != spender {
			out = append(out, e)
		}
	}
	rec.Entries = out
	return s.kv.KVPut(lockApprovalKey(lockID), rec)
}

func (s *Store) LockApprovals(lockID uint64) ([]Approval, error) {
	var rec lockApprovals
	_, err := s.kv.KVGet(lockApprovalKey(lockID), &rec)
	if err != nil {
		return nil, err
	}
	return rec.Entries, nil
}

func (s *Store) SetOperatorApproval(owner, operator string, expiresAt int64) error {
	return s.kv.KVPut(operatorApprovalKey(owner, operator), Approval{Spender: operator, ExpiresAt: expiresAt})
}

func (s *Store) RevokeOperatorApproval(owner, operator string) error {
	return s.kv.KVDelete(operatorApprovalKey(owner, operator))
}

func (s *Store) OperatorApproval(owner, operator string) (Approval, bool, error) {
	var a Approval
	ok, err := s.kv.KVGet(operatorApprovalKey(owner, operator), &a)
	return a, ok, err
}

// --- lineage ---

type lineageForward struct{ Edges []LineageEdge }
type lineageReverse struct{ Parents []uint64 }

func (s *Store) PutLineageForward(parent uint64, edges []LineageEdge) error {
	var existing lineageForward
	_, err := s.kv.KVGet(lineageForwardKey(parent), &existing)
	if err != nil {
		return err
	}
	existing.Edges = append(existing.Edges, edges...)
	return s.kv.KVPut(lineageForwardKey(parent), existing)
}

func (s *Store) GetLineageForward(parent uint64) ([]LineageEdge, error) {
	var existing lineageForward
	_, err := s.kv.KVGet(lineageForwardKey(parent), &existing)
	if err != nil {
		return nil, err
	}
	return existing.Edges, nil
}

func (s *Store) PutLineageReverse(child uint64, parents []uint64) error {
	return s.kv.KVPut(lineageReverseKey(child), lineageReverse{Parents: parents})
}

func (s *Store) GetLineageReverse(child uint64) ([]uint64, error) {
	var existing lineageReverse
	_, err := s.kv.KVGet(lineageReverseKey(child), &existing)
	if err != nil {
		return nil, err
	}
	return existing.Parents, nil
}

func (s *Store) SetLockExpiry(id uint64, expiry int64) error {
	return s.kv.KVPut(lockExpiryKey(id), expiryRecord{Expiry: expiry})
}

type expiryRecord struct{ Expiry int64 }

func (s *Store) GetLockExpiry(id uint64) (int64, bool, error) {
	var rec expiryRecord
	ok, err := s.kv.KVGet(lockExpiryKey(id), &rec)
	return rec.Expiry, ok, err
}

// --- proposals ---

type proposalIndex struct{ IDs []uint64 }

func (s *Store) PutProposal(p Proposal) error {
	if err := s.kv.KVPut(proposalKey(p.RoundID, p.TrancheID, p.ProposalID), p); err != nil {
		return err
	}
	var idx proposalIndex
	alreadyIndexed := false
	_, err := s.kv.KVGet(proposalIndexKey(p.RoundID, p.TrancheID), &idx)
	if err != nil {
		return err
	}
	for _, existing := range idx.IDs {
		if existing == p.ProposalID {
			alreadyIndexed = true
			break
		}
	}
	if !alreadyIndexed {
		idx.IDs = append(idx.IDs, p.ProposalID)
		if err := s.kv.KVPut(proposalIndexKey(p.RoundID, p.TrancheID), idx); err != nil {
			return err
		}
	}
	return s.addProposalRound(p.RoundID)
}

func proposalRoundsKey() []byte { return []byte("hydro/proposal-rounds") }

type proposalRoundsRecord struct{ Rounds []uint64 }

// addProposalRound remembers round in the sorted set of rounds that have
// ever had a proposal created, so ratio-change recompute sweeps (§4.B/§4.D)
// know which rounds to visit without scanning every possible round id.
func (s *Store) addProposalRound(round uint64) error {
	var rec proposalRoundsRecord
	_, err := s.kv.KVGet(proposalRoundsKey(), &rec)
	if err != nil {
		return err
	}
	for _, r := range rec.Rounds {
		if r == round {
			return nil
		}
	}
	rec.Rounds = append(rec.Rounds, round)
	sort.Slice(rec.Rounds, func(i, j int) bool { return rec.Rounds[i] < rec.Rounds[j] })
	return s.kv.KVPut(proposalRoundsKey(), rec)
}

// ProposalRounds returns every round id that has ever had a proposal
// created, ascending.
func (s *Store) ProposalRounds() ([]uint64, error) {
	var rec proposalRoundsRecord
	_, err := s.kv.KVGet(proposalRoundsKey(), &rec)
	if err != nil {
		return nil, err
	}
	return rec.Rounds, nil
}

func (s *Store) GetProposal(round, tranche, id uint64) (Proposal, bool, error) {
	var p Proposal
	ok, err := s.kv.KVGet(proposalKey(round, tranche, id), &p)
	return p, ok, err
}

func (s *Store) ListProposals(round, tranche uint64) ([]Proposal, error) {
	var idx proposalIndex
	_, err := s.kv.KVGet(proposalIndexKey(round, tranche), &idx)
	if err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(idx.IDs))
	for _, id := range idx.IDs {
		p, ok, err := s.GetProposal(round, tranche, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposalID < out[j].ProposalID })
	return out, nil
}

// --- per-proposal token-group shares ---

type tokenGroupSet struct{ Groups []string }

func (s *Store) proposalTokenGroups(round, tranche, id uint64) ([]string, error) {
	var set tokenGroupSet
	_, err := s.kv.KVGet(proposalTokenGroupsKey(round, tranche, id), &set)
	if err != nil {
		return nil, err
	}
	return set.Groups, nil
}

func (s *Store) addProposalTokenGroup(round, tranche, id uint64, group string) error {
	groups, err := s.proposalTokenGroups(round, tranche, id)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g == group {
			return nil
		}
	}
	groups = append(groups, group)
	return s.kv.KVPut(proposalTokenGroupsKey(round, tranche, id), tokenGroupSet{Groups: groups})
}

type sharesRecord struct{ Shares decimal.Dec }

func (s *Store) GetProposalShares(round, tranche, id uint64, tokenGroup string) (decimal.Dec, error) {
	var rec sharesRecord
	ok, err := s.kv.KVGet(proposalSharesKey(round, tranche, id, tokenGroup), &rec)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return rec.Shares, nil
}

func (s *Store) SetProposalShares(round, tranche, id uint64, tokenGroup string, shares decimal.Dec) error {
	if err := s.addProposalTokenGroup(round, tranche, id, tokenGroup); err != nil {
		return err
	}
	return s.kv.KVPut(proposalSharesKey(round, tranche, id, tokenGroup), sharesRecord{Shares: shares})
}

// ProposalTokenGroups exposes the set of token groups a proposal currently
// holds shares in, used by ratio-change recompute sweeps.
func (s *Store) ProposalTokenGroups(round, tranche, id uint64) ([]string, error) {
	return s.proposalTokenGroups(round, tranche, id)
}

// --- votes ---

func (s *Store) PutVote(round, tranche, lockID uint64, v Vote) error {
	if err := s.kv.KVPut(voteKey(round, tranche, lockID), v); err != nil {
		return err
	}
	if err := s.addVotedRound(tranche, lockID, round); err != nil {
		return err
	}
	return s.addLockTranche(lockID, tranche)
}

func lockTranchesKey(lockID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/lock-tranches/%d", lockID))
}

type lockTranchesRecord struct{ Tranches []uint64 }

func (s *Store) addLockTranche(lockID, tranche uint64) error {
	var rec lockTranchesRecord
	_, err := s.kv.KVGet(lockTranchesKey(lockID), &rec)
	if err != nil {
		return err
	}
	for _, t := range rec.Tranches {
		if t == tranche {
			return nil
		}
	}
	rec.Tranches = append(rec.Tranches, tranche)
	return s.kv.KVPut(lockTranchesKey(lockID), rec)
}

// TranchesVotedByLock returns every tranche id in which lockID has ever
// carried a vote entry, used by Refresh/Split/Merge to reconcile or
// replicate vote lineage without scanning every tranche.
func (s *Store) TranchesVotedByLock(lockID uint64) ([]uint64, error) {
	var rec lockTranchesRecord
	_, err := s.kv.KVGet(lockTranchesKey(lockID), &rec)
	if err != nil {
		return nil, err
	}
	return rec.Tranches, nil
}

func votedRoundsKey(tranche, lockID uint64) []byte {
	return []byte(fmt.Sprintf("hydro/voted-rounds/%d/%d", tranche, lockID))
}

type votedRoundsRecord struct{ Rounds []uint64 }

// addVotedRound records that lockID has (or had) a vote entry in round for
// tranche, so Split can replay the lineage across every round the parent
// voted in (§4.C Split).
func (s *Store) addVotedRound(tranche, lockID, round uint64) error {
	var rec votedRoundsRecord
	_, err := s.kv.KVGet(votedRoundsKey(tranche, lockID), &rec)
	if err != nil {
		return err
	}
	for _, r := range rec.Rounds {
		if r == round {
			return nil
		}
	}
	rec.Rounds = append(rec.Rounds, round)
	sort.Slice(rec.Rounds, func(i, j int) bool { return rec.Rounds[i] < rec.Rounds[j] })
	return s.kv.KVPut(votedRoundsKey(tranche, lockID), rec)
}

// VotedRounds returns the sorted set of rounds in which lockID has ever
// carried a vote entry (zero-power or not) for tranche.
func (s *Store) VotedRounds(tranche, lockID uint64) ([]uint64, error) {
	var rec votedRoundsRecord
	_, err := s.kv.KVGet(votedRoundsKey(tranche, lockID), &rec)
	if err != nil {
		return nil, err
	}
	return rec.Rounds, nil
}

func (s *Store) GetVote(round, tranche, lockID uint64) (Vote, bool, error) {
	var v Vote
	ok, err := s.kv.KVGet(voteKey(round, tranche, lockID), &v)
	return v, ok, err
}

func (s *Store) DeleteVote(round, tranche, lockID uint64) error {
	return s.kv.KVDelete(voteKey(round, tranche, lockID))
}

type votingAllowedRecord struct{ Round uint64 }

func (s *Store) SetVotingAllowedRound(tranche, lockID, round uint64) error {
	return s.kv.KVPut(votingAllowedRoundKey(tranche, lockID), votingAllowedRecord{Round: round})
}

func (s *Store) GetVotingAllowedRound(tranche, lockID uint64) (uint64, bool, error) {
	var rec votingAllowedRecord
	ok, err := s.kv.KVGet(votingAllowedRoundKey(tranche, lockID), &rec)
	return rec.Round, ok, err
}

func (s *Store) DeleteVotingAllowedRound(tranche, lockID uint64) error {
	return s.kv.KVDelete(votingAllowedRoundKey(tranche, lockID))
}

// --- round totals ---

type totalRecord struct{ Total decimal.Dec }

func (s *Store) RoundTotal(round uint64) (decimal.Dec, error) {
	var rec totalRecord
	ok, err := s.kv.KVGet(roundTotalKey(round), &rec)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return rec.Total, nil
}

func (s *Store) AddRoundTotal(round uint64, delta decimal.Dec) error {
	total, err := s.RoundTotal(round)
	if err != nil {
		return err
	}
	total = total.Add(delta)
	if total.Sign() < 0 {
		total = decimal.Zero
	}
	return s.kv.KVPut(roundTotalKey(round), totalRecord{Total: total})
}

// --- tributes ---

func (s *Store) PutTribute(t Tribute) error {
	if err := s.kv.KVPut(tributeKey(t.TributeID), t); err != nil {
		return err
	}
	var idx proposalIndex
	_, err := s.kv.KVGet(tributeIndexKey(t.RoundID, t.TrancheID, t.ProposalID), &idx)
	if err != nil {
		return err
	}
	idx.IDs = append(idx.IDs, t.TributeID)
	return s.kv.KVPut(tributeIndexKey(t.RoundID, t.TrancheID, t.ProposalID), idx)
}

func (s *Store) GetTribute(id uint64) (Tribute, bool, error) {
	var t Tribute
	ok, err := s.kv.KVGet(tributeKey(id), &t)
	return t, ok, err
}

func (s *Store) ListTributes(round, tranche, proposal uint64) ([]uint64, error) {
	var idx proposalIndex
	_, err := s.kv.KVGet(tributeIndexKey(round, tranche, proposal), &idx)
	if err != nil {
		return nil, err
	}
	return idx.IDs, nil
}

type claimRecord struct {
	Paid Coin
}

func (s *Store) SetClaim(voter string, tributeID uint64, paid Coin) error {
	return s.kv.KVPut(claimKey(voter, tributeID), claimRecord{Paid: paid})
}

func (s *Store) GetClaim(voter string, tributeID uint64) (Coin, bool, error) {
	var rec claimRecord
	ok, err := s.kv.KVGet(claimKey(voter, tributeID), &rec)
	return rec.Paid, ok, err
}

func (s *Store) SetCommunityClaimed(tributeID uint64) error {
	return s.kv.KVPut(communityClaimKey(tributeID), claimedFlag{Claimed: true})
}

type claimedFlag struct{ Claimed bool }

func (s *Store) IsCommunityClaimed(tributeID uint64) (bool, error) {
	var rec claimedFlag
	ok, err := s.kv.KVGet(communityClaimKey(tributeID), &rec)
	if err != nil || !ok {
		return false, err
	}
	return rec.Claimed, nil
}

// --- deployments ---

type deploymentRecord struct {
	Exists bool
	Funds  Coin
}

func (s *Store) PutDeployment(round, tranche, proposal uint64, funds Coin) error {
	return s.kv.KVPut(deploymentKey(round, tranche, proposal), deploymentRecord{Exists: true, Funds: funds})
}

func (s *Store) GetDeployment(round, tranche, proposal uint64) (Coin, bool, error) {
	var rec deploymentRecord
	ok, err := s.kv.KVGet(deploymentKey(round, tranche, proposal), &rec)
	if err != nil || !ok {
		return Coin{}, false, err
	}
	return rec.Funds, rec.Exists, nil
}

// --- token group ratios ---

type ratioRecord struct{ Ratio decimal.Dec }

func knownTokenGroupsKey() []byte { return []byte("hydro/known-token-groups") }

type tokenGroupSetRecord struct{ Groups []string }

func (s *Store) rememberTokenGroup(tokenGroup string) error {
	var rec tokenGroupSetRecord
	_, err := s.kv.KVGet(knownTokenGroupsKey(), &rec)
	if err != nil {
		return err
	}
	for _, g := range rec.Groups {
		if g == tokenGroup {
			return nil
		}
	}
	rec.Groups = append(rec.Groups, tokenGroup)
	return s.kv.KVPut(knownTokenGroupsKey(), rec)
}

// KnownTokenGroups returns every token group id a ratio has ever been set
// for, used by round-advance's copy-forward seeding.
func (s *Store) KnownTokenGroups() ([]string, error) {
	var rec tokenGroupSetRecord
	_, err := s.kv.KVGet(knownTokenGroupsKey(), &rec)
	if err != nil {
		return nil, err
	}
	return rec.Groups, nil
}

func (s *Store) SetRatio(round uint64, tokenGroup string, ratio decimal.Dec) error {
	if err := s.rememberTokenGroup(tokenGroup); err != nil {
		return err
	}
	return s.kv.KVPut(tokenGroupRatioKey(round, tokenGroup), ratioRecord{Ratio: ratio})
}

// HasRatio reports whether tokenGroup has an explicit ratio recorded for
// round (as opposed to the implicit zero default), used to decide whether
// copy-forward seeding should write a value.
func (s *Store) HasRatio(round uint64, tokenGroup string) (bool, error) {
	var rec ratioRecord
	ok, err := s.kv.KVGet(tokenGroupRatioKey(round, tokenGroup), &rec)
	return ok, err
}

// Ratio returns zero when unknown, per §4.B: "returns zero when unknown...
// must never fail votes but must cause power to be zero."
func (s *Store) Ratio(round uint64, tokenGroup string) (decimal.Dec, error) {
	var rec ratioRecord
	ok, err := s.kv.KVGet(tokenGroupRatioKey(round, tokenGroup), &rec)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return rec.Ratio, nil
}

// --- constants ---

type constantsIndex struct{ Activations []int64 }

func (s *Store) PutConstants(c Constants) error {
	if err := s.kv.KVPut(constantsKey(c.ActivationTimestamp), c); err != nil {
		return err
	}
	var idx constantsIndex
	_, err := s.kv.KVGet(constantsIndexKey(), &idx)
	if err != nil {
		return err
	}
	for _, a := range idx.Activations {
		if a == c.ActivationTimestamp {
			return nil
		}
	}
	idx.Activations = append(idx.Activations, c.ActivationTimestamp)
	sort.Slice(idx.Activations, func(i, j int) bool { return idx.Activations[i] < idx.Activations[j] })
	return s.kv.KVPut(constantsIndexKey(), idx)
}

// ConstantsAt selects the record with the greatest activation timestamp <=
// now.
func (s *Store) ConstantsAt(now int64) (Constants, bool, error) {
	var idx constantsIndex
	_, err := s.kv.KVGet(constantsIndexKey(), &idx)
	if err != nil {
		return Constants{}, false, err
	}
	i := sort.Search(len(idx.Activations), func(i int) bool { return idx.Activations[i] > now })
	if i == 0 {
		return Constants{}, false, nil
	}
	activation := idx.Activations[i-1]
	var c Constants
	ok, err := s.kv.KVGet(constantsKey(activation), &c)
	return c, ok, err
}

// --- audit log ---
//
// Append-only lifecycle trail, carried from original_source per
// SPEC_FULL.md's "Audit log" supplement and grounded on
// native/governance's AuditRecord/GovernanceAppendAudit idiom.

func auditKey() []byte { return []byte("hydro/audit") }

// AppendAudit records entry with the next sequence number and returns the
// stamped record.
func (s *Store) AppendAudit(entry AuditRecord) (AuditRecord, error) {
	seq, err := s.NextID("audit")
	if err != nil {
		return AuditRecord{}, err
	}
	entry.Seq = seq
	if entry.RecordID == "" {
		entry.RecordID = uuid.New().String()
	}
	if err := s.kv.KVAppend(auditKey(), entry); err != nil {
		return AuditRecord{}, err
	}
	return entry, nil
}

// AuditLog returns every recorded audit entry in append order.
func (s *Store) AuditLog() ([]AuditRecord, error) {
	var out []AuditRecord
	err := s.kv.KVGetList(auditKey(), func(raw []byte) error {
		var rec AuditRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// --- current round pointer ---

func currentRoundKey() []byte { return []byte("hydro/current-round") }

type currentRoundRecord struct{ Round uint64 }

// CurrentRoundStored returns the last round the engine promoted to (via
// ensureRound), or ok=false before the first promotion.
func (s *Store) CurrentRoundStored() (uint64, bool, error) {
	var rec currentRoundRecord
	ok, err := s.kv.KVGet(currentRoundKey(), &rec)
	return rec.Round, ok, err
}

// SetCurrentRoundStored persists the engine's current round pointer.
func (s *Store) SetCurrentRoundStored(round uint64) error {
	return s.kv.KVPut(currentRoundKey(), currentRoundRecord{Round: round})
}

// --- tranches ---

func trancheKey(id uint64) []byte { return []byte(fmt.Sprintf("hydro/tranche/%d", id)) }
func trancheIndexKey() []byte      { return []byte("hydro/tranche-index") }

type trancheRecord struct {
	ID   uint64
	Name string
}

type trancheIndexRecord struct{ IDs []uint64 }

// RegisterTranche creates tranche id if it does not already exist.
func (s *Store) RegisterTranche(id uint64, name string) error {
	var existing trancheRecord
	ok, err := s.kv.KVGet(trancheKey(id), &existing)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := s.kv.KVPut(trancheKey(id), trancheRecord{ID: id, Name: name}); err != nil {
		return err
	}
	var idx trancheIndexRecord
	_, err = s.kv.KVGet(trancheIndexKey(), &idx)
	if err != nil {
		return err
	}
	idx.IDs = append(idx.IDs, id)
	sort.Slice(idx.IDs, func(i, j int) bool { return idx.IDs[i] < idx.IDs[j] })
	return s.kv.KVPut(trancheIndexKey(), idx)
}

// TrancheExists reports whether id has been registered.
func (s *Store) TrancheExists(id uint64) (bool, error) {
	return s.kv.KVHas(trancheKey(id))
}

// Tranches lists every registered tranche id.
func (s *Store) Tranches() ([]uint64, error) {
	var idx trancheIndexRecord
	_, err := s.kv.KVGet(trancheIndexKey(), &idx)
	if err != nil {
		return nil, err
	}
	return idx.IDs, nil
}
