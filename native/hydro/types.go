package hydro

import "hydro/native/hydro/decimal"

// Coin is a single denom/amount pair, the only funds shape the engine ever
// accepts in one operation (§3: "funds (a single coin)").
type Coin struct {
	Denom  string
	Amount uint64
}

// RoundLockPowerStep is one (threshold, multiplier) pair of a
// RoundLockPowerSchedule.
type RoundLockPowerStep struct {
	LockEpochsThreshold uint64
	Multiplier          decimal.Dec
}

// CollectionInfo mirrors the cw721 collection metadata carried in Constants
// (name/symbol/base URI), exposed only to read queries.
type CollectionInfo struct {
	Name    string
	Symbol  string
	BaseURI string
}

// Constants is one time-versioned configuration record. Reads always select
// the record with the greatest ActivationTimestamp <= now.
type Constants struct {
	ActivationTimestamp          int64
	RoundLengthNanos             int64
	LockEpochLengthNanos         int64
	FirstRoundStartNanos         int64
	MaxLockedTokens              uint64
	KnownUsersCap                uint64
	MaxValidatorSharesParticipating uint32
	HubConnectionID              string
	HubTransferChannelID         string
	ICQUpdatePeriod              int64
	Paused                       bool
	MaxDeploymentDuration        uint64
	RoundLockPowerSchedule       []RoundLockPowerStep
	Collection                   CollectionInfo
	LockDepthLimit               uint32
	LockExpiryDurationSeconds    int64
	SlashPercentageThresholdBPS  uint32
	SlashTokensReceiverAddr      string
	// TopNProposals is tribute's top_n_props_count: the number of
	// highest-power proposals per (round, tranche) eligible for tribute
	// claims and ineligible for refund.
	TopNProposals uint32
	// CommunityTaxBps is the basis-point share of every tribute routed to
	// the community pool bucket on ClaimCommunityPoolTribute, mirroring
	// the host chain's distribution-module community tax.
	CommunityTaxBps uint32
	// CommunityPoolBucket is the address ClaimCommunityPoolTribute's
	// cross-chain transfer side effect targets.
	CommunityPoolBucket string
}

// Lock is a time-bounded position conferring voting power.
type Lock struct {
	LockID uint64
	Owner  string
	Funds  Coin
	// TokenGroupID is the group resolved at Lock time (§4.B); cached so
	// Transfer's LSM-non-transferable policy check does not need to
	// re-resolve the denom.
	TokenGroupID string
	// NonTransferable is set when the resolving provider was ProviderLSM,
	// per §4.C: "LSM-backed locks are non-transferable (policy)."
	NonTransferable bool
	LockStart       int64
	LockEnd         int64
	// PendingSlashBps is the basis-point portion of Funds.Amount withheld
	// on Unlock and redirected to Constants.SlashTokensReceiverAddr,
	// supplementing §3's slash_percentage_threshold fields.
	PendingSlashBps uint32
}

// Expired reports whether the lock may be unlocked as of blockTime (ns).
func (l *Lock) Expired(blockTimeNanos int64) bool {
	return blockTimeNanos > l.LockEnd
}

// LineageEdge is one forward edge from a parent lock to a child produced by
// Split or Merge, carrying the fraction of the parent's history the child
// represents for historical vote reconstruction.
type LineageEdge struct {
	ChildLockID uint64
	Fraction    decimal.Dec
}

// Proposal competes for the bounded pool of deployable liquidity within one
// (round, tranche).
type Proposal struct {
	RoundID    uint64
	TrancheID  uint64
	ProposalID uint64
	// Power is a display cache of the last-computed aggregate; the
	// authoritative value is always recomputed by ScoreKeeper.ProposalPower
	// from the token-group shares ledger (§3 "a separate proposal_total
	// duplicates the aggregate for O(1) reads").
	Power decimal.Dec
	// Percentage is an informational display field (§3); it is not an
	// input to any invariant and is left at the caller's discretion.
	Percentage                  decimal.Dec
	Title                       string
	Description                 string
	DeploymentDuration          uint64
	MinimumAtomLiquidityRequest uint64
	// ContentHash is a blake3 digest of Title+Description (hex-encoded),
	// stamped by CreateProposal the same way native/creator's
	// sanitizeMetadata fingerprints NFT metadata, so a client can detect
	// that a proposal's displayed text has not been altered since creation
	// without re-fetching the full description.
	ContentHash string
}

// TimeWeightedShares is a vote's contribution expressed in one token group.
type TimeWeightedShares struct {
	TokenGroupID string
	Shares       decimal.Dec
}

// Vote is keyed by ((round, tranche), lock_id).
type Vote struct {
	ProposalID uint64
	Shares     TimeWeightedShares
}

// Tribute is funds attached to a proposal, paid to voters of winning
// proposals at round end.
type Tribute struct {
	TributeID uint64
	RoundID   uint64
	TrancheID uint64
	ProposalID uint64
	Funds     Coin
	Depositor string
	Refunded  bool
}

// ProposalPowerUpdate is the atomic delta the score keeper applies: for each
// token group, a signed shares delta.
type ProposalPowerUpdate struct {
	RoundID      uint64
	TrancheID    uint64
	ProposalID   uint64
	TokenGroupID string
	SharesDelta  decimal.Dec // may be negative
}

// SideEffect is a deferred external action (bank send, cross-chain
// transfer) collected by an operation instead of performed in place.
type SideEffect struct {
	Kind      SideEffectKind
	Recipient string
	Coin      Coin
	Memo      string
}

// SideEffectKind enumerates the SideEffect variants the engine can emit.
type SideEffectKind int

const (
	SideEffectBankSend SideEffectKind = iota
	SideEffectCrossChainTransfer
)

// VoteLockRequest is one (proposal_id, lock_ids) pair inside a Vote message.
type VoteLockRequest struct {
	ProposalID uint64
	LockIDs    []uint64
}

// AuditRecord is one append-only lifecycle entry, supplementing the
// distilled spec with the audit trail original_source keeps per proposal
// (SPEC_FULL.md "Audit log"), grounded on native/governance's
// AuditRecord/GovernanceAppendAudit idiom.
type AuditRecord struct {
	// RecordID is a random external-correlation id stamped by
	// Store.AppendAudit (github.com/google/uuid, the same id-stamping
	// idiom services/otc-gateway uses for invoice records), independent of
	// Seq so log shipping/dedup in an external system doesn't have to
	// reason about this store's sequence-number allocation.
	RecordID   string
	Seq        uint64
	Action     string
	Actor      string
	RoundID    uint64
	TrancheID  uint64
	ProposalID uint64
	LockID     uint64
	Detail     string
	AtNanos    int64
}
