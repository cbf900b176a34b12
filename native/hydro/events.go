package hydro

import "hydro/core/events"

// Event type tags, grounded on native/governance/engine.go's
// EventTypeProposalProposed/EventTypeVoteCast idiom: one constant per
// lifecycle transition, each backing a concrete Event struct below.
const (
	EventTypeLockCreated      = "hydro.lock.created"
	EventTypeLockRefreshed    = "hydro.lock.refreshed"
	EventTypeLockSplit        = "hydro.lock.split"
	EventTypeLockMerged       = "hydro.lock.merged"
	EventTypeLockTransferred  = "hydro.lock.transferred"
	EventTypeLockUnlocked     = "hydro.lock.unlocked"
	EventTypeProposalCreated  = "hydro.proposal.created"
	EventTypeVoteCast         = "hydro.vote.cast"
	EventTypeRoundAdvanced    = "hydro.round.advanced"
	EventTypeRatioChanged     = "hydro.ratio.changed"
	EventTypeTributeDeposited = "hydro.tribute.deposited"
	EventTypeTributeClaimed   = "hydro.tribute.claimed"
	EventTypeTributeRefunded  = "hydro.tribute.refunded"
	EventTypeDeploymentWritten = "hydro.deployment.written"
	EventTypeLockSlashed       = "hydro.lock.slashed"
)

// LockCreatedEvent is emitted by Lock.
type LockCreatedEvent struct {
	LockID uint64
	Owner  string
	Denom  string
	Amount uint64
}

func (LockCreatedEvent) EventType() string { return EventTypeLockCreated }

// LockRefreshedEvent is emitted by Refresh.
type LockRefreshedEvent struct {
	LockID     uint64
	OldLockEnd int64
	NewLockEnd int64
}

func (LockRefreshedEvent) EventType() string { return EventTypeLockRefreshed }

// LockSplitEvent is emitted by Split.
type LockSplitEvent struct {
	ParentLockID uint64
	ChildLockID  uint64
	ChildAmount  uint64
}

func (LockSplitEvent) EventType() string { return EventTypeLockSplit }

// LockMergedEvent is emitted by Merge.
type LockMergedEvent struct {
	InputLockIDs []uint64
	NewLockID    uint64
}

func (LockMergedEvent) EventType() string { return EventTypeLockMerged }

// LockTransferredEvent is emitted by Transfer.
type LockTransferredEvent struct {
	LockID uint64
	From   string
	To     string
}

func (LockTransferredEvent) EventType() string { return EventTypeLockTransferred }

// LockUnlockedEvent is emitted by Unlock.
type LockUnlockedEvent struct {
	LockID   uint64
	Owner    string
	Released Coin
	Slashed  Coin
}

func (LockUnlockedEvent) EventType() string { return EventTypeLockUnlocked }

// ProposalCreatedEvent is emitted by CreateProposal.
type ProposalCreatedEvent struct {
	RoundID    uint64
	TrancheID  uint64
	ProposalID uint64
}

func (ProposalCreatedEvent) EventType() string { return EventTypeProposalCreated }

// VoteCastEvent is emitted once per Vote message.
type VoteCastEvent struct {
	RoundID   uint64
	TrancheID uint64
	Voter     string
	LockCount int
}

func (VoteCastEvent) EventType() string { return EventTypeVoteCast }

// RoundAdvancedEvent is emitted when Engine.ensureRound promotes the round.
type RoundAdvancedEvent struct {
	PreviousRound uint64
	NewRound      uint64
}

func (RoundAdvancedEvent) EventType() string { return EventTypeRoundAdvanced }

// RatioChangedEvent is emitted by UpdateTokenGroupRatio.
type RatioChangedEvent struct {
	RoundID      uint64
	TokenGroupID string
	OldRatio     string
	NewRatio     string
}

func (RatioChangedEvent) EventType() string { return EventTypeRatioChanged }

// TributeDepositedEvent is emitted by AddTribute.
type TributeDepositedEvent struct {
	TributeID  uint64
	ProposalID uint64
	Depositor  string
	Coin       Coin
}

func (TributeDepositedEvent) EventType() string { return EventTypeTributeDeposited }

// TributeClaimedEvent is emitted by ClaimTribute.
type TributeClaimedEvent struct {
	TributeID uint64
	Voter     string
	Paid      Coin
}

func (TributeClaimedEvent) EventType() string { return EventTypeTributeClaimed }

// TributeRefundedEvent is emitted by RefundTribute.
type TributeRefundedEvent struct {
	TributeID uint64
	Depositor string
	Coin      Coin
}

func (TributeRefundedEvent) EventType() string { return EventTypeTributeRefunded }

// DeploymentWrittenEvent is emitted by RecordDeployment.
type DeploymentWrittenEvent struct {
	RoundID    uint64
	TrancheID  uint64
	ProposalID uint64
	Funds      Coin
}

func (DeploymentWrittenEvent) EventType() string { return EventTypeDeploymentWritten }

// LockSlashedEvent is emitted by RecordSlash for each lock whose
// pending-slash portion changed.
type LockSlashedEvent struct {
	LockID          uint64
	SlashBps        uint32
	PendingSlashBps uint32
}

func (LockSlashedEvent) EventType() string { return EventTypeLockSlashed }

var _ events.Event = LockCreatedEvent{}
