package hydro

import "hydro/native/hydro/decimal"

// ScoreKeeper maintains the per-proposal token-group share ledger and the
// per-round cached totals described in §4.D, grounded on
// state/potso/weights.go's mutex-free record{base,value}-style ledger: one
// logical step mutates both the proposal cache and the round total so no
// other read can observe a half-applied delta.
type ScoreKeeper struct {
	store *Store
}

// NewScoreKeeper constructs a ScoreKeeper over store.
func NewScoreKeeper(store *Store) *ScoreKeeper {
	return &ScoreKeeper{store: store}
}

// ProposalPower computes a proposal's power live as Σ shares·ratio over its
// token groups, using each group's stored ratio for the round. Each Mul
// truncates and the sum is not rounded up; a negative sum reads as zero.
func (k *ScoreKeeper) ProposalPower(round, tranche, proposal uint64) (decimal.Dec, error) {
	groups, err := k.store.ProposalTokenGroups(round, tranche, proposal)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, g := range groups {
		shares, err := k.store.GetProposalShares(round, tranche, proposal, g)
		if err != nil {
			return decimal.Zero, err
		}
		if shares.IsZero() {
			continue
		}
		ratio, err := k.store.Ratio(round, g)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(shares.Mul(ratio))
	}
	if total.Sign() < 0 {
		total = decimal.Zero
	}
	return total, nil
}

// ApplyDelta applies one ProposalPowerUpdate atomically: the token-group
// shares ledger and the round total are both mutated before returning,
// matching §5's "single logical step" requirement. power deltas are
// computed against the ratio in effect for upd.RoundID at call time.
func (k *ScoreKeeper) ApplyDelta(upd ProposalPowerUpdate) (powerDelta decimal.Dec, err error) {
	if upd.SharesDelta.IsZero() {
		return decimal.Zero, nil
	}
	current, err := k.store.GetProposalShares(upd.RoundID, upd.TrancheID, upd.ProposalID, upd.TokenGroupID)
	if err != nil {
		return decimal.Zero, err
	}
	ratio, err := k.store.Ratio(upd.RoundID, upd.TokenGroupID)
	if err != nil {
		return decimal.Zero, err
	}
	updated := current.Add(upd.SharesDelta)
	if err := k.store.SetProposalShares(upd.RoundID, upd.TrancheID, upd.ProposalID, upd.TokenGroupID, updated); err != nil {
		return decimal.Zero, err
	}
	delta := upd.SharesDelta.Mul(ratio)
	if err := k.store.AddRoundTotal(upd.RoundID, delta); err != nil {
		return decimal.Zero, err
	}
	return delta, nil
}

// RewriteRatio implements the ratio-change recompute pass of §4.D: when a
// token group's ratio moves from rOld to rNew, the round total moves by
// shares*(rNew-rOld) for every proposal holding shares in that group.
// Proposal power itself is not stored: ProposalPower reads the ratio the
// caller has stored for the round. Visit order across proposals does not matter (§5): every
// proposal is touched exactly once per changed token group.
func (k *ScoreKeeper) RewriteRatio(round, tranche, proposal uint64, tokenGroup string, rOld, rNew decimal.Dec) error {
	shares, err := k.store.GetProposalShares(round, tranche, proposal, tokenGroup)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return nil
	}
	delta := shares.Mul(rNew.Sub(rOld))
	if delta.IsZero() {
		return nil
	}
	return k.store.AddRoundTotal(round, delta)
}
