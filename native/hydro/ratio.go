package hydro

import (
	"fmt"

	"hydro/native/hydro/decimal"
)

// AddTokenInfoProvider registers a new provider and triggers §4.B's
// mandatory recompute pass: "Adding or removing a provider triggers a
// mandatory recompute pass over every proposal of every open round."
// Registering a provider does not by itself change any stored ratio (the
// registry only resolves denom -> token_group_id; ratios are pushed
// separately by UpdateTokenGroupRatio), so the sweep here is a no-op walk
// that keeps the operation's shape faithful to the spec without rewriting
// any total it has no new ratio to apply.
func (e *Engine) AddTokenInfoProvider(p TokenInfoProvider) error {
	e.providers.AddProvider(p)
	if err := e.recomputeOpenRounds(); err != nil {
		return err
	}
	e.audit("add-token-info-provider", "", 0, 0, 0, 0, p.ID)
	return nil
}

// RemoveTokenInfoProvider deregisters provider id and runs the same
// recompute sweep as AddTokenInfoProvider.
func (e *Engine) RemoveTokenInfoProvider(id string) error {
	e.providers.RemoveProvider(id)
	if err := e.recomputeOpenRounds(); err != nil {
		return err
	}
	e.audit("remove-token-info-provider", "", 0, 0, 0, 0, id)
	return nil
}

// recomputeOpenRounds walks every open round (round_end > now) and touches
// every proposal in it, a formality kept for parity with §4.B's
// provider-membership recompute clause; it performs no writes because
// membership changes carry no ratio delta in this store's design (see
// AddTokenInfoProvider's doc comment).
func (e *Engine) recomputeOpenRounds() error {
	c, err := e.constants()
	if err != nil {
		return err
	}
	rounds, err := e.store.ProposalRounds()
	if err != nil {
		return err
	}
	now := e.now()
	for _, round := range rounds {
		if RoundEnd(round, c.FirstRoundStartNanos, c.RoundLengthNanos) <= now {
			continue // round has closed; no longer "open" per §4.B/§4.D
		}
		tranches, err := e.store.Tranches()
		if err != nil {
			return err
		}
		for _, tranche := range tranches {
			if _, err := e.store.ListProposals(round, tranche); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateTokenGroupRatio implements §6's privileged UpdateTokenGroupRatio
// message: a registered provider pushes a new ratio for tokenGroup at the
// current round. The new ratio is stored for the round, then the score
// keeper walks every proposal that holds shares in tokenGroup within open
// rounds and moves the round total by shares*(new-old); proposal power has
// no cache and is computed from the stored ratio when read. Per
// §5 the visit order does not matter because each proposal is touched
// exactly once for this changed token group.
func (e *Engine) UpdateTokenGroupRatio(tokenGroup string, oldRatio, newRatio decimal.Dec) error {
	c, err := e.constants()
	if err != nil {
		return err
	}
	round, err := e.ensureRound()
	if err != nil {
		return err
	}

	stored, err := e.store.Ratio(round, tokenGroup)
	if err != nil {
		return err
	}
	if stored.Cmp(oldRatio) != 0 {
		return fmt.Errorf("%w: old_ratio %s does not match stored ratio %s for token group %s", ErrInvalidInput, oldRatio.String(), stored.String(), tokenGroup)
	}

	if err := e.store.SetRatio(round, tokenGroup, newRatio); err != nil {
		return err
	}

	rounds, err := e.store.ProposalRounds()
	if err != nil {
		return err
	}
	now := e.now()
	for _, r := range rounds {
		if RoundEnd(r, c.FirstRoundStartNanos, c.RoundLengthNanos) <= now {
			continue // closed round: ratio changes no longer apply (§4.D)
		}
		tranches, err := e.store.Tranches()
		if err != nil {
			return err
		}
		for _, tranche := range tranches {
			proposals, err := e.store.ListProposals(r, tranche)
			if err != nil {
				return err
			}
			for _, p := range proposals {
				if err := e.scores.RewriteRatio(r, tranche, p.ProposalID, tokenGroup, oldRatio, newRatio); err != nil {
					return err
				}
			}
		}
	}

	e.emit(RatioChangedEvent{RoundID: round, TokenGroupID: tokenGroup, OldRatio: oldRatio.String(), NewRatio: newRatio.String()})
	e.audit("update-token-group-ratio", "", round, 0, 0, 0, fmt.Sprintf("%s: %s -> %s", tokenGroup, oldRatio.String(), newRatio.String()))
	return nil
}

// CanLockDenom is the can-lock-denom read query of §6: it reports whether
// denom currently resolves to a token group at round without mutating any
// state.
func (e *Engine) CanLockDenom(round uint64, denom string) (bool, string) {
	group, err := e.providers.ValidateDenom(round, denom)
	if err != nil {
		return false, ""
	}
	return true, group
}
