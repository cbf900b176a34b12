package hydro

import "hydro/native/hydro/decimal"

// ensureRound implements §4.F's implicit round advance: every
// state-changing operation first computes the current round from the
// block time; if it exceeds the stored round_id, a promotion step runs
// that seeds per-round validator-ratio stores by copy-forward from the
// previous round and leaves open proposals in their original rounds (no
// roll-forward). It returns the (possibly just-promoted) current round.
func (e *Engine) ensureRound() (uint64, error) {
	c, err := e.constants()
	if err != nil {
		return 0, err
	}
	current, err := CurrentRound(e.now(), c.FirstRoundStartNanos, c.RoundLengthNanos)
	if err != nil {
		return 0, err
	}

	stored, ok, err := e.store.CurrentRoundStored()
	if err != nil {
		return 0, err
	}
	if !ok {
		// First-ever transaction: seed the pointer without a copy-forward,
		// there being no previous round to copy from.
		if err := e.store.SetCurrentRoundStored(current); err != nil {
			return 0, err
		}
		return current, nil
	}
	if current <= stored {
		return stored, nil
	}

	// Promote one round at a time so every intermediate round's ratio
	// snapshot is seeded even if multiple rounds elapsed since the last
	// transaction (e.g. after a long chain halt).
	for r := stored + 1; r <= current; r++ {
		if err := e.copyForwardRatios(r - 1, r); err != nil {
			return 0, err
		}
		if err := e.store.SetCurrentRoundStored(r); err != nil {
			return 0, err
		}
		e.emit(RoundAdvancedEvent{PreviousRound: r - 1, NewRound: r})
		e.audit("round-advance", "", r, 0, 0, 0, "")
	}
	return current, nil
}

// copyForwardRatios seeds round `to`'s validator-ratio snapshot from round
// `from`'s for every token group with a known ratio, so deliveries arriving
// late continue the last-known distribution (§4.F) rather than silently
// zeroing out.
func (e *Engine) copyForwardRatios(from, to uint64) error {
	groups, err := e.store.KnownTokenGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		has, err := e.store.HasRatio(to, g)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		ratio, err := e.store.Ratio(from, g)
		if err != nil {
			return err
		}
		if err := e.store.SetRatio(to, g, ratio); err != nil {
			return err
		}
	}
	return nil
}

// CurrentRound is a read-only query mirroring ensureRound's computation
// without mutating the stored pointer, for the "current round and round
// end" query surface (§6).
func (e *Engine) CurrentRound() (uint64, error) {
	c, err := e.constants()
	if err != nil {
		return 0, err
	}
	return CurrentRound(e.now(), c.FirstRoundStartNanos, c.RoundLengthNanos)
}

// RoundEndAt returns the end timestamp of round, per §4.A.
func (e *Engine) RoundEndAt(round uint64) (int64, error) {
	c, err := e.constants()
	if err != nil {
		return 0, err
	}
	return RoundEnd(round, c.FirstRoundStartNanos, c.RoundLengthNanos), nil
}

// RoundTotalVotingPower is the per-round total voting power query of §6.
func (e *Engine) RoundTotalVotingPower(round uint64) (decimal.Dec, error) {
	return e.store.RoundTotal(round)
}
