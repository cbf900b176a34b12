package hydro

import "fmt"

// RecordDeployment implements §4.H's write-once liquidity-deployment
// registry: a deployment is keyed by (round, tranche, proposal) and may be
// written exactly once. funds may be the zero coin, which is the signal
// that releases a lock's voting lockout early (§4.E step 3).
func (e *Engine) RecordDeployment(round, tranche, proposal uint64, funds Coin) error {
	if _, exists, err := e.store.GetDeployment(round, tranche, proposal); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: deployment for (%d,%d,%d) already recorded", ErrPolicyViolation, round, tranche, proposal)
	}
	if err := e.store.PutDeployment(round, tranche, proposal, funds); err != nil {
		return err
	}
	e.emit(DeploymentWrittenEvent{RoundID: round, TrancheID: tranche, ProposalID: proposal, Funds: funds})
	return nil
}

// Deployment is the liquidity-deployment read query of §6.
func (e *Engine) Deployment(round, tranche, proposal uint64) (Coin, bool, error) {
	return e.store.GetDeployment(round, tranche, proposal)
}
