package hydro

import (
	"fmt"

	"hydro/native/hydro/decimal"
)

// ProviderKind is the closed set of token-info-provider variants. Dispatch
// is an exhaustive switch on Kind rather than a Go interface, mirroring the
// tagged-union shape of the upstream contract's provider enum: the set of
// variants is closed and known at compile time, so hiding it behind
// interface{} would only cost a type assertion at every call site.
type ProviderKind int

const (
	ProviderLSM ProviderKind = iota
	ProviderDerivative
)

// LSMDenomResolver resolves an IBC-transferred LSM share denom to the
// validator address it represents. Real denom-trace resolution is an
// external ICQ boundary concern; the core only consumes this interface.
type LSMDenomResolver interface {
	ResolveValidator(channelID, denom string) (validatorAddr string, ok bool)
}

// ValidatorPowerSource reports whether a validator is currently within the
// top-N by delegated tokens for a round. Refreshed by interchain-query
// results, which are external to the core.
type ValidatorPowerSource interface {
	InTopN(round uint64, validatorAddr string) bool
}

// TokenInfoProvider is one registered provider.
type TokenInfoProvider struct {
	ID   string
	Kind ProviderKind

	// LSM fields.
	TransferChannelID string

	// Derivative fields: a single (denom, token_group_id, ratio) triple.
	DerivativeDenom      string
	DerivativeTokenGroup string
	DerivativeRatio      decimal.Dec
}

// ProviderRegistry resolves denom -> token_group_id and token_group_id ->
// ratio, pluggably, per §4.B.
type ProviderRegistry struct {
	providers []TokenInfoProvider
	resolver  LSMDenomResolver
	power     ValidatorPowerSource
}

// NewProviderRegistry constructs a registry backed by the external LSM
// denom resolver and validator top-N power source.
func NewProviderRegistry(resolver LSMDenomResolver, power ValidatorPowerSource) *ProviderRegistry {
	return &ProviderRegistry{resolver: resolver, power: power}
}

// AddProvider registers a provider. Callers must follow up with a
// recompute sweep (Engine.recomputeOpenRounds) per §4.B.
func (r *ProviderRegistry) AddProvider(p TokenInfoProvider) {
	r.providers = append(r.providers, p)
}

// RemoveProvider deregisters a provider by id. Callers must follow up with
// a recompute sweep.
func (r *ProviderRegistry) RemoveProvider(id string) {
	out := r.providers[:0]
	for _, p := range r.providers {
		if p.ID != id {
			out = append(out, p)
		}
	}
	r.providers = out
}

// ValidateDenom resolves denom to a token_group_id at round, iterating
// providers and returning the first success. With exactly one registered
// provider, that provider's specific error propagates.
func (r *ProviderRegistry) ValidateDenom(round uint64, denom string) (string, error) {
	var lastErr error
	for _, p := range r.providers {
		group, err := r.validateWithProvider(round, denom, p)
		if err == nil {
			return group, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %s", ErrTokenNotLockable, denom)
}

func (r *ProviderRegistry) validateWithProvider(round uint64, denom string, p TokenInfoProvider) (string, error) {
	switch p.Kind {
	case ProviderLSM:
		if r.resolver == nil {
			return "", fmt.Errorf("%w: no LSM denom resolver configured", ErrTokenNotLockable)
		}
		validator, ok := r.resolver.ResolveValidator(p.TransferChannelID, denom)
		if !ok {
			return "", fmt.Errorf("%w: %s is not an LSM share of channel %s", ErrTokenNotLockable, denom, p.TransferChannelID)
		}
		if r.power == nil || !r.power.InTopN(round, validator) {
			return "", fmt.Errorf("%w: validator %s not in top-N at round %d", ErrTokenNotLockable, validator, round)
		}
		return lsmTokenGroupID(validator), nil
	case ProviderDerivative:
		if denom != p.DerivativeDenom {
			return "", fmt.Errorf("%w: %s is not %s", ErrTokenNotLockable, denom, p.DerivativeDenom)
		}
		return p.DerivativeTokenGroup, nil
	default:
		return "", fmt.Errorf("%w: unknown provider kind", ErrTokenNotLockable)
	}
}

func lsmTokenGroupID(validatorAddr string) string {
	return "validator/" + validatorAddr
}
