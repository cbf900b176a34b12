// Package adapter defines the uniform surface Hydro's core consumes from
// its external inflow collaborators (IBC, Mars, and similar host-chain
// adapters), grounded on native/pos.Registry's KV-backed capability
// registry. Concrete adapters (the wire protocol to host chains, the
// interchain-query plumbing) are external collaborators out of scope for
// this module; only the interface and an in-memory reference
// implementation used by tests live here.
package adapter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hydro/crypto"
)

// Coin is a single denom/amount pair, mirroring the core engine's funds
// shape at the adapter boundary.
type Coin struct {
	Denom  string
	Amount uint64
}

// Capabilities are the per-depositor permission bits the core's depositor
// allowlist enforces (§4.J: "holding a depositor allowlist with
// per-depositor capability bits").
type Capabilities struct {
	CanDeposit  bool
	CanWithdraw bool
}

// Position is one depositor's held balance in one denom.
type Position struct {
	Denom  string
	Amount uint64
}

// Adapter is the external-collaborator surface consumed by the core at its
// boundary (§4.J / §6).
type Adapter interface {
	Deposit(depositor string, coin Coin) error
	Withdraw(depositor string, coin Coin) error
	RegisterDepositor(authority, depositor string, nonce uint64, capabilities Capabilities) error
	UnregisterDepositor(authority, depositor string, nonce uint64) error
	ToggleDepositorEnabled(authority, depositor string, nonce uint64, enabled bool) error

	AvailableForDeposit(denom string) (uint64, error)
	AvailableForWithdraw(depositor, denom string) (uint64, error)
	TimeToWithdraw(depositor, denom string) (int64, error)
	Positions(depositor string) ([]Position, error)
	RegisteredDepositors() ([]string, error)
}

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Depositor captures the sponsorship state for one registered depositor,
// the adapter-side analogue of native/pos.Merchant.
type Depositor struct {
	Address      string
	Enabled      bool
	Nonce        uint64
	Capabilities Capabilities
}

// Reference is an in-memory, KV-backed adapter used by tests and as the
// default wiring before a concrete IBC/Mars adapter is configured. Withdraw
// time-to-withdraw is instantaneous (delay=0) since it has no host chain
// unbonding period to model.
type Reference struct {
	state registryState
}

// NewReference constructs a Reference adapter backed by state.
func NewReference(state registryState) *Reference {
	return &Reference{state: state}
}

func normalizeDepositor(addr string) string {
	return strings.TrimSpace(addr)
}

// DeriveDepositorAddress converts a depositor's public key into its
// canonical bech32 address (§6: "External Interfaces" assumes depositors
// authenticate the same way the rest of the chain does). Callers that
// onboard a depositor from a raw key pair rather than a pre-assigned
// chain address use this to obtain the string RegisterDepositor expects.
func DeriveDepositorAddress(pub *crypto.PublicKey) string {
	return pub.Address().String()
}

// ValidateDepositorAddress rejects malformed bech32 addresses before they
// are recorded. It is opt-in (callers that use chain-native addresses call
// it explicitly) rather than enforced inside RegisterDepositor, since
// reference/test callers also exercise the adapter with short mnemonic
// names that are not themselves bech32.
func ValidateDepositorAddress(addr string) error {
	_, err := crypto.DecodeAddress(addr)
	return err
}

func depositorKey(addr string) []byte { return []byte(fmt.Sprintf("adapter/depositor/%s", addr)) }
func nonceKey(addr string) []byte     { return []byte(fmt.Sprintf("adapter/nonce/%s", addr)) }
func balanceKey(addr, denom string) []byte {
	return []byte(fmt.Sprintf("adapter/balance/%s/%s", addr, denom))
}
func poolKey(denom string) []byte        { return []byte(fmt.Sprintf("adapter/pool/%s", denom)) }
func indexKey() []byte                   { return []byte("adapter/depositor-index") }
func denomIndexKey(addr string) []byte   { return []byte(fmt.Sprintf("adapter/denoms/%s", addr)) }

type nonceRecord struct{ Nonce uint64 }
type balanceRecord struct{ Amount uint64 }
type poolRecord struct{ Amount uint64 }
type indexRecord struct{ Addresses []string }
type denomIndexRecord struct{ Denoms []string }

func (r *Reference) ensureFreshNonce(authority string, nonce uint64) error {
	if r == nil || r.state == nil {
		return errors.New("adapter: registry not initialized")
	}
	if strings.TrimSpace(authority) == "" {
		return fmt.Errorf("adapter: authority required")
	}
	if nonce == 0 {
		return fmt.Errorf("adapter: nonce must be positive")
	}
	var stored nonceRecord
	ok, err := r.state.KVGet(nonceKey(authority), &stored)
	if err != nil {
		return err
	}
	if ok && nonce <= stored.Nonce {
		return fmt.Errorf("adapter: stale nonce %d (last %d)", nonce, stored.Nonce)
	}
	return r.state.KVPut(nonceKey(authority), nonceRecord{Nonce: nonce})
}

// AuthorityTokenVerifier checks HS256-signed authority tokens before an
// admin action (RegisterDepositor/UnregisterDepositor/
// ToggleDepositorEnabled) is allowed to run, grounded on
// services/otc-gateway/auth.jwtVerifier's ParseWithClaims/WithValidMethods/
// WithIssuer idiom, simplified to a single HMAC secret since the adapter
// boundary has no multi-tenant key rotation requirement.
type AuthorityTokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthorityTokenVerifier builds a verifier that accepts only HS256
// tokens signed with secret and carrying iss=issuer.
func NewAuthorityTokenVerifier(secret []byte, issuer string) *AuthorityTokenVerifier {
	return &AuthorityTokenVerifier{secret: secret, issuer: issuer, now: time.Now}
}

// VerifyAuthority parses tokenString and returns its subject claim, which
// callers pass as RegisterDepositor/UnregisterDepositor/
// ToggleDepositorEnabled's authority argument in place of a bare string.
func (v *AuthorityTokenVerifier) VerifyAuthority(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("adapter: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(func() time.Time { return v.now() }))
	if err != nil {
		return "", fmt.Errorf("adapter: invalid authority token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("adapter: invalid authority token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("adapter: authority token missing subject")
	}
	return sub, nil
}

func (r *Reference) getDepositor(addr string) (Depositor, bool, error) {
	var d Depositor
	ok, err := r.state.KVGet(depositorKey(addr), &d)
	return d, ok, err
}

// RegisterDepositor onboards addr with the supplied capability bits,
// defaulting to enabled. Repeated registration overwrites capabilities so
// migrations remain deterministic, mirroring UpsertMerchant.
func (r *Reference) RegisterDepositor(authority, depositor string, nonce uint64, capabilities Capabilities) error {
	normalized := normalizeDepositor(depositor)
	if normalized == "" {
		return fmt.Errorf("adapter: depositor address required")
	}
	if err := r.ensureFreshNonce(authority, nonce); err != nil {
		return err
	}
	d := Depositor{Address: normalized, Enabled: true, Nonce: nonce, Capabilities: capabilities}
	if err := r.state.KVPut(depositorKey(normalized), d); err != nil {
		return err
	}
	var idx indexRecord
	if _, err := r.state.KVGet(indexKey(), &idx); err != nil {
		return err
	}
	for _, existing := range idx.Addresses {
		if existing == normalized {
			return nil
		}
	}
	idx.Addresses = append(idx.Addresses, normalized)
	return r.state.KVPut(indexKey(), idx)
}

// UnregisterDepositor removes depositor's capability to deposit or
// withdraw without erasing its recorded positions. Deposit and Withdraw
// are refused for it afterwards; the adapter has no other operation that
// moves those positions.
func (r *Reference) UnregisterDepositor(authority, depositor string, nonce uint64) error {
	if err := r.ensureFreshNonce(authority, nonce); err != nil {
		return err
	}
	d, ok, err := r.getDepositor(depositor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("adapter: depositor %s not registered", depositor)
	}
	d.Enabled = false
	d.Capabilities = Capabilities{}
	return r.state.KVPut(depositorKey(depositor), d)
}

// ToggleDepositorEnabled flips depositor's enabled flag without touching
// its capability bits.
func (r *Reference) ToggleDepositorEnabled(authority, depositor string, nonce uint64, enabled bool) error {
	if err := r.ensureFreshNonce(authority, nonce); err != nil {
		return err
	}
	d, ok, err := r.getDepositor(depositor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("adapter: depositor %s not registered", depositor)
	}
	d.Enabled = enabled
	return r.state.KVPut(depositorKey(depositor), d)
}

// Deposit implements §4.J's Deposit: holds funds keyed to depositor and
// denom, subject to the depositor's CanDeposit capability.
func (r *Reference) Deposit(depositor string, coin Coin) error {
	if coin.Amount == 0 {
		return fmt.Errorf("adapter: deposit amount must be non-zero")
	}
	d, ok, err := r.getDepositor(depositor)
	if err != nil {
		return err
	}
	if !ok || !d.Enabled || !d.Capabilities.CanDeposit {
		return fmt.Errorf("adapter: %s is not permitted to deposit", depositor)
	}

	var bal balanceRecord
	wasZero := false
	if ok, err := r.state.KVGet(balanceKey(depositor, coin.Denom), &bal); err != nil {
		return err
	} else {
		wasZero = !ok || bal.Amount == 0
	}
	bal.Amount += coin.Amount
	if err := r.state.KVPut(balanceKey(depositor, coin.Denom), bal); err != nil {
		return err
	}
	if wasZero {
		if err := r.addDenom(depositor, coin.Denom); err != nil {
			return err
		}
	}

	var pool poolRecord
	if _, err := r.state.KVGet(poolKey(coin.Denom), &pool); err != nil {
		return err
	}
	pool.Amount += coin.Amount
	return r.state.KVPut(poolKey(coin.Denom), pool)
}

func (r *Reference) addDenom(depositor, denom string) error {
	var idx denomIndexRecord
	if _, err := r.state.KVGet(denomIndexKey(depositor), &idx); err != nil {
		return err
	}
	for _, existing := range idx.Denoms {
		if existing == denom {
			return nil
		}
	}
	idx.Denoms = append(idx.Denoms, denom)
	return r.state.KVPut(denomIndexKey(depositor), idx)
}

// Withdraw implements §4.J's Withdraw, subject to the depositor's
// CanWithdraw capability flag.
func (r *Reference) Withdraw(depositor string, coin Coin) error {
	d, ok, err := r.getDepositor(depositor)
	if err != nil {
		return err
	}
	if !ok || !d.Enabled || !d.Capabilities.CanWithdraw {
		return fmt.Errorf("adapter: %s is not permitted to withdraw", depositor)
	}

	var bal balanceRecord
	if _, err := r.state.KVGet(balanceKey(depositor, coin.Denom), &bal); err != nil {
		return err
	}
	if bal.Amount < coin.Amount {
		return fmt.Errorf("adapter: %s has insufficient %s balance", depositor, coin.Denom)
	}
	bal.Amount -= coin.Amount
	if err := r.state.KVPut(balanceKey(depositor, coin.Denom), bal); err != nil {
		return err
	}

	var pool poolRecord
	if _, err := r.state.KVGet(poolKey(coin.Denom), &pool); err != nil {
		return err
	}
	pool.Amount -= coin.Amount
	return r.state.KVPut(poolKey(coin.Denom), pool)
}

// AvailableForDeposit reports the adapter-wide pool balance of denom.
func (r *Reference) AvailableForDeposit(denom string) (uint64, error) {
	var pool poolRecord
	_, err := r.state.KVGet(poolKey(denom), &pool)
	return pool.Amount, err
}

// AvailableForWithdraw reports depositor's withdrawable balance of denom.
func (r *Reference) AvailableForWithdraw(depositor, denom string) (uint64, error) {
	var bal balanceRecord
	_, err := r.state.KVGet(balanceKey(depositor, denom), &bal)
	return bal.Amount, err
}

// TimeToWithdraw reports the unbonding delay (nanoseconds) before a
// withdrawal of denom settles. The reference adapter has none.
func (r *Reference) TimeToWithdraw(depositor, denom string) (int64, error) {
	return 0, nil
}

// Positions lists every denom/amount depositor currently holds.
func (r *Reference) Positions(depositor string) ([]Position, error) {
	var idx denomIndexRecord
	if _, err := r.state.KVGet(denomIndexKey(depositor), &idx); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(idx.Denoms))
	for _, denom := range idx.Denoms {
		var bal balanceRecord
		if _, err := r.state.KVGet(balanceKey(depositor, denom), &bal); err != nil {
			return nil, err
		}
		if bal.Amount == 0 {
			continue
		}
		positions = append(positions, Position{Denom: denom, Amount: bal.Amount})
	}
	return positions, nil
}

// RegisteredDepositors lists every depositor address ever registered.
func (r *Reference) RegisteredDepositors() ([]string, error) {
	var idx indexRecord
	_, err := r.state.KVGet(indexKey(), &idx)
	return idx.Addresses, err
}

var _ Adapter = (*Reference)(nil)
