// Package decimal implements a fixed-point decimal type with 18 fractional
// digits backed by big.Int, the same no-float convention the rest of the
// stack uses for Wei amounts and basis points, generalized to the
// fractional share math the voting engine requires.
package decimal

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// Digits is the number of fractional digits every Dec carries.
const Digits = 18

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Digits), nil)

// Dec is an immutable fixed-point decimal: the wrapped big.Int is the value
// scaled up by 10^18.
type Dec struct {
	v *big.Int
}

// Zero is the additive identity.
var Zero = Dec{v: big.NewInt(0)}

// One is the multiplicative identity.
var One = Dec{v: new(big.Int).Set(scale)}

// FromInt64 builds a Dec representing the supplied whole number.
func FromInt64(n int64) Dec {
	return Dec{v: new(big.Int).Mul(big.NewInt(n), scale)}
}

// FromRaw wraps an already-scaled big.Int (units of 10^-18) without copying
// scale logic onto the caller. The caller must not mutate raw afterward.
func FromRaw(raw *big.Int) Dec {
	if raw == nil {
		return Zero
	}
	return Dec{v: new(big.Int).Set(raw)}
}

// FromFraction builds num/den as a Dec, rounding toward zero.
func FromFraction(num, den int64) (Dec, error) {
	if den == 0 {
		return Dec{}, fmt.Errorf("decimal: division by zero")
	}
	n := new(big.Int).Mul(big.NewInt(num), scale)
	d := big.NewInt(den)
	q := new(big.Int).Quo(n, d)
	return Dec{v: q}, nil
}

// FromString parses a decimal literal such as "1.25" or "-3", the inverse
// of String, for loading fixed-point values out of TOML configuration.
func FromString(s string) (Dec, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < Digits {
		frac += "0"
	}
	if len(frac) > Digits {
		frac = frac[:Digits]
	}
	combined := whole + frac
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return Dec{}, fmt.Errorf("decimal: invalid literal %q", s)
	}
	if neg {
		v.Neg(v)
	}
	return Dec{v: v}, nil
}

// EncodeRLP writes d's scaled big.Int using go-ethereum/rlp's native
// big.Int support, the same wire convention the rest of the stack uses for
// Wei amounts, so Dec round-trips through core/state.Manager's KVPut/KVGet
// even though its underlying big.Int is unexported.
func (d Dec) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, d.val())
}

// DecodeRLP is EncodeRLP's inverse.
func (d *Dec) DecodeRLP(s *rlp.Stream) error {
	var v big.Int
	if err := s.Decode(&v); err != nil {
		return err
	}
	d.v = &v
	return nil
}

// MarshalText renders d the same way String does, so Dec can be used
// directly as a TOML/JSON field type.
func (d Dec) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses d the same way FromString does.
func (d *Dec) UnmarshalText(text []byte) error {
	v, err := FromString(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Raw returns the underlying scaled integer (units of 10^-18).
func (d Dec) Raw() *big.Int {
	if d.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(d.v)
}

func (d Dec) val() *big.Int {
	if d.v == nil {
		return big.NewInt(0)
	}
	return d.v
}

// Add returns d + other.
func (d Dec) Add(other Dec) Dec {
	return Dec{v: new(big.Int).Add(d.val(), other.val())}
}

// Sub returns d - other.
func (d Dec) Sub(other Dec) Dec {
	return Dec{v: new(big.Int).Sub(d.val(), other.val())}
}

// Mul returns d * other, rounded down (toward zero for non-negative operands).
func (d Dec) Mul(other Dec) Dec {
	prod := new(big.Int).Mul(d.val(), other.val())
	return Dec{v: prod.Quo(prod, scale)}
}

// QuoFloor returns d / other, rounded down toward negative infinity. Used for
// share-of-pool computations where under-allocation must never exceed the
// pool.
func (d Dec) QuoFloor(other Dec) (Dec, error) {
	if other.val().Sign() == 0 {
		return Dec{}, fmt.Errorf("decimal: division by zero")
	}
	num := new(big.Int).Mul(d.val(), scale)
	q, r := new(big.Int).QuoRem(num, other.val(), new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (other.val().Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return Dec{v: q}, nil
}

// QuoCeil returns d / other, rounded up. Used for display totals and refunds
// where over-allocation by a dust amount is preferable to shortchanging a
// claimant.
func (d Dec) QuoCeil(other Dec) (Dec, error) {
	if other.val().Sign() == 0 {
		return Dec{}, fmt.Errorf("decimal: division by zero")
	}
	num := new(big.Int).Mul(d.val(), scale)
	q, r := new(big.Int).QuoRem(num, other.val(), new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) == (other.val().Sign() < 0) {
		q.Add(q, big.NewInt(1))
	}
	return Dec{v: q}, nil
}

// Cmp compares d to other: -1, 0, or 1.
func (d Dec) Cmp(other Dec) int {
	return d.val().Cmp(other.val())
}

// IsZero reports whether d is exactly zero.
func (d Dec) IsZero() bool {
	return d.val().Sign() == 0
}

// Sign returns -1, 0, or 1.
func (d Dec) Sign() int {
	return d.val().Sign()
}

// Neg returns -d.
func (d Dec) Neg() Dec {
	return Dec{v: new(big.Int).Neg(d.val())}
}

// ToUint64Floor truncates d toward zero and returns the whole-number part,
// the rounding direction vote shares and claim payouts require so that a
// sum of per-voter amounts never exceeds the pool it is drawn from.
func (d Dec) ToUint64Floor() uint64 {
	whole := new(big.Int).Quo(d.val(), scale)
	if whole.Sign() < 0 {
		return 0
	}
	return whole.Uint64()
}

// Min returns the smaller of d and other.
func Min(a, b Dec) Dec {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the decimal with up to 18 fractional digits, trimming
// trailing zeros.
func (d Dec) String() string {
	v := d.val()
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	whole := new(big.Int).Quo(abs, scale)
	frac := new(big.Int).Mod(abs, scale)
	fracStr := frac.String()
	for len(fracStr) < Digits {
		fracStr = "0" + fracStr
	}
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	sign := ""
	if neg {
		sign = "-"
	}
	if fracStr == "" {
		return fmt.Sprintf("%s%s", sign, whole.String())
	}
	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}
