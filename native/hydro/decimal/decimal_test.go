package decimal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubMul(t *testing.T) {
	a := FromInt64(3)
	b := FromInt64(2)
	require.Equal(t, "5", a.Add(b).String())
	require.Equal(t, "1", a.Sub(b).String())
	require.Equal(t, "6", a.Mul(b).String())
}

func TestFromFractionRoundsTowardZero(t *testing.T) {
	d, err := FromFraction(1, 3)
	require.NoError(t, err)
	require.Equal(t, "0.333333333333333333", d.String())
}

func TestQuoFloorAndCeilDiffer(t *testing.T) {
	one := FromInt64(1)
	three := FromInt64(3)
	floor, err := one.QuoFloor(three)
	require.NoError(t, err)
	ceil, err := one.QuoCeil(three)
	require.NoError(t, err)
	require.True(t, floor.Cmp(ceil) < 0)
}

func TestQuoCeilExactDivisionMatchesFloor(t *testing.T) {
	six := FromInt64(6)
	two := FromInt64(2)
	floor, err := six.QuoFloor(two)
	require.NoError(t, err)
	ceil, err := six.QuoCeil(two)
	require.NoError(t, err)
	require.Equal(t, floor.String(), ceil.String())
	require.Equal(t, "3", floor.String())
}

func TestDivisionByZero(t *testing.T) {
	_, err := FromInt64(1).QuoFloor(Zero)
	require.Error(t, err)
}
