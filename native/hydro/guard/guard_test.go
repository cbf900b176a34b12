package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeView struct{ paused bool }

func (f fakeView) Paused() bool { return f.paused }

func TestGuardBlocksWhenPaused(t *testing.T) {
	require.ErrorIs(t, Guard(fakeView{paused: true}), ErrModulePaused)
}

func TestGuardAllowsWhenNotPaused(t *testing.T) {
	require.NoError(t, Guard(fakeView{paused: false}))
}

func TestGuardNilViewAllows(t *testing.T) {
	require.NoError(t, Guard(nil))
}
