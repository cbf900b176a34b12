package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/core/state"
	"hydro/native/hydro/decimal"
	"hydro/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(state.NewManager(storage.NewMemDB()))
}

func TestAncestorDepthNoParentsIsZero(t *testing.T) {
	s := newTestStore(t)
	depth, err := s.AncestorDepth(1, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), depth)
}

func TestAncestorDepthFollowsLongestChain(t *testing.T) {
	s := newTestStore(t)
	// 1 -> 2 -> 3: lock 3's greatest ancestor depth is 2.
	require.NoError(t, s.PutLineageForward(1, []LineageEdge{{ChildLockID: 2, Fraction: decimal.One}}))
	require.NoError(t, s.PutLineageReverse(2, []uint64{1}))
	require.NoError(t, s.PutLineageForward(2, []LineageEdge{{ChildLockID: 3, Fraction: decimal.One}}))
	require.NoError(t, s.PutLineageReverse(3, []uint64{2}))

	depth, err := s.AncestorDepth(3, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), depth)
}

func TestAncestorDepthMergeTakesLongerParentBranch(t *testing.T) {
	s := newTestStore(t)
	// 1 -> 2 -> 3, and 4 merges with 3 to produce 5: depth(5) = depth(3)+1 = 3.
	require.NoError(t, s.PutLineageForward(1, []LineageEdge{{ChildLockID: 2, Fraction: decimal.One}}))
	require.NoError(t, s.PutLineageReverse(2, []uint64{1}))
	require.NoError(t, s.PutLineageForward(2, []LineageEdge{{ChildLockID: 3, Fraction: decimal.One}}))
	require.NoError(t, s.PutLineageReverse(3, []uint64{2}))
	require.NoError(t, s.PutLineageReverse(5, []uint64{3, 4}))

	depth, err := s.AncestorDepth(5, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(3), depth)
}

func TestRequireLineageDepthRejectsAtLimit(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutLineageReverse(2, []uint64{1}))

	require.NoError(t, s.requireLineageDepth(2, 2))
	require.ErrorIs(t, s.requireLineageDepth(2, 1), ErrPolicyViolation)
}

func TestForwardDescendantsListsDirectChildren(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutLineageForward(1, []LineageEdge{
		{ChildLockID: 2, Fraction: mustDecVal("0.4")},
		{ChildLockID: 3, Fraction: mustDecVal("0.6")},
	}))

	children, err := s.ForwardDescendants(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{2, 3}, children)
}
