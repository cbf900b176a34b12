package hydro

import "fmt"

// maxLineageDepth bounds ancestor-depth walks when Constants.LockDepthLimit
// is unset (zero), preventing a pathological lineage graph from making
// queries unbounded.
const maxLineageDepth = 64

// AncestorDepth walks the reverse-lineage graph from lockID and returns the
// greatest number of hops to a lock with no recorded parents, capped at
// limit (or maxLineageDepth when limit is zero) per the Design Notes' depth
// limit on the lineage DAG.
func (s *Store) AncestorDepth(lockID uint64, limit uint32) (uint32, error) {
	if limit == 0 {
		limit = maxLineageDepth
	}
	return s.ancestorDepth(lockID, 0, limit)
}

func (s *Store) ancestorDepth(lockID uint64, depth uint32, limit uint32) (uint32, error) {
	if depth >= limit {
		return depth, nil
	}
	parents, err := s.GetLineageReverse(lockID)
	if err != nil {
		return 0, err
	}
	if len(parents) == 0 {
		return depth, nil
	}
	best := depth
	for _, p := range parents {
		d, err := s.ancestorDepth(p, depth+1, limit)
		if err != nil {
			return 0, err
		}
		if d > best {
			best = d
		}
	}
	return best, nil
}

// ForwardDescendants lists the direct children of lockID recorded in its
// lineage forward edges. It walks one level only: callers that need the
// full descendant tree call it again for each child.
func (s *Store) ForwardDescendants(lockID uint64) ([]uint64, error) {
	edges, err := s.GetLineageForward(lockID)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.ChildLockID)
	}
	return out, nil
}

// requireLineageDepth fails if extending lockID's lineage by one more level
// would exceed limit, used by Split/Merge before writing new edges.
func (s *Store) requireLineageDepth(lockID uint64, limit uint32) error {
	depth, err := s.AncestorDepth(lockID, limit)
	if err != nil {
		return err
	}
	if limit == 0 {
		limit = maxLineageDepth
	}
	if depth+1 > limit {
		return fmt.Errorf("%w: lineage depth limit %d exceeded for lock %d", ErrPolicyViolation, limit, lockID)
	}
	return nil
}
