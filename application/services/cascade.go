package services

import (
	"context"

	"stackture/application/ports"
	"stackture/domain/config"
	"stackture/domain/core/valueobjects"
)

// cascadeDelete removes start, which must have no parents, together with the
// descendants that lose their last parent as a result.
//
// CascadeSweep removes the entire downward closure of start, as computed by
// ReachableSet. Under CascadeConservative the walk is incremental: a visited
// descendant that still has a parent is skipped and queued again whenever
// another of its parents is deleted, so it goes exactly when its last parent
// inside the sweep goes.
func cascadeDelete(
	ctx context.Context,
	tx ports.Tx,
	start valueobjects.NodeID,
	policy config.CascadePolicy,
) ([]valueobjects.NodeID, error) {
	if policy == config.CascadeSweep {
		return sweepClosure(ctx, tx, start)
	}

	deleted := valueobjects.NewNodeSet()
	queue := []valueobjects.NodeID{start}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		if deleted.Contains(id) {
			continue
		}

		if id != start {
			parents, err := tx.ParentsOf(ctx, id)
			if err != nil {
				return nil, storeErrorf(err, "parents of %d", id)
			}
			if len(parents) > 0 {
				continue
			}
		}

		children, err := tx.ChildrenOf(ctx, id)
		if err != nil {
			return nil, storeErrorf(err, "children of %d", id)
		}
		if err := removeNode(ctx, tx, id); err != nil {
			return nil, err
		}
		deleted.Add(id)
		queue = append(queue, children...)
	}

	return deleted.Sorted(), nil
}

// sweepClosure deletes every node reachable from start
func sweepClosure(ctx context.Context, tx ports.Tx, start valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	reachable, err := ReachableSet(ctx, tx, start)
	if err != nil {
		return nil, storeErrorf(err, "descendants of %d", start)
	}

	ids := reachable.Sorted()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := removeNode(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// removeNode drops every edge touching id, then the node row
func removeNode(ctx context.Context, tx ports.Tx, id valueobjects.NodeID) error {
	if err := tx.RemoveAllEdges(ctx, id); err != nil {
		return storeErrorf(err, "unlink %d", id)
	}
	if err := tx.DeleteNode(ctx, id); err != nil {
		return storeErrorf(err, "delete node %d", id)
	}
	return nil
}
