package services

import (
	"context"

	"stackture/application/ports"
	"stackture/domain/core/valueobjects"
)

// IsAncestor reports whether of is reachable from candidate by following
// child links downward. A node is not its own ancestor unless a cycle exists.
func IsAncestor(ctx context.Context, r ports.RelationshipReader, candidate, of valueobjects.NodeID) (bool, error) {
	visited := valueobjects.NewNodeSet(candidate)
	frontier := []valueobjects.NodeID{candidate}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		current := frontier[0]
		frontier = frontier[1:]

		children, err := r.ChildrenOf(ctx, current)
		if err != nil {
			return false, err
		}
		for _, child := range children {
			if child == of {
				return true, nil
			}
			if !visited.Contains(child) {
				visited.Add(child)
				frontier = append(frontier, child)
			}
		}
	}
	return false, nil
}

// AncestorChain walks upward from node following one parent per step, the
// lowest id when several exist, until a parentless node is reached. The
// result is ordered nearest first and excludes node itself.
func AncestorChain(ctx context.Context, r ports.RelationshipReader, node valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	var chain []valueobjects.NodeID
	seen := valueobjects.NewNodeSet(node)
	current := node

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parents, err := r.ParentsOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 || seen.Contains(parents[0]) {
			return chain, nil
		}
		current = parents[0]
		seen.Add(current)
		chain = append(chain, current)
	}
}

// AllAncestors returns the full upward closure of node in ascending order
func AllAncestors(ctx context.Context, r ports.RelationshipReader, node valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	set, err := closure(ctx, node, r.ParentsOf)
	if err != nil {
		return nil, err
	}
	delete(set, node)
	return set.Sorted(), nil
}

// ReachableSet returns the full downward closure of root, root included
func ReachableSet(ctx context.Context, r ports.RelationshipReader, root valueobjects.NodeID) (valueobjects.NodeSet, error) {
	return closure(ctx, root, r.ChildrenOf)
}

func closure(
	ctx context.Context,
	start valueobjects.NodeID,
	next func(context.Context, valueobjects.NodeID) ([]valueobjects.NodeID, error),
) (valueobjects.NodeSet, error) {
	visited := valueobjects.NewNodeSet(start)
	frontier := []valueobjects.NodeID{start}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := frontier[0]
		frontier = frontier[1:]

		neighbours, err := next(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if !visited.Contains(n) {
				visited.Add(n)
				frontier = append(frontier, n)
			}
		}
	}
	return visited, nil
}
