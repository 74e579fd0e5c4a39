package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
)

// buildGraph creates a snapshot for workspace 1 rooted at node 1.
func buildGraph(ids []valueobjects.NodeID, edges []aggregates.Edge) *aggregates.Graph {
	nodes := make([]*entities.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, entities.ReconstructNode(id, 1, "n"+id.String(), "", false, false, "", time.Unix(0, 0)))
	}
	return aggregates.BuildGraph(1, 1, nodes, edges)
}

// sampleGraph is the DAG below, edges pointing from child up to parent.
//
//	    1
//	   / \
//	  2   3
//	 / \ /
//	4   5
//	    |
//	    6
func sampleGraph() *aggregates.Graph {
	return buildGraph(
		[]valueobjects.NodeID{1, 2, 3, 4, 5, 6},
		[]aggregates.Edge{
			{Child: 2, Parent: 1}, {Child: 3, Parent: 1},
			{Child: 4, Parent: 2}, {Child: 5, Parent: 2}, {Child: 5, Parent: 3},
			{Child: 6, Parent: 5},
		},
	)
}

func TestIsAncestor(t *testing.T) {
	g := sampleGraph()
	ctx := context.Background()

	tests := []struct {
		name      string
		candidate valueobjects.NodeID
		of        valueobjects.NodeID
		want      bool
	}{
		{name: "root reaches leaf", candidate: 1, of: 6, want: true},
		{name: "through second parent", candidate: 3, of: 6, want: true},
		{name: "sibling is not ancestor", candidate: 2, of: 3, want: false},
		{name: "descendant is not ancestor", candidate: 6, of: 1, want: false},
		{name: "self without cycle", candidate: 5, of: 5, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsAncestor(ctx, g, tt.candidate, tt.of)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAncestorChain_FollowsLowestParent(t *testing.T) {
	chain, err := AncestorChain(context.Background(), sampleGraph(), 6)

	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{5, 2, 1}, chain)
}

func TestAncestorChain_RootIsEmpty(t *testing.T) {
	chain, err := AncestorChain(context.Background(), sampleGraph(), 1)

	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestAncestorChain_StopsOnCycle(t *testing.T) {
	g := buildGraph([]valueobjects.NodeID{1, 2}, []aggregates.Edge{{Child: 1, Parent: 2}, {Child: 2, Parent: 1}})

	chain, err := AncestorChain(context.Background(), g, 1)

	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{2}, chain)
}

func TestAllAncestors_IncludesEveryPath(t *testing.T) {
	ancestors, err := AllAncestors(context.Background(), sampleGraph(), 6)

	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{1, 2, 3, 5}, ancestors)
}

func TestReachableSet(t *testing.T) {
	set, err := ReachableSet(context.Background(), sampleGraph(), 2)

	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{2, 4, 5, 6}, set.Sorted())
}

func TestGraphQueries_HonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := IsAncestor(ctx, sampleGraph(), 1, 6)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ReachableSet(ctx, sampleGraph(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
