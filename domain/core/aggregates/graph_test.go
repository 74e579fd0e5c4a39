package aggregates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
)

func node(id valueobjects.NodeID, ws valueobjects.WorkspaceID) *entities.Node {
	return entities.ReconstructNode(id, ws, "n"+id.String(), "", false, false, "", time.Unix(0, 0))
}

func diamond() *Graph {
	// 1 is the root; 2 and 3 hang under 1; 4 hangs under both 2 and 3.
	return BuildGraph(1, 1,
		[]*entities.Node{node(1, 1), node(2, 1), node(3, 1), node(4, 1)},
		[]Edge{{2, 1}, {3, 1}, {4, 2}, {4, 3}},
	)
}

func TestGraph_ValidateDiamond(t *testing.T) {
	g := diamond()

	require.NoError(t, g.Validate())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 4, g.EdgeCount())
}

func TestGraph_ValidateViolations(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph
		want  error
	}{
		{
			name: "cycle",
			build: func() *Graph {
				return BuildGraph(1, 1,
					[]*entities.Node{node(1, 1), node(2, 1), node(3, 1), node(4, 1)},
					[]Edge{{2, 1}, {3, 1}, {4, 2}, {4, 3}, {2, 4}},
				)
			},
			want: ErrCycle,
		},
		{
			name: "orphan",
			build: func() *Graph {
				return BuildGraph(1, 1,
					[]*entities.Node{node(1, 1), node(2, 1), node(3, 1), node(4, 1)},
					[]Edge{{2, 1}, {4, 2}, {4, 3}},
				)
			},
			want: ErrOrphan,
		},
		{
			name: "dangling",
			build: func() *Graph {
				return BuildGraph(1, 1, []*entities.Node{node(1, 1)}, []Edge{{9, 1}})
			},
			want: ErrDanglingEdge,
		},
		{
			name: "cross workspace",
			build: func() *Graph {
				return BuildGraph(1, 1, []*entities.Node{node(1, 1), node(2, 2)}, []Edge{{2, 1}})
			},
			want: ErrCrossWorkspace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.build().Validate(), tt.want)
		})
	}
}

func TestGraph_AdjacencyAndViews(t *testing.T) {
	g := diamond()
	ctx := context.Background()

	children, err := g.ChildrenOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{2, 3}, children)

	parents, err := g.ParentsOf(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.NodeID{2, 3}, parents)

	views := g.Views()
	require.Len(t, views, 4)
	assert.EqualValues(t, 1, views[0].ID)
	assert.Empty(t, views[0].Parents)
	assert.Equal(t, []valueobjects.NodeID{4}, views[1].Branches)
	assert.Equal(t, []Edge{{2, 1}, {3, 1}, {4, 2}, {4, 3}}, g.Edges())
}
