package aggregates

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
)

// Structural violations reported by Validate.
var (
	ErrDanglingEdge   = errors.New("edge references a missing node")
	ErrCrossWorkspace = errors.New("edge connects nodes of different workspaces")
	ErrCycle          = errors.New("graph contains a cycle")
	ErrOrphan         = errors.New("parentless node is not the workspace root")
)

// Edge is a parent link: Child hangs under Parent.
type Edge struct {
	Child  valueobjects.NodeID `json:"child"`
	Parent valueobjects.NodeID `json:"parent"`
}

// NodeView is the read-only projection of a node with its resolved links
type NodeView struct {
	ID       valueobjects.NodeID   `json:"id"`
	Name     string                `json:"name"`
	Summary  string                `json:"summary"`
	Optional bool                  `json:"optional"`
	Resolved bool                  `json:"resolved"`
	Icon     string                `json:"icon"`
	Branches []valueobjects.NodeID `json:"branches"`
	Parents  []valueobjects.NodeID `json:"parents"`
}

// Graph is an in-memory snapshot of one workspace: nodes addressed by integer
// id plus an adjacency index in both directions.
type Graph struct {
	workspaceID valueobjects.WorkspaceID
	rootID      valueobjects.NodeID
	nodes       map[valueobjects.NodeID]*entities.Node
	children    map[valueobjects.NodeID]valueobjects.NodeSet
	parents     map[valueobjects.NodeID]valueobjects.NodeSet
}

// NewGraph creates an empty snapshot for a workspace
func NewGraph(workspaceID valueobjects.WorkspaceID, rootID valueobjects.NodeID) *Graph {
	return &Graph{
		workspaceID: workspaceID,
		rootID:      rootID,
		nodes:       make(map[valueobjects.NodeID]*entities.Node),
		children:    make(map[valueobjects.NodeID]valueobjects.NodeSet),
		parents:     make(map[valueobjects.NodeID]valueobjects.NodeSet),
	}
}

// BuildGraph assembles a snapshot from loaded nodes and edges. Edges are kept
// even when they violate invariants so Validate can report them.
func BuildGraph(workspaceID valueobjects.WorkspaceID, rootID valueobjects.NodeID, nodes []*entities.Node, edges []Edge) *Graph {
	g := NewGraph(workspaceID, rootID)
	for _, n := range nodes {
		g.nodes[n.ID()] = n
	}
	for _, e := range edges {
		g.link(e.Child, e.Parent)
	}
	return g
}

func (g *Graph) WorkspaceID() valueobjects.WorkspaceID { return g.workspaceID }
func (g *Graph) RootID() valueobjects.NodeID           { return g.rootID }
func (g *Graph) NodeCount() int                        { return len(g.nodes) }

// EdgeCount returns the number of parent links
func (g *Graph) EdgeCount() int {
	count := 0
	for _, ps := range g.parents {
		count += ps.Len()
	}
	return count
}

// HasNode reports whether id is part of the snapshot
func (g *Graph) HasNode(id valueobjects.NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

func (g *Graph) link(child, parent valueobjects.NodeID) {
	if g.parents[child] == nil {
		g.parents[child] = valueobjects.NewNodeSet()
	}
	if g.children[parent] == nil {
		g.children[parent] = valueobjects.NewNodeSet()
	}
	g.parents[child].Add(parent)
	g.children[parent].Add(child)
}

// ChildrenOf returns the direct children of id in ascending order
func (g *Graph) ChildrenOf(_ context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	return g.children[id].Sorted(), nil
}

// ParentsOf returns the direct parents of id in ascending order
func (g *Graph) ParentsOf(_ context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	return g.parents[id].Sorted(), nil
}

// Edges returns every link ordered by child then parent
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.EdgeCount())
	for child, ps := range g.parents {
		for parent := range ps {
			edges = append(edges, Edge{Child: child, Parent: parent})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Child != edges[j].Child {
			return edges[i].Child < edges[j].Child
		}
		return edges[i].Parent < edges[j].Parent
	})
	return edges
}

// Views projects every node with its branch and parent lists, ordered by id
func (g *Graph) Views() []NodeView {
	ids := make([]valueobjects.NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	valueobjects.SortNodeIDs(ids)

	views := make([]NodeView, 0, len(ids))
	for _, id := range ids {
		n := g.nodes[id]
		views = append(views, NodeView{
			ID:       id,
			Name:     n.Name(),
			Summary:  n.Summary(),
			Optional: n.Optional(),
			Resolved: n.Resolved(),
			Icon:     n.Icon(),
			Branches: g.children[id].Sorted(),
			Parents:  g.parents[id].Sorted(),
		})
	}
	return views
}

// Validate checks the structural invariants of the snapshot: no dangling or
// cross-workspace edges, no cycles, and no parentless node besides the root.
func (g *Graph) Validate() error {
	for child, ps := range g.parents {
		for parent := range ps {
			c, okc := g.nodes[child]
			p, okp := g.nodes[parent]
			if !okc || !okp {
				return fmt.Errorf("%d -> %d: %w", child, parent, ErrDanglingEdge)
			}
			if c.WorkspaceID() != p.WorkspaceID() || !c.BelongsTo(g.workspaceID) {
				return fmt.Errorf("%d -> %d: %w", child, parent, ErrCrossWorkspace)
			}
		}
	}

	for id := range g.nodes {
		if g.parents[id].Len() == 0 && id != g.rootID {
			return fmt.Errorf("node %d: %w", id, ErrOrphan)
		}
	}

	// Kahn's algorithm over child -> parent links.
	indegree := make(map[valueobjects.NodeID]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = g.children[id].Len()
	}
	queue := make([]valueobjects.NodeID, 0, len(g.nodes))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for parent := range g.parents[id] {
			indegree[parent]--
			if indegree[parent] == 0 {
				queue = append(queue, parent)
			}
		}
	}
	if seen != len(g.nodes) {
		return ErrCycle
	}
	return nil
}
