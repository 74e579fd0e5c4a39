package entities

import (
	"time"

	"stackture/domain/core/valueobjects"
	pkgerrors "stackture/pkg/errors"
)

// Node is a problem or task item inside a workspace graph.
// Structural operations never change its attributes; they only move edges.
type Node struct {
	id          valueobjects.NodeID
	workspaceID valueobjects.WorkspaceID
	name        string
	summary     string
	optional    bool
	resolved    bool
	icon        string
	createdAt   time.Time
}

// NewNode prepares a node that has not been persisted yet. The store assigns the id.
func NewNode(workspaceID valueobjects.WorkspaceID, name, summary string) (*Node, error) {
	if workspaceID.IsZero() {
		return nil, pkgerrors.InvalidArgument("workspace id is required")
	}
	if name == "" {
		return nil, pkgerrors.InvalidArgument("node name cannot be empty")
	}
	return &Node{
		workspaceID: workspaceID,
		name:        name,
		summary:     summary,
		createdAt:   time.Now().UTC(),
	}, nil
}

// ReconstructNode rebuilds a node from stored data
func ReconstructNode(
	id valueobjects.NodeID,
	workspaceID valueobjects.WorkspaceID,
	name, summary string,
	optional, resolved bool,
	icon string,
	createdAt time.Time,
) *Node {
	return &Node{
		id:          id,
		workspaceID: workspaceID,
		name:        name,
		summary:     summary,
		optional:    optional,
		resolved:    resolved,
		icon:        icon,
		createdAt:   createdAt,
	}
}

// AssignID records the identity handed out by the store
func (n *Node) AssignID(id valueobjects.NodeID) {
	n.id = id
}

func (n *Node) ID() valueobjects.NodeID               { return n.id }
func (n *Node) WorkspaceID() valueobjects.WorkspaceID { return n.workspaceID }
func (n *Node) Name() string                          { return n.name }
func (n *Node) Summary() string                       { return n.summary }
func (n *Node) Optional() bool                        { return n.optional }
func (n *Node) Resolved() bool                        { return n.resolved }
func (n *Node) Icon() string                          { return n.icon }
func (n *Node) CreatedAt() time.Time                  { return n.createdAt }

// BelongsTo reports whether the node is owned by workspaceID
func (n *Node) BelongsTo(workspaceID valueobjects.WorkspaceID) bool {
	return n.workspaceID == workspaceID
}
