package events

import (
	"time"

	"github.com/google/uuid"

	"stackture/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetEventID() string
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// Event types emitted by the structural operations
const (
	TypeNodeCreated    = "node.created"
	TypeNodeAdded      = "node.added"
	TypeBranchBorrowed = "branch.borrowed"
	TypeBranchDropped  = "branch.dropped"
	TypeBranchTaken    = "branch.taken"
	TypeNodesDeleted   = "node.deleted"
)

// BaseEvent provides common event fields. The aggregate is the workspace.
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(workspaceID valueobjects.WorkspaceID, eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:     uuid.NewString(),
		AggregateID: workspaceID.String(),
		EventType:   eventType,
		Timestamp:   at,
		Version:     1,
	}
}

// NodeCreated is raised when a node is created, either as root or under a parent
type NodeCreated struct {
	BaseEvent
	NodeID   valueobjects.NodeID `json:"node_id"`
	ParentID valueobjects.NodeID `json:"parent_id,omitempty"`
	Name     string              `json:"name"`
}

// NewRootCreated creates the event for a successful CREATE
func NewRootCreated(workspaceID valueobjects.WorkspaceID, nodeID valueobjects.NodeID, name string, at time.Time) NodeCreated {
	return NodeCreated{
		BaseEvent: newBase(workspaceID, TypeNodeCreated, at),
		NodeID:    nodeID,
		Name:      name,
	}
}

// NewNodeAdded creates the event for a successful ADD
func NewNodeAdded(workspaceID valueobjects.WorkspaceID, nodeID, parentID valueobjects.NodeID, name string, at time.Time) NodeCreated {
	return NodeCreated{
		BaseEvent: newBase(workspaceID, TypeNodeAdded, at),
		NodeID:    nodeID,
		ParentID:  parentID,
		Name:      name,
	}
}

// BranchRelinked is raised by BORROW, DROP and TAKE
type BranchRelinked struct {
	BaseEvent
	NodeID   valueobjects.NodeID   `json:"node_id"`
	BranchID valueobjects.NodeID   `json:"branch_id"`
	Detached []valueobjects.NodeID `json:"detached,omitempty"`
}

// NewBranchRelinked creates a relink event of the given type
func NewBranchRelinked(eventType string, workspaceID valueobjects.WorkspaceID, nodeID, branchID valueobjects.NodeID, detached []valueobjects.NodeID, at time.Time) BranchRelinked {
	return BranchRelinked{
		BaseEvent: newBase(workspaceID, eventType, at),
		NodeID:    nodeID,
		BranchID:  branchID,
		Detached:  detached,
	}
}

// NodesDeleted is raised when a cascade removes nodes
type NodesDeleted struct {
	BaseEvent
	StartID valueobjects.NodeID   `json:"start_id"`
	Deleted []valueobjects.NodeID `json:"deleted"`
}

// NewNodesDeleted creates a NodesDeleted event
func NewNodesDeleted(workspaceID valueobjects.WorkspaceID, startID valueobjects.NodeID, deleted []valueobjects.NodeID, at time.Time) NodesDeleted {
	return NodesDeleted{
		BaseEvent: newBase(workspaceID, TypeNodesDeleted, at),
		StartID:   startID,
		Deleted:   deleted,
	}
}
