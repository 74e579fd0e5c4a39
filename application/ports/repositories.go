package ports

import (
	"context"
	"errors"
	"time"

	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
	"stackture/domain/events"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RelationshipReader answers adjacency queries. It is satisfied by a live
// transaction and by an in-memory aggregates.Graph snapshot.
type RelationshipReader interface {
	// ChildrenOf returns the direct children of id, ascending
	ChildrenOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error)

	// ParentsOf returns the direct parents of id, ascending
	ParentsOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error)
}

// NodeStore owns node records
type NodeStore interface {
	// InsertNode persists a new node and returns the assigned id
	InsertNode(ctx context.Context, node *entities.Node) (valueobjects.NodeID, error)

	// GetNode returns ErrNotFound when the node is absent
	GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.Node, error)

	// NodeExists reports whether id exists inside workspaceID
	NodeExists(ctx context.Context, workspaceID valueobjects.WorkspaceID, id valueobjects.NodeID) (bool, error)

	// ParentlessNodes returns the nodes of a workspace that have no parent edge
	ParentlessNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]valueobjects.NodeID, error)

	// ListNodes returns every node of a workspace ordered by id
	ListNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Node, error)

	// DeleteNode removes the row unconditionally. Edges must already be gone.
	DeleteNode(ctx context.Context, id valueobjects.NodeID) error
}

// RelationshipIndex owns the parent edges
type RelationshipIndex interface {
	RelationshipReader

	// HasEdge reports whether child hangs under parent
	HasEdge(ctx context.Context, child, parent valueobjects.NodeID) (bool, error)

	// AddEdge inserts the link; inserting an existing link is a no-op
	AddEdge(ctx context.Context, child, parent valueobjects.NodeID) error

	// RemoveEdge deletes the link; a missing link is a no-op
	RemoveEdge(ctx context.Context, child, parent valueobjects.NodeID) error

	// RemoveAllParentEdges detaches child from every parent
	RemoveAllParentEdges(ctx context.Context, child valueobjects.NodeID) error

	// RemoveAllEdges deletes every link where id is parent or child
	RemoveAllEdges(ctx context.Context, id valueobjects.NodeID) error

	// ListEdges returns every link inside a workspace
	ListEdges(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]aggregates.Edge, error)
}

// WorkspaceStore owns workspace records
type WorkspaceStore interface {
	InsertWorkspace(ctx context.Context, ws *entities.Workspace) (valueobjects.WorkspaceID, error)

	// GetWorkspace returns ErrNotFound when the workspace is absent
	GetWorkspace(ctx context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error)

	ListWorkspaces(ctx context.Context, ownerID string) ([]*entities.Workspace, error)

	// SetRoot records the root node; a zero id clears it
	SetRoot(ctx context.Context, id valueobjects.WorkspaceID, root valueobjects.NodeID) error

	// DeleteWorkspace removes the workspace with all its nodes, edges and chats
	DeleteWorkspace(ctx context.Context, id valueobjects.WorkspaceID) error
}

// ChatStore provisions the conversation record that accompanies each node
type ChatStore interface {
	ProvisionChat(ctx context.Context, workspaceID valueobjects.WorkspaceID, nodeID valueobjects.NodeID) error
}

// Tx is one all-or-nothing unit of work against the store
type Tx interface {
	NodeStore
	RelationshipIndex
	WorkspaceStore
	ChatStore

	Commit() error
	Rollback() error
}

// Store opens transactions. Begin isolates the transaction against concurrent
// writers to the same workspace; a zero workspace id opens an unscoped one.
type Store interface {
	Begin(ctx context.Context, workspaceID valueobjects.WorkspaceID) (Tx, error)

	// BeginRead opens a transaction that only reads. Every query inside it
	// sees the same committed snapshot.
	BeginRead(ctx context.Context) (Tx, error)

	// WorkspaceOf resolves the owning workspace of a node outside any
	// transaction. Node ownership never changes, so the answer is stable.
	WorkspaceOf(ctx context.Context, id valueobjects.NodeID) (valueobjects.WorkspaceID, error)

	Ping(ctx context.Context) error
	Close() error
}

// Lease is a held workspace lock
type Lease interface {
	Release(ctx context.Context) error
}

// WorkspaceLocker serializes structural operations per workspace
type WorkspaceLocker interface {
	Acquire(ctx context.Context, workspaceID valueobjects.WorkspaceID) (Lease, error)
}

// EventPublisher delivers domain events after a successful commit
type EventPublisher interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}

// OperationMetrics records engine outcomes
type OperationMetrics interface {
	RecordOperation(operation, result string, duration time.Duration)
	RecordCascade(deleted int)
}
