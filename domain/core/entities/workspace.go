package entities

import (
	"time"

	"stackture/domain/core/valueobjects"
	pkgerrors "stackture/pkg/errors"
)

// Workspace owns one node graph. It has at most one root.
type Workspace struct {
	id          valueobjects.WorkspaceID
	ownerID     string
	title       string
	description string
	rootID      valueobjects.NodeID
	createdAt   time.Time
}

// NewWorkspace prepares a workspace that has not been persisted yet
func NewWorkspace(ownerID, title, description string) (*Workspace, error) {
	if ownerID == "" {
		return nil, pkgerrors.InvalidArgument("workspace owner cannot be empty")
	}
	if title == "" {
		return nil, pkgerrors.InvalidArgument("workspace title cannot be empty")
	}
	return &Workspace{
		ownerID:     ownerID,
		title:       title,
		description: description,
		createdAt:   time.Now().UTC(),
	}, nil
}

// ReconstructWorkspace rebuilds a workspace from stored data
func ReconstructWorkspace(
	id valueobjects.WorkspaceID,
	ownerID, title, description string,
	rootID valueobjects.NodeID,
	createdAt time.Time,
) *Workspace {
	return &Workspace{
		id:          id,
		ownerID:     ownerID,
		title:       title,
		description: description,
		rootID:      rootID,
		createdAt:   createdAt,
	}
}

// AssignID records the identity handed out by the store
func (w *Workspace) AssignID(id valueobjects.WorkspaceID) {
	w.id = id
}

func (w *Workspace) ID() valueobjects.WorkspaceID { return w.id }
func (w *Workspace) OwnerID() string              { return w.ownerID }
func (w *Workspace) Title() string                { return w.title }
func (w *Workspace) Description() string          { return w.description }
func (w *Workspace) CreatedAt() time.Time         { return w.createdAt }

// RootID returns the root node, or zero when the workspace is empty
func (w *Workspace) RootID() valueobjects.NodeID { return w.rootID }

// HasRoot reports whether CREATE has already succeeded
func (w *Workspace) HasRoot() bool { return !w.rootID.IsZero() }

// IsOwnedBy reports whether userID owns the workspace
func (w *Workspace) IsOwnedBy(userID string) bool { return w.ownerID == userID }
