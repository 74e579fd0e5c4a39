package valueobjects

import (
	"errors"
	"slices"
	"strconv"
)

// NodeID is the store-assigned integer identity of a node.
// Identities are arena indices: the graph refers to nodes only through them.
type NodeID int64

// WorkspaceID identifies the workspace that owns a set of nodes.
type WorkspaceID int64

// ErrInvalidID is returned when a textual identifier cannot be parsed.
var ErrInvalidID = errors.New("identifier must be a positive integer")

// ParseNodeID parses a decimal node identifier
func ParseNodeID(s string) (NodeID, error) {
	v, err := parsePositive(s)
	return NodeID(v), err
}

// ParseWorkspaceID parses a decimal workspace identifier
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	v, err := parsePositive(s)
	return WorkspaceID(v), err
}

func parsePositive(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidID
	}
	return v, nil
}

func (id NodeID) String() string { return strconv.FormatInt(int64(id), 10) }

// IsZero reports whether the id was never assigned
func (id NodeID) IsZero() bool { return id == 0 }

func (id WorkspaceID) String() string { return strconv.FormatInt(int64(id), 10) }

// IsZero reports whether the id was never assigned
func (id WorkspaceID) IsZero() bool { return id == 0 }

// NodeSet is an unordered set of node ids.
type NodeSet map[NodeID]struct{}

// NewNodeSet builds a set from ids
func NewNodeSet(ids ...NodeID) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s NodeSet) Add(id NodeID)           { s[id] = struct{}{} }
func (s NodeSet) Contains(id NodeID) bool { _, ok := s[id]; return ok }
func (s NodeSet) Len() int                { return len(s) }

// Sorted returns the members in ascending order
func (s NodeSet) Sorted() []NodeID {
	out := make([]NodeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortNodeIDs(out)
	return out
}

// SortNodeIDs sorts ids ascending in place
func SortNodeIDs(ids []NodeID) {
	slices.Sort(ids)
}
