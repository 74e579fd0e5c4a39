// Package memory provides a process-local store. Transactions run one at a
// time against a private copy of the committed state, which is swapped in on
// commit and discarded on rollback.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stackture/application/ports"
	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
)

var (
	// ErrTxDone is returned when a finished transaction is used again
	ErrTxDone = errors.New("memory: transaction already committed or rolled back")
	// ErrNodeLinked mirrors the foreign key violation of the SQL store
	ErrNodeLinked = errors.New("memory: node still has edges")
)

type nodeRow struct {
	workspaceID valueobjects.WorkspaceID
	name        string
	summary     string
	optional    bool
	resolved    bool
	icon        string
	createdAt   time.Time
}

type workspaceRow struct {
	ownerID     string
	title       string
	description string
	rootID      valueobjects.NodeID
	createdAt   time.Time
}

type chatRow struct {
	workspaceID valueobjects.WorkspaceID
	nodeID      valueobjects.NodeID
}

type state struct {
	workspaces map[valueobjects.WorkspaceID]workspaceRow
	nodes      map[valueobjects.NodeID]nodeRow
	parents    map[valueobjects.NodeID]valueobjects.NodeSet
	children   map[valueobjects.NodeID]valueobjects.NodeSet
	chats      map[int64]chatRow

	lastWorkspace int64
	lastNode      int64
	lastChat      int64
}

func newState() *state {
	return &state{
		workspaces: make(map[valueobjects.WorkspaceID]workspaceRow),
		nodes:      make(map[valueobjects.NodeID]nodeRow),
		parents:    make(map[valueobjects.NodeID]valueobjects.NodeSet),
		children:   make(map[valueobjects.NodeID]valueobjects.NodeSet),
		chats:      make(map[int64]chatRow),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.workspaces {
		c.workspaces[k] = v
	}
	for k, v := range s.nodes {
		c.nodes[k] = v
	}
	for k, v := range s.parents {
		c.parents[k] = valueobjects.NewNodeSet(v.Sorted()...)
	}
	for k, v := range s.children {
		c.children[k] = valueobjects.NewNodeSet(v.Sorted()...)
	}
	for k, v := range s.chats {
		c.chats[k] = v
	}
	c.lastWorkspace, c.lastNode, c.lastChat = s.lastWorkspace, s.lastNode, s.lastChat
	return c
}

// Store is an in-memory ports.Store
type Store struct {
	writer sync.Mutex

	mu        sync.RWMutex
	committed *state
	faults    map[string]error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{committed: newState(), faults: make(map[string]error)}
}

// InjectFault makes every later call of the named Tx method fail with err.
// A nil err clears the fault.
func (s *Store) InjectFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults[method]
}

// BeginRead opens a transaction over the committed state. Transactions are
// serialized, so it is also a consistent snapshot.
func (s *Store) BeginRead(ctx context.Context) (ports.Tx, error) {
	return s.Begin(ctx, 0)
}

// Begin blocks until no other transaction is open. The workspace scope is
// implied because transactions are fully serialized.
func (s *Store) Begin(ctx context.Context, _ valueobjects.WorkspaceID) (ports.Tx, error) {
	acquired := make(chan struct{})
	go func() {
		s.writer.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// Hand the lock back once the pending acquisition completes.
		go func() {
			<-acquired
			s.writer.Unlock()
		}()
		return nil, ctx.Err()
	}

	if err := s.fault("Begin"); err != nil {
		s.writer.Unlock()
		return nil, err
	}

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()
	return &tx{store: s, st: working}, nil
}

// WorkspaceOf reads the committed state
func (s *Store) WorkspaceOf(_ context.Context, id valueobjects.NodeID) (valueobjects.WorkspaceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.committed.nodes[id]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return row.workspaceID, nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) check(ctx context.Context, method string) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.fault(method)
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.store.writer.Unlock()

	if err := t.store.fault("Commit"); err != nil {
		return err
	}
	t.store.mu.Lock()
	t.store.committed = t.st
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.writer.Unlock()
	return nil
}

func (t *tx) InsertNode(ctx context.Context, n *entities.Node) (valueobjects.NodeID, error) {
	if err := t.check(ctx, "InsertNode"); err != nil {
		return 0, err
	}
	if _, ok := t.st.workspaces[n.WorkspaceID()]; !ok {
		return 0, fmt.Errorf("memory: workspace %d: %w", n.WorkspaceID(), ports.ErrNotFound)
	}
	t.st.lastNode++
	id := valueobjects.NodeID(t.st.lastNode)
	t.st.nodes[id] = nodeRow{
		workspaceID: n.WorkspaceID(),
		name:        n.Name(),
		summary:     n.Summary(),
		optional:    n.Optional(),
		resolved:    n.Resolved(),
		icon:        n.Icon(),
		createdAt:   n.CreatedAt(),
	}
	n.AssignID(id)
	return id, nil
}

func (t *tx) GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.Node, error) {
	if err := t.check(ctx, "GetNode"); err != nil {
		return nil, err
	}
	row, ok := t.st.nodes[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return row.entity(id), nil
}

func (t *tx) NodeExists(ctx context.Context, workspaceID valueobjects.WorkspaceID, id valueobjects.NodeID) (bool, error) {
	if err := t.check(ctx, "NodeExists"); err != nil {
		return false, err
	}
	row, ok := t.st.nodes[id]
	return ok && row.workspaceID == workspaceID, nil
}

func (t *tx) ParentlessNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]valueobjects.NodeID, error) {
	if err := t.check(ctx, "ParentlessNodes"); err != nil {
		return nil, err
	}
	out := valueobjects.NewNodeSet()
	for id, row := range t.st.nodes {
		if row.workspaceID == workspaceID && t.st.parents[id].Len() == 0 {
			out.Add(id)
		}
	}
	return out.Sorted(), nil
}

func (t *tx) ListNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Node, error) {
	if err := t.check(ctx, "ListNodes"); err != nil {
		return nil, err
	}
	ids := valueobjects.NewNodeSet()
	for id, row := range t.st.nodes {
		if row.workspaceID == workspaceID {
			ids.Add(id)
		}
	}
	nodes := make([]*entities.Node, 0, ids.Len())
	for _, id := range ids.Sorted() {
		nodes = append(nodes, t.st.nodes[id].entity(id))
	}
	return nodes, nil
}

func (t *tx) DeleteNode(ctx context.Context, id valueobjects.NodeID) error {
	if err := t.check(ctx, "DeleteNode"); err != nil {
		return err
	}
	if t.st.parents[id].Len() > 0 || t.st.children[id].Len() > 0 {
		return fmt.Errorf("delete node %d: %w", id, ErrNodeLinked)
	}
	delete(t.st.nodes, id)
	delete(t.st.parents, id)
	delete(t.st.children, id)
	for chatID, c := range t.st.chats {
		if c.nodeID == id {
			delete(t.st.chats, chatID)
		}
	}
	return nil
}

func (t *tx) ChildrenOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	if err := t.check(ctx, "ChildrenOf"); err != nil {
		return nil, err
	}
	return t.st.children[id].Sorted(), nil
}

func (t *tx) ParentsOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	if err := t.check(ctx, "ParentsOf"); err != nil {
		return nil, err
	}
	return t.st.parents[id].Sorted(), nil
}

func (t *tx) HasEdge(ctx context.Context, child, parent valueobjects.NodeID) (bool, error) {
	if err := t.check(ctx, "HasEdge"); err != nil {
		return false, err
	}
	return t.st.parents[child].Contains(parent), nil
}

func (t *tx) AddEdge(ctx context.Context, child, parent valueobjects.NodeID) error {
	if err := t.check(ctx, "AddEdge"); err != nil {
		return err
	}
	if _, ok := t.st.nodes[child]; !ok {
		return fmt.Errorf("memory: child %d: %w", child, ports.ErrNotFound)
	}
	if _, ok := t.st.nodes[parent]; !ok {
		return fmt.Errorf("memory: parent %d: %w", parent, ports.ErrNotFound)
	}
	if t.st.parents[child] == nil {
		t.st.parents[child] = valueobjects.NewNodeSet()
	}
	if t.st.children[parent] == nil {
		t.st.children[parent] = valueobjects.NewNodeSet()
	}
	t.st.parents[child].Add(parent)
	t.st.children[parent].Add(child)
	return nil
}

func (t *tx) RemoveEdge(ctx context.Context, child, parent valueobjects.NodeID) error {
	if err := t.check(ctx, "RemoveEdge"); err != nil {
		return err
	}
	t.unlink(child, parent)
	return nil
}

func (t *tx) RemoveAllParentEdges(ctx context.Context, child valueobjects.NodeID) error {
	if err := t.check(ctx, "RemoveAllParentEdges"); err != nil {
		return err
	}
	for _, parent := range t.st.parents[child].Sorted() {
		t.unlink(child, parent)
	}
	return nil
}

func (t *tx) RemoveAllEdges(ctx context.Context, id valueobjects.NodeID) error {
	if err := t.check(ctx, "RemoveAllEdges"); err != nil {
		return err
	}
	for _, parent := range t.st.parents[id].Sorted() {
		t.unlink(id, parent)
	}
	for _, child := range t.st.children[id].Sorted() {
		t.unlink(child, id)
	}
	return nil
}

func (t *tx) unlink(child, parent valueobjects.NodeID) {
	delete(t.st.parents[child], parent)
	delete(t.st.children[parent], child)
}

func (t *tx) ListEdges(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]aggregates.Edge, error) {
	if err := t.check(ctx, "ListEdges"); err != nil {
		return nil, err
	}
	var edges []aggregates.Edge
	for child, ps := range t.st.parents {
		if t.st.nodes[child].workspaceID != workspaceID {
			continue
		}
		for parent := range ps {
			edges = append(edges, aggregates.Edge{Child: child, Parent: parent})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Child != edges[j].Child {
			return edges[i].Child < edges[j].Child
		}
		return edges[i].Parent < edges[j].Parent
	})
	return edges, nil
}

func (t *tx) InsertWorkspace(ctx context.Context, ws *entities.Workspace) (valueobjects.WorkspaceID, error) {
	if err := t.check(ctx, "InsertWorkspace"); err != nil {
		return 0, err
	}
	t.st.lastWorkspace++
	id := valueobjects.WorkspaceID(t.st.lastWorkspace)
	t.st.workspaces[id] = workspaceRow{
		ownerID:     ws.OwnerID(),
		title:       ws.Title(),
		description: ws.Description(),
		createdAt:   ws.CreatedAt(),
	}
	ws.AssignID(id)
	return id, nil
}

func (t *tx) GetWorkspace(ctx context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error) {
	if err := t.check(ctx, "GetWorkspace"); err != nil {
		return nil, err
	}
	row, ok := t.st.workspaces[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return row.entity(id), nil
}

func (t *tx) ListWorkspaces(ctx context.Context, ownerID string) ([]*entities.Workspace, error) {
	if err := t.check(ctx, "ListWorkspaces"); err != nil {
		return nil, err
	}
	var out []*entities.Workspace
	for id, row := range t.st.workspaces {
		if row.ownerID == ownerID {
			out = append(out, row.entity(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (t *tx) SetRoot(ctx context.Context, id valueobjects.WorkspaceID, root valueobjects.NodeID) error {
	if err := t.check(ctx, "SetRoot"); err != nil {
		return err
	}
	row, ok := t.st.workspaces[id]
	if !ok {
		return ports.ErrNotFound
	}
	row.rootID = root
	t.st.workspaces[id] = row
	return nil
}

func (t *tx) DeleteWorkspace(ctx context.Context, id valueobjects.WorkspaceID) error {
	if err := t.check(ctx, "DeleteWorkspace"); err != nil {
		return err
	}
	if _, ok := t.st.workspaces[id]; !ok {
		return ports.ErrNotFound
	}
	for nodeID, row := range t.st.nodes {
		if row.workspaceID != id {
			continue
		}
		for _, parent := range t.st.parents[nodeID].Sorted() {
			t.unlink(nodeID, parent)
		}
		delete(t.st.nodes, nodeID)
		delete(t.st.parents, nodeID)
		delete(t.st.children, nodeID)
	}
	for chatID, c := range t.st.chats {
		if c.workspaceID == id {
			delete(t.st.chats, chatID)
		}
	}
	delete(t.st.workspaces, id)
	return nil
}

func (t *tx) ProvisionChat(ctx context.Context, workspaceID valueobjects.WorkspaceID, nodeID valueobjects.NodeID) error {
	if err := t.check(ctx, "ProvisionChat"); err != nil {
		return err
	}
	t.st.lastChat++
	t.st.chats[t.st.lastChat] = chatRow{workspaceID: workspaceID, nodeID: nodeID}
	return nil
}

// ChatCount returns the number of committed chat records for a node
func (s *Store) ChatCount(nodeID valueobjects.NodeID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.committed.chats {
		if c.nodeID == nodeID {
			n++
		}
	}
	return n
}

func (r nodeRow) entity(id valueobjects.NodeID) *entities.Node {
	return entities.ReconstructNode(id, r.workspaceID, r.name, r.summary, r.optional, r.resolved, r.icon, r.createdAt)
}

func (r workspaceRow) entity(id valueobjects.WorkspaceID) *entities.Workspace {
	return entities.ReconstructWorkspace(id, r.ownerID, r.title, r.description, r.rootID, r.createdAt)
}
