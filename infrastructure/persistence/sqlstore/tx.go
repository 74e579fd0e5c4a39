package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stackture/application/ports"
	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
)

// tx implements ports.Tx on a *sql.Tx
type tx struct {
	tx     *sql.Tx
	driver DriverType
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }

func (t *tx) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.driver, query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.driver, query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.driver, query), args...)
}

// ids runs a single-column id query
func (t *tx) ids(ctx context.Context, query string, args ...interface{}) ([]valueobjects.NodeID, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []valueobjects.NodeID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, valueobjects.NodeID(id))
	}
	return out, rows.Err()
}

func (t *tx) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := t.queryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ----- Nodes -----

const nodeColumns = "id, workspace_id, name, summary, optional, resolved, icon, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*entities.Node, error) {
	var (
		id, ws, created    int64
		name, summary, icn string
		optional, resolved bool
	)
	if err := row.Scan(&id, &ws, &name, &summary, &optional, &resolved, &icn, &created); err != nil {
		return nil, err
	}
	return entities.ReconstructNode(
		valueobjects.NodeID(id), valueobjects.WorkspaceID(ws),
		name, summary, optional, resolved, icn,
		time.UnixMilli(created).UTC(),
	), nil
}

func (t *tx) InsertNode(ctx context.Context, n *entities.Node) (valueobjects.NodeID, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO nodes (workspace_id, name, summary, optional, resolved, icon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		int64(n.WorkspaceID()), n.Name(), n.Summary(), n.Optional(), n.Resolved(), n.Icon(), n.CreatedAt().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert node: %w", err)
	}
	n.AssignID(valueobjects.NodeID(id))
	return valueobjects.NodeID(id), nil
}

func (t *tx) GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.Node, error) {
	n, err := scanNode(t.queryRow(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return n, err
}

func (t *tx) NodeExists(ctx context.Context, workspaceID valueobjects.WorkspaceID, id valueobjects.NodeID) (bool, error) {
	return t.exists(ctx, "SELECT 1 FROM nodes WHERE id = ? AND workspace_id = ?", int64(id), int64(workspaceID))
}

func (t *tx) ParentlessNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]valueobjects.NodeID, error) {
	return t.ids(ctx, `
		SELECT n.id FROM nodes n
		WHERE n.workspace_id = ?
		  AND NOT EXISTS (SELECT 1 FROM node_parents p WHERE p.node_id = n.id)
		ORDER BY n.id`, int64(workspaceID))
}

func (t *tx) ListNodes(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Node, error) {
	rows, err := t.query(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE workspace_id = ? ORDER BY id", int64(workspaceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*entities.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (t *tx) DeleteNode(ctx context.Context, id valueobjects.NodeID) error {
	if _, err := t.exec(ctx, "DELETE FROM chats WHERE node_id = ?", int64(id)); err != nil {
		return fmt.Errorf("delete chats of %d: %w", id, err)
	}
	if _, err := t.exec(ctx, "DELETE FROM nodes WHERE id = ?", int64(id)); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	return nil
}

// ----- Edges -----

func (t *tx) ChildrenOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	return t.ids(ctx, "SELECT node_id FROM node_parents WHERE parent_id = ? ORDER BY node_id", int64(id))
}

func (t *tx) ParentsOf(ctx context.Context, id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	return t.ids(ctx, "SELECT parent_id FROM node_parents WHERE node_id = ? ORDER BY parent_id", int64(id))
}

func (t *tx) HasEdge(ctx context.Context, child, parent valueobjects.NodeID) (bool, error) {
	return t.exists(ctx, "SELECT 1 FROM node_parents WHERE node_id = ? AND parent_id = ?", int64(child), int64(parent))
}

func (t *tx) AddEdge(ctx context.Context, child, parent valueobjects.NodeID) error {
	_, err := t.exec(ctx,
		"INSERT INTO node_parents (node_id, parent_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		int64(child), int64(parent))
	if err != nil {
		return fmt.Errorf("insert edge %d -> %d: %w", child, parent, err)
	}
	return nil
}

func (t *tx) RemoveEdge(ctx context.Context, child, parent valueobjects.NodeID) error {
	_, err := t.exec(ctx, "DELETE FROM node_parents WHERE node_id = ? AND parent_id = ?", int64(child), int64(parent))
	return err
}

func (t *tx) RemoveAllParentEdges(ctx context.Context, child valueobjects.NodeID) error {
	_, err := t.exec(ctx, "DELETE FROM node_parents WHERE node_id = ?", int64(child))
	return err
}

func (t *tx) RemoveAllEdges(ctx context.Context, id valueobjects.NodeID) error {
	_, err := t.exec(ctx, "DELETE FROM node_parents WHERE node_id = ? OR parent_id = ?", int64(id), int64(id))
	return err
}

func (t *tx) ListEdges(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]aggregates.Edge, error) {
	rows, err := t.query(ctx, `
		SELECT p.node_id, p.parent_id
		FROM node_parents p
		JOIN nodes n ON n.id = p.node_id
		WHERE n.workspace_id = ?
		ORDER BY p.node_id, p.parent_id`, int64(workspaceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []aggregates.Edge
	for rows.Next() {
		var child, parent int64
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, err
		}
		edges = append(edges, aggregates.Edge{Child: valueobjects.NodeID(child), Parent: valueobjects.NodeID(parent)})
	}
	return edges, rows.Err()
}

// ----- Workspaces -----

const workspaceColumns = "id, owner_id, title, description, root_id, created_at"

func scanWorkspace(row rowScanner) (*entities.Workspace, error) {
	var (
		id, created         int64
		owner, title, descr string
		root                sql.NullInt64
	)
	if err := row.Scan(&id, &owner, &title, &descr, &root, &created); err != nil {
		return nil, err
	}
	return entities.ReconstructWorkspace(
		valueobjects.WorkspaceID(id), owner, title, descr,
		valueobjects.NodeID(root.Int64),
		time.UnixMilli(created).UTC(),
	), nil
}

func (t *tx) InsertWorkspace(ctx context.Context, ws *entities.Workspace) (valueobjects.WorkspaceID, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO workspaces (owner_id, title, description, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		ws.OwnerID(), ws.Title(), ws.Description(), ws.CreatedAt().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert workspace: %w", err)
	}
	ws.AssignID(valueobjects.WorkspaceID(id))
	return valueobjects.WorkspaceID(id), nil
}

func (t *tx) GetWorkspace(ctx context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error) {
	ws, err := scanWorkspace(t.queryRow(ctx, "SELECT "+workspaceColumns+" FROM workspaces WHERE id = ?", int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return ws, err
}

func (t *tx) ListWorkspaces(ctx context.Context, ownerID string) ([]*entities.Workspace, error) {
	rows, err := t.query(ctx, "SELECT "+workspaceColumns+" FROM workspaces WHERE owner_id = ? ORDER BY id", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entities.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (t *tx) SetRoot(ctx context.Context, id valueobjects.WorkspaceID, root valueobjects.NodeID) error {
	var value interface{}
	if !root.IsZero() {
		value = int64(root)
	}
	res, err := t.exec(ctx, "UPDATE workspaces SET root_id = ? WHERE id = ?", value, int64(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteWorkspace(ctx context.Context, id valueobjects.WorkspaceID) error {
	if _, err := t.GetWorkspace(ctx, id); err != nil {
		return err
	}
	steps := []string{
		"DELETE FROM node_parents WHERE node_id IN (SELECT id FROM nodes WHERE workspace_id = ?)",
		"DELETE FROM chats WHERE workspace_id = ?",
		"DELETE FROM nodes WHERE workspace_id = ?",
		"DELETE FROM workspaces WHERE id = ?",
	}
	for _, q := range steps {
		if _, err := t.exec(ctx, q, int64(id)); err != nil {
			return fmt.Errorf("delete workspace %d: %w", id, err)
		}
	}
	return nil
}

// ----- Chats -----

func (t *tx) ProvisionChat(ctx context.Context, workspaceID valueobjects.WorkspaceID, nodeID valueobjects.NodeID) error {
	_, err := t.exec(ctx,
		"INSERT INTO chats (workspace_id, node_id, created_at) VALUES (?, ?, ?)",
		int64(workspaceID), int64(nodeID), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat for node %d: %w", nodeID, err)
	}
	return nil
}
