package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/config"
	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/validators"
	"stackture/domain/core/valueobjects"
	"stackture/domain/events"
	pkgerrors "stackture/pkg/errors"
)

// Operation names used for logs, spans and metrics
const (
	OpCreate = "create"
	OpAdd    = "add"
	OpBorrow = "borrow"
	OpDrop   = "drop"
	OpTake   = "take"
	OpDelete = "delete"
	OpFetch  = "fetch_graph"
	OpGet    = "get_node"
)

// NodeEngine implements the structural graph operations. Each mutation runs
// inside one TransactionBoundary call and leaves the workspace graph acyclic,
// isolated, single-rooted and free of orphans.
type NodeEngine struct {
	store     ports.Store
	boundary  *TransactionBoundary
	config    *config.Holder
	publisher ports.EventPublisher
	metrics   ports.OperationMetrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewNodeEngine creates the operation engine
func NewNodeEngine(
	store ports.Store,
	boundary *TransactionBoundary,
	cfg *config.Holder,
	publisher ports.EventPublisher,
	metrics ports.OperationMetrics,
	logger *zap.Logger,
) *NodeEngine {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &NodeEngine{
		store:     store,
		boundary:  boundary,
		config:    cfg,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("stackture/application/services"),
	}
}

// Create makes the root node of an empty workspace
func (e *NodeEngine) Create(ctx context.Context, workspaceID valueobjects.WorkspaceID, name, summary string) (id valueobjects.NodeID, err error) {
	ctx, finish := e.observe(ctx, OpCreate, attribute.Int64("workspace.id", int64(workspaceID)))
	defer func() { finish(err, zap.Int64("nodeID", int64(id))) }()

	if err = validators.NewNodeValidator(e.config.Load()).ValidateNodeAttributes(name, summary, ""); err != nil {
		return 0, err
	}

	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		ws, err := tx.GetWorkspace(ctx, workspaceID)
		if errors.Is(err, ports.ErrNotFound) {
			return pkgerrors.NonexistentWorkspace(int64(workspaceID))
		}
		if err != nil {
			return storeError("get workspace", err)
		}

		roots, err := tx.ParentlessNodes(ctx, workspaceID)
		if err != nil {
			return storeError("find root", err)
		}
		if len(roots) > 0 {
			return pkgerrors.RootAlreadyExists(int64(workspaceID), int64(roots[0]))
		}
		if ws.HasRoot() {
			return pkgerrors.RootAlreadyExists(int64(workspaceID), int64(ws.RootID()))
		}

		id, err = e.insertNode(ctx, tx, workspaceID, name, summary)
		if err != nil {
			return err
		}
		return storeError("record root", tx.SetRoot(ctx, workspaceID, id))
	})
	if err != nil {
		return 0, err
	}

	e.publish(ctx, events.NewRootCreated(workspaceID, id, name, time.Now().UTC()))
	return id, nil
}

// Add creates a node under parent
func (e *NodeEngine) Add(ctx context.Context, workspaceID valueobjects.WorkspaceID, parent valueobjects.NodeID, name, summary string) (id valueobjects.NodeID, err error) {
	ctx, finish := e.observe(ctx, OpAdd,
		attribute.Int64("workspace.id", int64(workspaceID)),
		attribute.Int64("parent.id", int64(parent)),
	)
	defer func() {
		finish(err,
			zap.Int64("nodeID", int64(id)),
			zap.Int64("parentID", int64(parent)),
		)
	}()

	if err = validators.NewNodeValidator(e.config.Load()).ValidateNodeAttributes(name, summary, ""); err != nil {
		return 0, err
	}

	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.GetWorkspace(ctx, workspaceID); errors.Is(err, ports.ErrNotFound) {
			return pkgerrors.NonexistentWorkspace(int64(workspaceID))
		} else if err != nil {
			return storeError("get workspace", err)
		}

		exists, err := tx.NodeExists(ctx, workspaceID, parent)
		if err != nil {
			return storeError("check parent", err)
		}
		if !exists {
			return pkgerrors.NonexistentNode(int64(parent))
		}

		id, err = e.insertNode(ctx, tx, workspaceID, name, summary)
		if err != nil {
			return err
		}
		return storeError("link new node", tx.AddEdge(ctx, id, parent))
	})
	if err != nil {
		return 0, err
	}

	e.publish(ctx, events.NewNodeAdded(workspaceID, id, parent, name, time.Now().UTC()))
	return id, nil
}

// Borrow links branch as an additional child of node. The branch is first
// detached from the ancestors of node selected by the configured DetachMode.
func (e *NodeEngine) Borrow(ctx context.Context, node, branch valueobjects.NodeID) (err error) {
	ctx, finish := e.observe(ctx, OpBorrow, linkAttributes(node, branch)...)
	var detached []valueobjects.NodeID
	defer func() {
		finish(err,
			zap.Int64("nodeID", int64(node)),
			zap.Int64("branchID", int64(branch)),
			zap.Int("detached", len(detached)),
		)
	}()

	cfg := e.config.Load()
	workspaceID, err := e.resolveLink(ctx, node, branch)
	if err != nil {
		return err
	}

	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		if err := e.checkLink(ctx, tx, workspaceID, node, branch); err != nil {
			return err
		}

		var ancestors []valueobjects.NodeID
		var err error
		if cfg.DetachMode == config.DetachClosure {
			ancestors, err = AllAncestors(ctx, tx, node)
		} else {
			ancestors, err = AncestorChain(ctx, tx, node)
		}
		if err != nil {
			return storeError("ancestors", err)
		}

		detached = detached[:0]
		for _, a := range ancestors {
			linked, err := tx.HasEdge(ctx, branch, a)
			if err != nil {
				return storeError("check edge", err)
			}
			if !linked {
				continue
			}
			if err := tx.RemoveEdge(ctx, branch, a); err != nil {
				return storeErrorf(err, "detach %d from %d", branch, a)
			}
			detached = append(detached, a)
		}

		return storeError("link branch", tx.AddEdge(ctx, branch, node))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.NewBranchRelinked(events.TypeBranchBorrowed, workspaceID, node, branch, detached, time.Now().UTC()))
	return nil
}

// Take makes node the only parent of branch
func (e *NodeEngine) Take(ctx context.Context, node, branch valueobjects.NodeID) (err error) {
	ctx, finish := e.observe(ctx, OpTake, linkAttributes(node, branch)...)
	var evicted []valueobjects.NodeID
	defer func() {
		finish(err,
			zap.Int64("nodeID", int64(node)),
			zap.Int64("branchID", int64(branch)),
			zap.Int("evicted", len(evicted)),
		)
	}()

	workspaceID, err := e.resolveLink(ctx, node, branch)
	if err != nil {
		return err
	}

	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		if err := e.checkLink(ctx, tx, workspaceID, node, branch); err != nil {
			return err
		}

		parents, err := tx.ParentsOf(ctx, branch)
		if err != nil {
			return storeError("parents of branch", err)
		}
		evicted = evicted[:0]
		for _, p := range parents {
			if p != node {
				evicted = append(evicted, p)
			}
		}

		if err := tx.RemoveAllParentEdges(ctx, branch); err != nil {
			return storeError("detach branch", err)
		}
		return storeError("link branch", tx.AddEdge(ctx, branch, node))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.NewBranchRelinked(events.TypeBranchTaken, workspaceID, node, branch, evicted, time.Now().UTC()))
	return nil
}

// Drop removes the link from branch to node. A branch left without parents
// is deleted along with the descendants that lose their last parent.
func (e *NodeEngine) Drop(ctx context.Context, node, branch valueobjects.NodeID) (err error) {
	ctx, finish := e.observe(ctx, OpDrop, linkAttributes(node, branch)...)
	var deleted []valueobjects.NodeID
	defer func() {
		finish(err,
			zap.Int64("nodeID", int64(node)),
			zap.Int64("branchID", int64(branch)),
			zap.Int("deleted", len(deleted)),
		)
	}()

	workspaceID, err := e.resolveLink(ctx, node, branch)
	if pkgerrors.IsKind(err, pkgerrors.KindForbiddenLink) {
		// Nodes in different workspaces are never linked.
		return nil
	}
	if err != nil {
		return err
	}

	policy := e.config.Load().CascadePolicy
	dropped := false
	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		if err := e.requireNodes(ctx, tx, workspaceID, node, branch); err != nil {
			return err
		}

		linked, err := tx.HasEdge(ctx, branch, node)
		if err != nil {
			return storeError("check edge", err)
		}
		if !linked {
			return nil
		}
		dropped = true

		if err := tx.RemoveEdge(ctx, branch, node); err != nil {
			return storeError("unlink branch", err)
		}

		parents, err := tx.ParentsOf(ctx, branch)
		if err != nil {
			return storeError("parents of branch", err)
		}
		if len(parents) > 0 {
			return nil
		}

		deleted, err = e.sweep(ctx, tx, workspaceID, branch, policy)
		return err
	})
	if err != nil || !dropped {
		return err
	}

	at := time.Now().UTC()
	evts := []events.DomainEvent{events.NewBranchRelinked(events.TypeBranchDropped, workspaceID, node, branch, nil, at)}
	if len(deleted) > 0 {
		evts = append(evts, events.NewNodesDeleted(workspaceID, branch, deleted, at))
	}
	e.publish(ctx, evts...)
	return nil
}

// Delete unlinks node from all its parents and removes it together with the
// descendants that lose their last parent.
func (e *NodeEngine) Delete(ctx context.Context, node valueobjects.NodeID) (err error) {
	ctx, finish := e.observe(ctx, OpDelete, attribute.Int64("node.id", int64(node)))
	var deleted []valueobjects.NodeID
	defer func() {
		finish(err,
			zap.Int64("nodeID", int64(node)),
			zap.Int("deleted", len(deleted)),
		)
	}()

	workspaceID, err := e.WorkspaceOf(ctx, node)
	if err != nil {
		return err
	}

	policy := e.config.Load().CascadePolicy
	err = e.boundary.Run(ctx, workspaceID, func(ctx context.Context, tx ports.Tx) error {
		if err := e.requireNodes(ctx, tx, workspaceID, node); err != nil {
			return err
		}
		if err := tx.RemoveAllParentEdges(ctx, node); err != nil {
			return storeError("detach node", err)
		}
		var err error
		deleted, err = e.sweep(ctx, tx, workspaceID, node, policy)
		return err
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.NewNodesDeleted(workspaceID, node, deleted, time.Now().UTC()))
	return nil
}

// FetchGraph returns every node of a workspace with its resolved links
func (e *NodeEngine) FetchGraph(ctx context.Context, workspaceID valueobjects.WorkspaceID) (views []aggregates.NodeView, err error) {
	ctx, finish := e.observe(ctx, OpFetch, attribute.Int64("workspace.id", int64(workspaceID)))
	defer func() { finish(err, zap.Int("nodes", len(views))) }()

	graph, err := e.Snapshot(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return graph.Views(), nil
}

// GetNode returns one node with its branches and parents
func (e *NodeEngine) GetNode(ctx context.Context, id valueobjects.NodeID) (view *aggregates.NodeView, err error) {
	ctx, finish := e.observe(ctx, OpGet, attribute.Int64("node.id", int64(id)))
	defer func() { finish(err) }()

	err = e.boundary.View(ctx, func(ctx context.Context, tx ports.Tx) error {
		n, err := tx.GetNode(ctx, id)
		if errors.Is(err, ports.ErrNotFound) {
			return pkgerrors.NonexistentNode(int64(id))
		}
		if err != nil {
			return storeError("get node", err)
		}
		branches, err := tx.ChildrenOf(ctx, id)
		if err != nil {
			return storeError("children", err)
		}
		parents, err := tx.ParentsOf(ctx, id)
		if err != nil {
			return storeError("parents", err)
		}
		view = &aggregates.NodeView{
			ID:       id,
			Name:     n.Name(),
			Summary:  n.Summary(),
			Optional: n.Optional(),
			Resolved: n.Resolved(),
			Icon:     n.Icon(),
			Branches: branches,
			Parents:  parents,
		}
		return nil
	})
	return view, err
}

// Snapshot loads a consistent in-memory copy of a workspace graph
func (e *NodeEngine) Snapshot(ctx context.Context, workspaceID valueobjects.WorkspaceID) (*aggregates.Graph, error) {
	var graph *aggregates.Graph
	err := e.boundary.View(ctx, func(ctx context.Context, tx ports.Tx) error {
		ws, err := tx.GetWorkspace(ctx, workspaceID)
		if errors.Is(err, ports.ErrNotFound) {
			return pkgerrors.NonexistentWorkspace(int64(workspaceID))
		}
		if err != nil {
			return storeError("get workspace", err)
		}
		nodes, err := tx.ListNodes(ctx, workspaceID)
		if err != nil {
			return storeError("list nodes", err)
		}
		edges, err := tx.ListEdges(ctx, workspaceID)
		if err != nil {
			return storeError("list edges", err)
		}
		graph = aggregates.BuildGraph(workspaceID, ws.RootID(), nodes, edges)
		return nil
	})
	return graph, err
}

// WorkspaceOf returns the workspace owning node
func (e *NodeEngine) WorkspaceOf(ctx context.Context, node valueobjects.NodeID) (valueobjects.WorkspaceID, error) {
	ws, err := e.store.WorkspaceOf(ctx, node)
	if errors.Is(err, ports.ErrNotFound) {
		return 0, pkgerrors.NonexistentNode(int64(node))
	}
	if err != nil {
		return 0, pkgerrors.DatabaseOperationFailed("resolve workspace", err)
	}
	return ws, nil
}

func (e *NodeEngine) insertNode(ctx context.Context, tx ports.Tx, workspaceID valueobjects.WorkspaceID, name, summary string) (valueobjects.NodeID, error) {
	n, err := entities.NewNode(workspaceID, name, summary)
	if err != nil {
		return 0, err
	}
	id, err := tx.InsertNode(ctx, n)
	if err != nil {
		return 0, storeError("insert node", err)
	}
	if err := tx.ProvisionChat(ctx, workspaceID, id); err != nil {
		return 0, pkgerrors.DatabaseOperationFailed("provision chat", err)
	}
	return id, nil
}

// resolveLink finds the shared workspace of node and branch
func (e *NodeEngine) resolveLink(ctx context.Context, node, branch valueobjects.NodeID) (valueobjects.WorkspaceID, error) {
	nodeWS, err := e.WorkspaceOf(ctx, node)
	if err != nil {
		return 0, err
	}
	branchWS, err := e.WorkspaceOf(ctx, branch)
	if err != nil {
		return 0, err
	}
	if nodeWS != branchWS {
		return 0, pkgerrors.ForbiddenLink(int64(node), int64(branch))
	}
	return nodeWS, nil
}

// checkLink validates that linking branch under node keeps the graph acyclic
func (e *NodeEngine) checkLink(ctx context.Context, tx ports.Tx, workspaceID valueobjects.WorkspaceID, node, branch valueobjects.NodeID) error {
	if err := e.requireNodes(ctx, tx, workspaceID, node, branch); err != nil {
		return err
	}
	if node == branch {
		return pkgerrors.CyclicReference(int64(node), int64(branch))
	}
	cyclic, err := IsAncestor(ctx, tx, branch, node)
	if err != nil {
		return storeError("ancestor check", err)
	}
	if cyclic {
		return pkgerrors.CyclicReference(int64(node), int64(branch))
	}
	return nil
}

// requireNodes re-checks existence inside the transaction; a concurrent
// delete may have won the race since the workspace was resolved.
func (e *NodeEngine) requireNodes(ctx context.Context, tx ports.Tx, workspaceID valueobjects.WorkspaceID, ids ...valueobjects.NodeID) error {
	for _, id := range ids {
		exists, err := tx.NodeExists(ctx, workspaceID, id)
		if err != nil {
			return storeError("check node", err)
		}
		if !exists {
			return pkgerrors.NonexistentNode(int64(id))
		}
	}
	return nil
}

// sweep runs the cascade and clears the root reference if the root went with it
func (e *NodeEngine) sweep(ctx context.Context, tx ports.Tx, workspaceID valueobjects.WorkspaceID, start valueobjects.NodeID, policy config.CascadePolicy) ([]valueobjects.NodeID, error) {
	ws, err := tx.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, storeError("get workspace", err)
	}

	deleted, err := cascadeDelete(ctx, tx, start, policy)
	if err != nil {
		return nil, err
	}

	if ws.HasRoot() && valueobjects.NewNodeSet(deleted...).Contains(ws.RootID()) {
		if err := tx.SetRoot(ctx, workspaceID, 0); err != nil {
			return nil, storeError("clear root", err)
		}
	}
	e.metrics.RecordCascade(len(deleted))
	return deleted, nil
}

func (e *NodeEngine) publish(ctx context.Context, evts ...events.DomainEvent) {
	if e.publisher == nil || len(evts) == 0 {
		return
	}
	// The graph change is committed; delivery problems are only reported.
	if err := e.publisher.Publish(ctx, evts...); err != nil {
		e.logger.Warn("Failed to publish domain events",
			zap.String("eventType", evts[0].GetEventType()),
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}

// observe opens a span and returns the function that closes it, records the
// outcome metric and logs the result.
func (e *NodeEngine) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error, ...zap.Field)) {
	ctx, span := e.tracer.Start(ctx, "NodeEngine."+op, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error, fields ...zap.Field) {
		defer span.End()

		elapsed := time.Since(start)
		result := "ok"
		if err != nil {
			result = string(pkgerrors.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		e.metrics.RecordOperation(op, result, elapsed)

		fields = append(fields, zap.String("operation", op), zap.Duration("duration", elapsed))
		switch {
		case err == nil:
			if op == OpFetch {
				e.logger.Debug("Graph fetched", fields...)
			} else {
				e.logger.Info("Graph operation committed", fields...)
			}
		case pkgerrors.IsPrecondition(err):
			e.logger.Debug("Graph operation rejected", append(fields, zap.String("reason", result))...)
		default:
			e.logger.Error("Graph operation failed", append(fields, zap.Error(err))...)
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, string, time.Duration) {}
func (nopMetrics) RecordCascade(int)                             {}

func linkAttributes(node, branch valueobjects.NodeID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("node.id", int64(node)),
		attribute.Int64("branch.id", int64(branch)),
	}
}
