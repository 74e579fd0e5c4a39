package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stackture/domain/core/aggregates"
	"stackture/domain/core/valueobjects"
	"stackture/pkg/common"
	pkgerrors "stackture/pkg/errors"
	"stackture/pkg/utils"
)

const maxBodyBytes = 1 << 20

// NodeOperations is the structural engine as seen by the HTTP layer
type NodeOperations interface {
	Create(ctx context.Context, workspaceID valueobjects.WorkspaceID, name, summary string) (valueobjects.NodeID, error)
	Add(ctx context.Context, workspaceID valueobjects.WorkspaceID, parent valueobjects.NodeID, name, summary string) (valueobjects.NodeID, error)
	Borrow(ctx context.Context, node, branch valueobjects.NodeID) error
	Drop(ctx context.Context, node, branch valueobjects.NodeID) error
	Take(ctx context.Context, node, branch valueobjects.NodeID) error
	Delete(ctx context.Context, node valueobjects.NodeID) error
	FetchGraph(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]aggregates.NodeView, error)
	GetNode(ctx context.Context, id valueobjects.NodeID) (*aggregates.NodeView, error)
	WorkspaceOf(ctx context.Context, node valueobjects.NodeID) (valueobjects.WorkspaceID, error)
}

// Authorizer checks workspace ownership
type Authorizer interface {
	Authorize(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) error
}

// NodeHandler handles the structural operations
type NodeHandler struct {
	engine     NodeOperations
	authorizer Authorizer
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(engine NodeOperations, authorizer Authorizer, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{
		engine:     engine,
		authorizer: authorizer,
		errors:     errs,
		logger:     logger,
	}
}

// CreateNodeRequest is the body of POST /nodes/create
type CreateNodeRequest struct {
	WorkspaceID int64  `json:"workspace_id" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	Summary     string `json:"summary"`
}

// AddNodeRequest is the body of POST /nodes/add
type AddNodeRequest struct {
	WorkspaceID int64  `json:"workspace_id" validate:"gt=0"`
	NodeID      int64  `json:"node_id" validate:"gt=0"`
	Name        string `json:"name" validate:"required"`
	Summary     string `json:"summary"`
}

// LinkRequest is the body of borrow, drop and take
type LinkRequest struct {
	NodeID   int64 `json:"node_id" validate:"gt=0"`
	BranchID int64 `json:"branch_id" validate:"gt=0"`
}

// DeleteNodeRequest is the body of POST /nodes/delete
type DeleteNodeRequest struct {
	NodeID int64 `json:"node_id" validate:"gt=0"`
}

// NodeCreatedResponse carries the id of a new node
type NodeCreatedResponse struct {
	NodeID valueobjects.NodeID `json:"node_id"`
}

// Create handles POST /nodes/create
func (h *NodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ws := valueobjects.WorkspaceID(req.WorkspaceID)
	if err := h.authorizeWorkspace(r, ws); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id, err := h.engine.Create(r.Context(), ws, req.Name, req.Summary)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, NodeCreatedResponse{NodeID: id})
}

// Add handles POST /nodes/add
func (h *NodeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ws := valueobjects.WorkspaceID(req.WorkspaceID)
	if err := h.authorizeWorkspace(r, ws); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id, err := h.engine.Add(r.Context(), ws, valueobjects.NodeID(req.NodeID), req.Name, req.Summary)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, NodeCreatedResponse{NodeID: id})
}

// Borrow handles POST /nodes/borrow
func (h *NodeHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, h.engine.Borrow)
}

// Drop handles POST /nodes/drop
func (h *NodeHandler) Drop(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, h.engine.Drop)
}

// Take handles POST /nodes/take
func (h *NodeHandler) Take(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, h.engine.Take)
}

// Delete handles POST /nodes/delete
func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	node := valueobjects.NodeID(req.NodeID)
	if err := h.authorizeNode(r, node); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.engine.Delete(r.Context(), node); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /nodes/{nodeID}
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := valueobjects.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.InvalidArgument(err.Error()))
		return
	}
	if err := h.authorizeNode(r, id); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	view, err := h.engine.GetNode(r.Context(), id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, view)
}

func (h *NodeHandler) link(w http.ResponseWriter, r *http.Request, op func(context.Context, valueobjects.NodeID, valueobjects.NodeID) error) {
	var req LinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	node, branch := valueobjects.NodeID(req.NodeID), valueobjects.NodeID(req.BranchID)
	// Ownership of node is enough: branch must share its workspace anyway.
	if err := h.authorizeNode(r, node); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := op(r.Context(), node, branch); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NodeHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(w, r, v, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.InvalidArgument("invalid request body: "+err.Error()))
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		h.errors.Handle(w, r, err)
		return false
	}
	return true
}

func (h *NodeHandler) authorizeWorkspace(r *http.Request, ws valueobjects.WorkspaceID) error {
	caller, ok := common.CallerFrom(r.Context())
	if !ok {
		return pkgerrors.NewUnauthorizedError("missing caller identity")
	}
	return h.authorizer.Authorize(r.Context(), caller.UserID, ws)
}

func (h *NodeHandler) authorizeNode(r *http.Request, node valueobjects.NodeID) error {
	ws, err := h.engine.WorkspaceOf(r.Context(), node)
	if err != nil {
		return err
	}
	return h.authorizeWorkspace(r, ws)
}
