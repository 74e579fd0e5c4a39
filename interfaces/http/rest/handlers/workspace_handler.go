package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stackture/application/services"
	"stackture/domain/core/aggregates"
	"stackture/domain/core/entities"
	"stackture/domain/core/valueobjects"
	"stackture/pkg/common"
	pkgerrors "stackture/pkg/errors"
)

// WorkspaceManager is the workspace service as seen by the HTTP layer
type WorkspaceManager interface {
	Authorizer
	CreateWorkspace(ctx context.Context, ownerID, title, description string) (*entities.Workspace, error)
	GetWorkspace(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) (*services.WorkspaceSummary, error)
	ListWorkspaces(ctx context.Context, ownerID string) ([]*entities.Workspace, error)
	DeleteWorkspace(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) error
}

// WorkspaceHandler serves workspaces and their graphs
type WorkspaceHandler struct {
	workspaces WorkspaceManager
	engine     NodeOperations
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

func NewWorkspaceHandler(workspaces WorkspaceManager, engine NodeOperations, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaces,
		engine:     engine,
		errors:     errs,
		logger:     logger,
	}
}

// CreateWorkspaceRequest is the body of POST /workspaces
type CreateWorkspaceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// WorkspaceResponse is the JSON form of a workspace
type WorkspaceResponse struct {
	ID          valueobjects.WorkspaceID `json:"id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	RootID      *valueobjects.NodeID     `json:"root_id,omitempty"`
	NodeCount   *int                     `json:"node_count,omitempty"`
	CreatedAt   string                   `json:"created_at"`
}

// GraphResponse is a workspace with its full node list
type GraphResponse struct {
	Workspace WorkspaceResponse     `json:"workspace"`
	Nodes     []aggregates.NodeView `json:"nodes"`
}

func toWorkspaceResponse(ws *entities.Workspace) WorkspaceResponse {
	resp := WorkspaceResponse{
		ID:          ws.ID(),
		Title:       ws.Title(),
		Description: ws.Description(),
		CreatedAt:   ws.CreatedAt().Format(time.RFC3339),
	}
	if ws.HasRoot() {
		root := ws.RootID()
		resp.RootID = &root
	}
	return resp
}

// Create handles POST /workspaces
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateWorkspaceRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.InvalidArgument("invalid request body: "+err.Error()))
		return
	}

	ws, err := h.workspaces.CreateWorkspace(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusCreated, toWorkspaceResponse(ws))
}

// List handles GET /workspaces
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	list, err := h.workspaces.ListWorkspaces(r.Context(), userID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	out := make([]WorkspaceResponse, 0, len(list))
	for _, ws := range list {
		out = append(out, toWorkspaceResponse(ws))
	}
	common.RespondJSON(w, r, http.StatusOK, out)
}

// Get handles GET /workspaces/{workspaceID} and returns the graph
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := valueobjects.ParseWorkspaceID(chi.URLParam(r, "workspaceID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.InvalidArgument(err.Error()))
		return
	}

	summary, err := h.workspaces.GetWorkspace(r.Context(), userID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	nodes, err := h.engine.FetchGraph(r.Context(), id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	resp := toWorkspaceResponse(summary.Workspace)
	count := len(nodes)
	resp.NodeCount = &count
	common.RespondJSON(w, r, http.StatusOK, GraphResponse{Workspace: resp, Nodes: nodes})
}

// Delete handles DELETE /workspaces/{workspaceID}
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := valueobjects.ParseWorkspaceID(chi.URLParam(r, "workspaceID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.InvalidArgument(err.Error()))
		return
	}
	if err := h.workspaces.DeleteWorkspace(r.Context(), userID, id); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := common.CallerFrom(r.Context())
	if !ok {
		h.errors.Handle(w, r, pkgerrors.NewUnauthorizedError("missing caller identity"))
	}
	return caller.UserID, ok
}
