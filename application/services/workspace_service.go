package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/config"
	"stackture/domain/core/entities"
	"stackture/domain/core/validators"
	"stackture/domain/core/valueobjects"
	pkgerrors "stackture/pkg/errors"
)

// WorkspaceSummary is a workspace together with the size of its graph
type WorkspaceSummary struct {
	Workspace *entities.Workspace
	NodeCount int
}

// WorkspaceService manages the containers node graphs live in
type WorkspaceService struct {
	boundary *TransactionBoundary
	config   *config.Holder
	logger   *zap.Logger
}

func NewWorkspaceService(boundary *TransactionBoundary, cfg *config.Holder, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{boundary: boundary, config: cfg, logger: logger}
}

// CreateWorkspace stores an empty workspace owned by ownerID
func (s *WorkspaceService) CreateWorkspace(ctx context.Context, ownerID, title, description string) (*entities.Workspace, error) {
	if err := validators.NewNodeValidator(s.config.Load()).ValidateWorkspaceAttributes(ownerID, title, description); err != nil {
		return nil, err
	}
	ws, err := entities.NewWorkspace(ownerID, title, description)
	if err != nil {
		return nil, err
	}

	err = s.boundary.Run(ctx, 0, func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.InsertWorkspace(ctx, ws)
		return storeError("insert workspace", err)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workspace created",
		zap.Int64("workspaceID", int64(ws.ID())),
		zap.String("ownerID", ownerID),
	)
	return ws, nil
}

// GetWorkspace loads a workspace the caller owns
func (s *WorkspaceService) GetWorkspace(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) (*WorkspaceSummary, error) {
	var summary *WorkspaceSummary
	err := s.boundary.View(ctx, func(ctx context.Context, tx ports.Tx) error {
		ws, err := s.owned(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		nodes, err := tx.ListNodes(ctx, id)
		if err != nil {
			return storeError("list nodes", err)
		}
		summary = &WorkspaceSummary{Workspace: ws, NodeCount: len(nodes)}
		return nil
	})
	return summary, err
}

// ListWorkspaces returns the caller's workspaces in creation order
func (s *WorkspaceService) ListWorkspaces(ctx context.Context, ownerID string) ([]*entities.Workspace, error) {
	var out []*entities.Workspace
	err := s.boundary.View(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		out, err = tx.ListWorkspaces(ctx, ownerID)
		return storeError("list workspaces", err)
	})
	return out, err
}

// DeleteWorkspace removes a workspace with all its nodes, links and chats
func (s *WorkspaceService) DeleteWorkspace(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) error {
	err := s.boundary.Run(ctx, id, func(ctx context.Context, tx ports.Tx) error {
		if _, err := s.owned(ctx, tx, ownerID, id); err != nil {
			return err
		}
		return storeError("delete workspace", tx.DeleteWorkspace(ctx, id))
	})
	if err != nil {
		return err
	}

	s.logger.Info("Workspace deleted", zap.Int64("workspaceID", int64(id)))
	return nil
}

// Authorize checks that ownerID owns the workspace
func (s *WorkspaceService) Authorize(ctx context.Context, ownerID string, id valueobjects.WorkspaceID) error {
	return s.boundary.View(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := s.owned(ctx, tx, ownerID, id)
		return err
	})
}

func (s *WorkspaceService) owned(ctx context.Context, tx ports.Tx, ownerID string, id valueobjects.WorkspaceID) (*entities.Workspace, error) {
	ws, err := tx.GetWorkspace(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, pkgerrors.NonexistentWorkspace(int64(id))
	}
	if err != nil {
		return nil, storeError("get workspace", err)
	}
	if !ws.IsOwnedBy(ownerID) {
		return nil, pkgerrors.NewForbiddenError("workspace belongs to another user")
	}
	return ws, nil
}
