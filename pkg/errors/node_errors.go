package errors

import (
	"fmt"
	"net/http"
)

// OpKind is the outcome kind of a failed structural graph operation.
// It is carried in AppError.Code so transports can switch on it.
type OpKind string

const (
	KindNonexistentNode         OpKind = "NonexistentNode"
	KindNonexistentWorkspace    OpKind = "NonexistentWorkspace"
	KindRootAlreadyExists       OpKind = "RootAlreadyExists"
	KindForbiddenLink           OpKind = "ForbiddenLink"
	KindCyclicReference         OpKind = "CyclicReference"
	KindInvalidArgument         OpKind = "InvalidArgument"
	KindDatabaseOperationFailed OpKind = "DatabaseOperationFailed"
)

// NonexistentNode reports that a node is absent (or absent from the given workspace).
func NonexistentNode(nodeID int64) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("node %d does not exist", nodeID)).
		WithCode(string(KindNonexistentNode)).
		WithDetails(map[string]interface{}{"node_id": nodeID})
}

// NonexistentWorkspace reports that a workspace is absent.
func NonexistentWorkspace(workspaceID int64) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("workspace %d does not exist", workspaceID)).
		WithCode(string(KindNonexistentWorkspace)).
		WithDetails(map[string]interface{}{"workspace_id": workspaceID})
}

// RootAlreadyExists reports a second CREATE against a rooted workspace.
func RootAlreadyExists(workspaceID, rootID int64) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, fmt.Sprintf("workspace %d already has root node %d", workspaceID, rootID)).
		WithCode(string(KindRootAlreadyExists)).
		WithDetails(map[string]interface{}{"workspace_id": workspaceID, "root_id": rootID})
}

// ForbiddenLink reports an attempt to link nodes across workspaces.
func ForbiddenLink(nodeID, branchID int64) *AppError {
	return newError(ErrorTypeForbidden, http.StatusForbidden, fmt.Sprintf("nodes %d and %d belong to different workspaces", nodeID, branchID)).
		WithCode(string(KindForbiddenLink)).
		WithDetails(map[string]interface{}{"node_id": nodeID, "branch_id": branchID})
}

// CyclicReference reports that linking branch under node would close a cycle.
func CyclicReference(nodeID, branchID int64) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, fmt.Sprintf("linking %d under %d would create a cycle", branchID, nodeID)).
		WithCode(string(KindCyclicReference)).
		WithDetails(map[string]interface{}{"node_id": nodeID, "branch_id": branchID})
}

// InvalidArgument reports a malformed operation input.
func InvalidArgument(message string) *AppError {
	return NewValidationError(message).WithCode(string(KindInvalidArgument))
}

// DatabaseOperationFailed wraps a store failure. The cause is kept for logs only.
func DatabaseOperationFailed(operation string, err error) *AppError {
	return NewDatabaseError(operation, err).WithCode(string(KindDatabaseOperationFailed))
}

// KindOf returns the operation kind carried by err, or "" when err is not an
// operation error. Non-AppErrors are treated as store failures.
func KindOf(err error) OpKind {
	if err == nil {
		return ""
	}
	appErr := GetAppError(err)
	if appErr == nil {
		return KindDatabaseOperationFailed
	}
	return OpKind(appErr.Code)
}

// IsKind checks whether err carries the given operation kind.
func IsKind(err error, kind OpKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsPrecondition reports whether err is an expected, caller-recoverable outcome.
func IsPrecondition(err error) bool {
	switch KindOf(err) {
	case KindNonexistentNode, KindNonexistentWorkspace, KindRootAlreadyExists,
		KindForbiddenLink, KindCyclicReference, KindInvalidArgument:
		return true
	}
	return false
}
