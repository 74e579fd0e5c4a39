package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOperationKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		kind   OpKind
		status int
	}{
		{"nonexistent node", NonexistentNode(7), KindNonexistentNode, http.StatusNotFound},
		{"nonexistent workspace", NonexistentWorkspace(3), KindNonexistentWorkspace, http.StatusNotFound},
		{"root exists", RootAlreadyExists(3, 1), KindRootAlreadyExists, http.StatusConflict},
		{"forbidden link", ForbiddenLink(1, 2), KindForbiddenLink, http.StatusForbidden},
		{"cycle", CyclicReference(1, 2), KindCyclicReference, http.StatusBadRequest},
		{"invalid argument", InvalidArgument("name is required"), KindInvalidArgument, http.StatusBadRequest},
		{"database", DatabaseOperationFailed("commit", errors.New("disk full")), KindDatabaseOperationFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("borrow: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.True(t, IsKind(wrapped, tt.kind))
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.kind != KindDatabaseOperationFailed, IsPrecondition(wrapped))
		})
	}
}

func TestKindOf_PlainErrorsAreStoreFailures(t *testing.T) {
	assert.Equal(t, OpKind(""), KindOf(nil))
	assert.Equal(t, KindDatabaseOperationFailed, KindOf(errors.New("connection reset")))
	assert.False(t, IsKind(nil, KindNonexistentNode))
}

func TestDatabaseOperationFailed_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := DatabaseOperationFailed("commit", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorHandler_Handle(t *testing.T) {
	t.Run("operation error", func(t *testing.T) {
		h := NewErrorHandler(zap.NewNop(), false)
		rec := httptest.NewRecorder()
		h.Handle(rec, httptest.NewRequest(http.MethodPost, "/api/v1/nodes/borrow", nil), CyclicReference(1, 2))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Error)
		assert.Equal(t, string(KindCyclicReference), resp.Code)
		assert.EqualValues(t, 2, resp.Details["branch_id"])
	})

	t.Run("store failure hides details", func(t *testing.T) {
		h := NewErrorHandler(zap.NewNop(), false)
		rec := httptest.NewRecorder()
		err := DatabaseOperationFailed("commit", errors.New("disk full")).
			WithDetails(map[string]interface{}{"table": "nodes"})
		h.Handle(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk full")
		assert.NotContains(t, rec.Body.String(), "nodes")
	})

	t.Run("unknown error", func(t *testing.T) {
		h := NewErrorHandler(zap.NewNop(), false)
		rec := httptest.NewRecorder()
		h.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestErrorHandler_MiddlewareRecoversPanics(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
