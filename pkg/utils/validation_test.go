package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "stackture/pkg/errors"
)

type linkRequest struct {
	NodeID   int64  `validate:"gt=0"`
	BranchID int64  `validate:"gt=0"`
	Name     string `validate:"required,max=5"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(linkRequest{NodeID: 1, BranchID: 2, Name: "ok"}))

	err := ValidateStruct(linkRequest{NodeID: 0, BranchID: 2, Name: "too long"})
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindInvalidArgument))
	assert.Contains(t, err.Error(), "nodeid must be greater than 0")
	assert.Contains(t, err.Error(), "name must be at most 5 characters")
}
