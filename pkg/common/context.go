package common

import (
	"context"
	"slices"
)

// How a caller's identity was established
const (
	ViaGateway = "gateway"
	ViaBearer  = "bearer"
	ViaHeader  = "header"
	ViaDefault = "default"
)

// Caller is the authenticated principal of a request
type Caller struct {
	UserID string
	Roles  []string
	Via    string
}

// HasRole reports whether the caller carries role
func (c Caller) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

type callerKey struct{}

type callerSlotKey struct{}

// WithCallerSlot reserves room for the caller so middleware running outside
// authentication can read it once the request has been served.
func WithCallerSlot(ctx context.Context) (context.Context, *Caller) {
	slot := &Caller{}
	return context.WithValue(ctx, callerSlotKey{}, slot), slot
}

// WithCaller stores the caller and fills the reserved slot, if any
func WithCaller(ctx context.Context, c Caller) context.Context {
	if slot, ok := ctx.Value(callerSlotKey{}).(*Caller); ok {
		*slot = c
	}
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UserID != ""
}
