package model

import (
	"context"
	"errors"
)

// ErrInvalidPrincipal indicates an attempt to build a Ctx for a non-positive author id.
var ErrInvalidPrincipal = errors.New("model: invalid principal")

// Ctx carries the acting principal through every data-access call.
type Ctx struct {
	authorID int64
	root     bool
}

// RootCtx returns the privileged context used by internal jobs and cache refreshes.
func RootCtx() Ctx {
	return Ctx{root: true}
}

// NewCtx builds a context for an authenticated author.
func NewCtx(authorID int64) (Ctx, error) {
	if authorID <= 0 {
		return Ctx{}, ErrInvalidPrincipal
	}
	return Ctx{authorID: authorID}, nil
}

// AuthorID returns the acting author id, or zero for the root context.
func (c Ctx) AuthorID() int64 {
	return c.authorID
}

// IsRoot reports whether the call runs with system privileges.
func (c Ctx) IsRoot() bool {
	return c.root
}

type ctxKey struct{}

// WithCtx stores the model Ctx on a standard context.
func WithCtx(parent context.Context, c Ctx) context.Context {
	return context.WithValue(parent, ctxKey{}, c)
}

// CtxFrom extracts the model Ctx stored by WithCtx.
func CtxFrom(ctx context.Context) (Ctx, bool) {
	if ctx == nil {
		return Ctx{}, false
	}
	c, ok := ctx.Value(ctxKey{}).(Ctx)
	return c, ok
}
