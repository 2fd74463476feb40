package amux

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Scope is the opaque identity of a logical flow. Two acquisitions
// carrying the same *Scope are treated as the same owner re-entering;
// acquisitions carrying different scopes contend. Scopes are compared
// by pointer identity; the embedded UUID exists for diagnostics only.
//
// A scope is provisioned lazily by the first acquisition of a flow
// that does not already carry one, and travels in the context from
// there on. Because context values are immutable, a forked goroutine
// sees a snapshot of its parent's scope at hand-off and nothing a
// child attaches ever propagates back to the parent or to siblings.
type Scope struct {
	id uuid.UUID
}

func newScope() *Scope {
	return &Scope{id: uuid.New()}
}

// ID returns the diagnostic identity of the scope.
func (s *Scope) ID() uuid.UUID { return s.id }

func (s *Scope) String() string {
	if s == nil {
		return "scope(none)"
	}
	return "scope(" + s.id.String() + ")"
}

// scopeContextKey is a unique type used as a key for storing the
// current Scope in a context.
type scopeContextKey struct{}

// targetContextKey keys the current continuation target (the
// Dispatcher that guarded-section work should be routed through).
type targetContextKey struct{}

// WithScope returns a context carrying a fresh Scope, detaching the
// returned context from any scope the parent carried. Use it when
// fanning out flows that must contend with each other (and with the
// parent) as independent callers.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, newScope())
}

// ScopeFromContext retrieves the Scope carried by ctx. Returns the
// scope and a boolean indicating whether one was present.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok
}

// ensureScope returns ctx's scope, provisioning one lazily when the
// flow does not carry any. The returned context always carries the
// returned scope.
func ensureScope(ctx context.Context) (context.Context, *Scope) {
	if s, ok := ScopeFromContext(ctx); ok {
		return ctx, s
	}
	s := newScope()
	return context.WithValue(ctx, scopeContextKey{}, s), s
}

// withTarget installs d as the ambient continuation target for the
// returned context. The caller's original context is untouched, which
// is what restores the previous target when the guarded section ends.
func withTarget(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, targetContextKey{}, d)
}

// TargetFromContext retrieves the ambient continuation target, if
// any. Inside a guarded section this is the owning Mutex's
// Dispatcher.
func TargetFromContext(ctx context.Context) (*Dispatcher, bool) {
	d, ok := ctx.Value(targetContextKey{}).(*Dispatcher)
	return d, ok
}

// CurrentTarget returns the ambient continuation target, falling back
// to the process-wide default when none is installed.
func CurrentTarget(ctx context.Context) *Dispatcher {
	if d, ok := TargetFromContext(ctx); ok {
		return d
	}
	return DefaultTarget()
}

// DefaultTarget returns the process-wide fallback continuation
// target. It is created once, immutable and never torn down.
var DefaultTarget = sync.OnceValue(NewDispatcher)
