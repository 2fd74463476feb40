package amux

import (
	"context"
	"sync"
)

// Awaitable is an in-flight acquisition. It completes with either the
// guarded context and Release handle, or the cancellation error if
// ctx fired first; whichever resolves first wins and the other is
// ignored.
//
// An Awaitable deliberately never resumes a continuation inline, even
// when the grant happened before OnReady was called: the continuation
// is always posted through the Mutex's Dispatcher so ambient capture
// and replay around resumption stay uniform, with no fast path to
// skip them.
type Awaitable struct {
	m *Mutex

	mu         sync.Mutex
	registered bool
	completed  bool
	scheduled  bool
	gctx       context.Context
	rel        *Release
	err        error
	cont       func(context.Context, *Release, error)
}

// AcquireAsync begins acquiring the Mutex for the calling flow and
// returns immediately. The acquisition loop races the lock's waiter
// signal against ctx; cancellation while waiting is side-effect-free
// and owes no release.
func (m *Mutex) AcquireAsync(ctx context.Context) *Awaitable {
	aw := &Awaitable{m: m}

	go func() {
		gctx, rel, err := m.acquire(ctx)
		if err != nil {
			// Resume the continuation under the caller's own ambient
			// snapshot; there is no guarded context to hand out.
			gctx = ctx
		}
		aw.complete(gctx, rel, err)
	}()

	return aw
}

// OnReady registers the continuation to run when the acquisition
// resolves. Exactly one registration is accepted; a second call is a
// programming error and panics. The continuation always runs as a
// Dispatcher entry, never on the registering goroutine.
func (aw *Awaitable) OnReady(cont func(context.Context, *Release, error)) {
	if cont == nil {
		panic("amux: nil continuation registered on Awaitable")
	}

	aw.mu.Lock()
	if aw.registered {
		aw.mu.Unlock()
		panic("amux: continuation registered twice on one Awaitable")
	}
	aw.registered = true
	aw.cont = cont
	fire := aw.completed
	aw.mu.Unlock()

	if fire {
		aw.schedule()
	}
}

func (aw *Awaitable) complete(gctx context.Context, rel *Release, err error) {
	aw.mu.Lock()
	aw.completed = true
	aw.gctx = gctx
	aw.rel = rel
	aw.err = err
	fire := aw.registered
	aw.mu.Unlock()

	if fire {
		aw.schedule()
	}
}

// schedule posts the continuation exactly once, no matter which of
// registration and completion happened second. The continuation
// reference is dropped as it is handed to the Dispatcher so nothing
// is retained past resumption.
func (aw *Awaitable) schedule() {
	aw.mu.Lock()
	if aw.scheduled {
		aw.mu.Unlock()
		return
	}
	aw.scheduled = true
	cont, gctx, rel, err := aw.cont, aw.gctx, aw.rel, aw.err
	aw.cont = nil
	aw.mu.Unlock()

	aw.m.Dispatcher().Post(gctx, func(c context.Context) {
		cont(c, rel, err)
	})
}
