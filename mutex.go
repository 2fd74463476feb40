package amux

import (
	"context"
	"sync"
)

// Mutex is a reentrant asynchronous mutual-exclusion lock. Ownership
// belongs to a logical flow (a Scope carried in the context), so the
// owner may re-enter across suspension points without deadlocking,
// while flows carrying distinct scopes are mutually excluded.
//
// The zero value is an unlocked mutex. A Mutex must not be copied
// after first use.
//
// Wake policy: releasing a contended Mutex fires a broadcast signal
// and every waiter present at that moment re-races the acquisition;
// exactly one wins and the rest wait again. No FIFO or fairness
// guarantee is made.
//
// Acquire and AcquireAsync grant logical ownership. Concurrent flows
// that share one Scope (forked children of a holder) are all eligible
// reentrantly; route their guarded sections through With or OnReady
// so they serialize through the Mutex's Dispatcher instead of
// overlapping.
type Mutex struct {
	noCopy noCopy

	// gate protects the fields below; held only for constant-time
	// bookkeeping, never across a suspension point or a callback.
	gate    sync.Mutex
	holds   uint32
	owner   *Scope
	pending *waiterSignal

	dispOnce sync.Once
	disp     *Dispatcher
}

// Dispatcher returns the serializing executor bound to this Mutex,
// creating it on first use. It is installed as the ambient
// continuation target of every guarded context the Mutex hands out.
func (m *Mutex) Dispatcher() *Dispatcher {
	m.dispOnce.Do(func() { m.disp = NewDispatcher() })
	return m.disp
}

// tryAcquire is the only place contenders mutate lock state, and it
// runs entirely under the gate. It grants when the lock is free or
// already owned by scope; otherwise it returns the broadcast signal
// the caller should wait on, creating it if this is the first waiter.
func (m *Mutex) tryAcquire(scope *Scope) (granted bool, busy *waiterSignal) {
	m.gate.Lock()
	defer m.gate.Unlock()

	switch {
	case m.holds == 0:
		m.holds = 1
		m.owner = scope
		return true, nil
	case m.owner == scope:
		m.holds++
		return true, nil
	default:
		if m.pending == nil {
			m.pending = newWaiterSignal()
		}
		return false, m.pending
	}
}

// unlock undoes one level of ownership. Dropping the last level
// clears the owner and fires the pending broadcast, waking every
// current waiter to re-race.
func (m *Mutex) unlock(scope *Scope) {
	m.gate.Lock()
	defer m.gate.Unlock()

	if m.holds == 0 || m.owner != scope {
		panic("amux: release of a mutex not held by this scope")
	}

	m.holds--
	if m.holds > 0 {
		return
	}

	m.owner = nil
	if m.pending != nil {
		m.pending.fire()
		m.pending = nil
	}
}

// acquire runs the acquisition loop on the calling goroutine. Waiting
// mutates nothing, so retrying after a wake-up is always safe and
// cancellation mid-wait leaves no residue and owes no release.
func (m *Mutex) acquire(ctx context.Context) (context.Context, *Release, error) {
	gctx, scope := ensureScope(ctx)

	for {
		granted, busy := m.tryAcquire(scope)
		if granted {
			rel := newRelease(func() { m.unlock(scope) })
			return withTarget(gctx, m.Dispatcher()), rel, nil
		}

		select {
		case <-busy.wait():
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// Acquire blocks until the calling flow owns the Mutex or ctx is
// cancelled. On success it returns the guarded context (owner scope
// and continuation target installed) and the Release handle that must
// eventually be invoked exactly once. On cancellation no release is
// owed.
//
// The grant is resumed through the Dispatcher like any other
// continuation; when the caller already is the drain goroutine (a
// nested acquisition inside a guarded section) it resolves inline so
// the queue keeps moving.
func (m *Mutex) Acquire(ctx context.Context) (context.Context, *Release, error) {
	if m.Dispatcher().OnDrainer() {
		return m.acquire(ctx)
	}

	type outcome struct {
		ctx context.Context
		rel *Release
		err error
	}

	ch := make(chan outcome, 1)
	m.AcquireAsync(ctx).OnReady(func(c context.Context, rel *Release, err error) {
		ch <- outcome{ctx: c, rel: rel, err: err}
	})

	o := <-ch
	return o.ctx, o.rel, o.err
}

// TryAcquire acquires the Mutex only if that needs no waiting: the
// lock is free or the calling flow already owns it. It never enqueues
// a waiter. The boolean reports success.
func (m *Mutex) TryAcquire(ctx context.Context) (context.Context, *Release, bool) {
	gctx, scope := ensureScope(ctx)

	m.gate.Lock()
	switch {
	case m.holds == 0:
		m.holds = 1
		m.owner = scope
	case m.owner == scope:
		m.holds++
	default:
		m.gate.Unlock()
		return nil, nil, false
	}
	m.gate.Unlock()

	rel := newRelease(func() { m.unlock(scope) })
	return withTarget(gctx, m.Dispatcher()), rel, true
}

// With acquires the Mutex, runs fn as a guarded section funneled
// through the Dispatcher, then releases. fn receives the guarded
// context; nested With calls from inside fn re-enter without
// suspending. This is the form that guarantees physical non-overlap
// even between concurrent flows sharing one owner scope.
//
// A panic inside fn is captured at the dispatcher boundary and
// reported via OnError; the lock is still released.
func (m *Mutex) With(ctx context.Context, fn func(context.Context) error) error {
	gctx, rel, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer rel.Release()

	return m.Dispatcher().call(gctx, fn)
}

// HoldCount returns the current re-entry depth, 0 when the Mutex is
// free. Diagnostic only; the value may be stale by the time it is
// observed.
func (m *Mutex) HoldCount() uint32 {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.holds
}
