package amux

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// dispatchEntry is one unit of queued work plus the ambient context
// snapshot that was active when it was enqueued. The drain loop runs
// the callback with that snapshot, so nested code observes the
// logical identity of the flow that posted it, not of the drainer.
type dispatchEntry struct {
	fn  func(context.Context)
	ctx context.Context
}

// Dispatcher is a single-consumer serializing executor. All work
// routed through one Dispatcher runs strictly one unit at a time, in
// enqueue order, regardless of which goroutine enqueued it. A drain
// burst claims a pooled goroutine, empties the queue, and lets go; a
// later Post starts a fresh burst, possibly on a different goroutine.
//
// Each Mutex owns one Dispatcher and installs it as the ambient
// continuation target for the duration of a guarded section; funneling
// guarded work through it is what upgrades "logically holds the
// mutex" into "is not physically overlapping any other holder or
// contender", including concurrent flows that share one owner Scope.
type Dispatcher struct {
	mu      sync.Mutex
	queue   deque.Deque[dispatchEntry]
	pumping bool

	// drainer is the goroutine id of the active drain burst, 0 when
	// idle. Written only by the drainer itself and read for nesting
	// detection and diagnostics.
	drainer atomic.Int64

	hmu      sync.Mutex
	handlers []func(error)

	// pool recycles the blocking handles used by SendBlocking instead
	// of allocating one per call.
	pool sync.Pool
}

// NewDispatcher creates an idle Dispatcher.
func NewDispatcher() *Dispatcher {
	d := new(Dispatcher)
	d.pool.New = func() any { return make(chan struct{}, 1) }
	return d
}

// Post enqueues fn for serialized execution, capturing ctx as the
// ambient snapshot the callback will run under. It never blocks
// beyond constant-time bookkeeping. Entries posted in sequence by one
// flow execute in that exact order.
func (d *Dispatcher) Post(ctx context.Context, fn func(context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	d.queue.PushBack(dispatchEntry{fn: fn, ctx: ctx})
	pump := !d.pumping
	if pump {
		d.pumping = true
	}
	d.mu.Unlock()

	if pump {
		go d.drain()
	}
}

// drain empties the queue one entry at a time. At most one drain runs
// per Dispatcher at any instant; the pumping flag hands that right to
// exactly one Post.
func (d *Dispatcher) drain() {
	d.drainer.Store(goid())

	for {
		d.mu.Lock()
		if d.queue.Len() == 0 {
			// Clear identity before releasing the pump so the next
			// burst never races this one's teardown.
			d.drainer.Store(0)
			d.pumping = false
			d.mu.Unlock()
			return
		}
		e := d.queue.PopFront()
		d.mu.Unlock()

		d.invoke(e)
	}
}

// invoke runs one entry, converting a panic into an error
// notification so a failing unit never aborts the drain.
func (d *Dispatcher) invoke(e dispatchEntry) {
	defer func() {
		if p := recover(); p != nil {
			d.notify(recoveredError(p))
		}
	}()

	e.fn(e.ctx)
}

func recoveredError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("amux: dispatched callback panicked: %w", err)
	}
	return fmt.Errorf("amux: dispatched callback panicked: %v", p)
}

// SendBlocking enqueues fn and blocks the calling goroutine until it
// has executed. It posts the callback, then a sentinel that signals a
// recycled wait handle, and parks on that handle. Calling it from the
// drain goroutine itself runs fn inline, since parking the drainer
// behind its own sentinel could never complete.
//
// This is an interoperability escape hatch for callers that must
// synchronously observe dispatcher-affined effects; acquisition does
// not use it.
func (d *Dispatcher) SendBlocking(ctx context.Context, fn func(context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	if d.OnDrainer() {
		d.invoke(dispatchEntry{fn: fn, ctx: ctx})
		return
	}

	done := d.pool.Get().(chan struct{})
	d.Post(ctx, fn)
	d.Post(ctx, func(context.Context) { done <- struct{}{} })
	<-done
	d.pool.Put(done)
}

// call is SendBlocking for error-returning callbacks; the guarded
// section of Mutex.With runs through here.
func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	var err error
	d.SendBlocking(ctx, func(c context.Context) { err = fn(c) })
	return err
}

// OnError subscribes h to notifications of panics recovered from
// dispatched work. Every subscribed handler sees every notification;
// with no subscribers notifications are dropped.
func (d *Dispatcher) OnError(h func(error)) {
	d.hmu.Lock()
	d.handlers = append(d.handlers, h)
	d.hmu.Unlock()
}

func (d *Dispatcher) notify(err error) {
	d.hmu.Lock()
	handlers := d.handlers
	d.hmu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}

// DrainerID reports the goroutine id currently draining the queue,
// or false when the Dispatcher is idle.
func (d *Dispatcher) DrainerID() (int64, bool) {
	id := d.drainer.Load()
	return id, id != 0
}

// OnDrainer reports whether the calling goroutine is the one
// currently draining this Dispatcher.
func (d *Dispatcher) OnDrainer() bool {
	id := d.drainer.Load()
	return id != 0 && id == goid()
}

// Len returns the number of entries waiting to execute.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}
