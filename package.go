// Package amux provides a reentrant asynchronous mutex. It suspends
// contending goroutines cooperatively instead of spinning, lets the
// same logical flow re-enter a lock it already holds, and still
// guarantees that two distinct concurrent flows never run inside the
// guarded section at the same instant.
//
// Key components:
//
//   - Mutex: The reentrant lock itself. Ownership is tracked per
//     logical flow (a Scope carried in the context), not per
//     goroutine, so re-entry across suspension points works and
//     forked flows contend as independent callers.
//
//   - Scope: Opaque identity of a logical flow. Provisioned lazily on
//     first acquisition, forked explicitly with WithScope, and
//     propagated through contexts with snapshot-at-fork semantics.
//
//   - Dispatcher: A single-consumer serializing executor bound to
//     each Mutex. Work routed through it runs strictly one unit at a
//     time in enqueue order; it is what turns "logically holds the
//     lock" into "is not physically overlapping any other holder".
//
//   - Awaitable: A cancellation-aware handle for an in-flight
//     acquisition. Its continuation is always resumed through the
//     Dispatcher, never inline, even when the grant was immediate.
//
//   - Release: An idempotent one-shot handle returned by a successful
//     acquisition; exactly one physical release happens no matter how
//     many times or from how many goroutines it is invoked.
package amux
