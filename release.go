package amux

import "sync/atomic"

// Release is the idempotent handle returned by a successful
// acquisition. Invoking it relinquishes one level of ownership;
// concurrent and repeated invocations are safe and exactly one
// physical release occurs.
//
// Every successful acquisition must eventually be released exactly
// once. Dropping a Release without invoking it deadlocks later
// contenders; that is a caller responsibility, not detected here.
type Release struct {
	fn atomic.Pointer[func()]
}

func newRelease(fn func()) *Release {
	r := new(Release)
	r.fn.Store(&fn)
	return r
}

// Release relinquishes the ownership level this handle was granted
// for. It atomically takes and clears the underlying closure, so any
// number of calls from any goroutines trigger it once; later calls
// are no-ops.
func (r *Release) Release() {
	if fn := r.fn.Swap(nil); fn != nil {
		(*fn)()
	}
}
