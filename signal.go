package amux

import "sync"

// waiterSignal is a one-shot, multi-observer completion signal. Every
// goroutine selecting on wait() at the moment fire() runs is woken
// together; there is no hand-off to a single waiter. The Mutex relies
// on this broadcast shape for its wake policy: released waiters
// re-race tryAcquire rather than being served in arrival order.
type waiterSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newWaiterSignal() *waiterSignal {
	return &waiterSignal{ch: make(chan struct{})}
}

// wait returns the channel observers select on. The channel is closed
// by fire, so late observers see an already-fired signal.
func (s *waiterSignal) wait() <-chan struct{} {
	return s.ch
}

// fire wakes every current and future observer. Safe to call more
// than once; only the first call has an effect.
func (s *waiterSignal) fire() {
	s.once.Do(func() { close(s.ch) })
}
