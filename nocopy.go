package amux

// noCopy flags embedding types as must-not-copy to go vet's copylocks
// check, the same trick sync.Mutex uses. Copying a Mutex after first
// use would split its gate from its dispatcher.
type noCopy struct{}

// Lock is a no-op making noCopy a sync.Locker for vet.
func (*noCopy) Lock() {}

// Unlock is the matching no-op.
func (*noCopy) Unlock() {}
