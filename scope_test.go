package amux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeSnapshotAtFork(t *testing.T) {
	r := require.New(t)

	parent := WithScope(context.Background())
	ps, ok := ScopeFromContext(parent)
	r.True(ok)

	// A child deriving its own scope never back-propagates to the
	// parent or to siblings.
	child1 := WithScope(parent)
	child2 := WithScope(parent)

	c1, _ := ScopeFromContext(child1)
	c2, _ := ScopeFromContext(child2)

	r.NotSame(ps, c1)
	r.NotSame(ps, c2)
	r.NotSame(c1, c2)

	again, _ := ScopeFromContext(parent)
	r.Same(ps, again)
}

func TestScopeLazyProvisioning(t *testing.T) {
	r := require.New(t)

	var m Mutex

	bare := context.Background()
	_, ok := ScopeFromContext(bare)
	r.False(ok)

	gctx, rel, err := m.Acquire(bare)
	r.NoError(err)
	defer rel.Release()

	s, ok := ScopeFromContext(gctx)
	r.True(ok)
	r.NotNil(s)

	// The caller's original context is untouched.
	_, ok = ScopeFromContext(bare)
	r.False(ok)
}

func TestScopeString(t *testing.T) {
	r := require.New(t)

	s := newScope()
	r.Contains(s.String(), s.ID().String())
	r.Equal("scope(none)", (*Scope)(nil).String())
}

func TestAmbientTargetRestoredAfterGuardedSection(t *testing.T) {
	r := require.New(t)

	var a, b Mutex

	outer := context.Background()
	r.Same(DefaultTarget(), CurrentTarget(outer))

	var insideA, insideB, afterB *Dispatcher
	err := a.With(outer, func(actx context.Context) error {
		insideA = CurrentTarget(actx)

		gctx, rel, err := b.Acquire(actx)
		if err != nil {
			return err
		}
		insideB = CurrentTarget(gctx)
		rel.Release()

		// Releasing b does not disturb the target that was ambient
		// immediately before its acquisition.
		afterB = CurrentTarget(actx)
		return nil
	})
	r.NoError(err)
	r.Same(a.Dispatcher(), insideA)
	r.Same(b.Dispatcher(), insideB)
	r.Same(a.Dispatcher(), afterB)

	// Leaving the guarded section restores the outer target.
	r.Same(DefaultTarget(), CurrentTarget(outer))
}

func TestDefaultTargetSingleton(t *testing.T) {
	r := require.New(t)

	r.Same(DefaultTarget(), DefaultTarget())
	r.NotNil(DefaultTarget())
}
