package internal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type model struct {
	x, y *Observable
}

func newModel(x, y any) *model {
	m := &model{}
	m.x = NewObservable(m, "x", x)
	m.y = NewObservable(m, "y", y)

	return m
}

func TestBinder(t *testing.T) {
	t.Run("recomputes once per drain and calls back with the new value", func(t *testing.T) {
		rt := GetRuntime()
		a := newModel(1, 2)

		calls := []any{}
		b := NewBinder(func(*Binder) any {
			return a.x.Get().(int) + a.y.Get().(int)
		}, WithCallback(func(v any) { calls = append(calls, v) }), IgnoreFirstRun())

		assert.Equal(t, 3, b.Get())
		assert.Empty(t, calls)

		a.x.Set(4)
		assert.True(t, b.Dirty())
		assert.Empty(t, calls, "recomputation waits for the drain")

		rt.Flush()

		assert.Equal(t, []any{6}, calls)
		assert.Equal(t, 6, b.Value())

		rt.Flush()
		assert.Equal(t, []any{6}, calls)
	})

	t.Run("first compute always calls back", func(t *testing.T) {
		calls := 0
		NewBinder(func(*Binder) any { return nil }, WithCallback(func(any) { calls++ }))

		assert.Equal(t, 1, calls)
	})

	t.Run("unchanged results do not call back", func(t *testing.T) {
		a := newModel(1, 1)
		calls := []any{}

		b := NewBinder(func(*Binder) any {
			return a.x.Get().(int) > 0
		}, WithCallback(func(v any) { calls = append(calls, v) }), Synchronous())

		a.x.Set(2)
		a.x.Set(-1)

		assert.Equal(t, []any{true, false}, calls)
		b.Dispose()
	})

	t.Run("NaN is unchanged after NaN", func(t *testing.T) {
		b := NewBinder(nil, IgnoreFirstRun())

		assert.True(t, b.Update(math.NaN(), false))
		assert.False(t, b.Update(math.NaN(), false))
		assert.True(t, b.Update(1.0, false))
		assert.False(t, b.Update(1.0, false))
	})

	t.Run("only the branch taken by the last evaluation is a dependency", func(t *testing.T) {
		log := []string{}
		flag := NewObservable(&point{}, "flag", true)
		left := NewObservable(&point{}, "left", "L")
		right := NewObservable(&point{}, "right", "R")

		NewBinder(func(*Binder) any {
			if flag.Get().(bool) {
				return left.Get()
			}
			return right.Get()
		}, WithCallback(func(v any) { log = append(log, v.(string)) }), Synchronous())

		right.Set("R2")
		flag.Set(false)
		left.Set("L2")
		right.Set("R3")

		assert.Equal(t, []string{"L", "R2", "R3"}, log)
	})

	t.Run("disposed binders never recompute", func(t *testing.T) {
		rt := GetRuntime()
		a := newModel(1, 0)
		calls := 0

		b := NewBinder(func(*Binder) any { return a.x.Get() }, WithCallback(func(any) { calls++ }))
		a.x.Set(2)
		b.Dispose()

		assert.NotPanics(t, rt.Flush)
		assert.Equal(t, 1, calls)
		assert.Empty(t, b.Dependencies())

		a.x.Set(3)
		rt.Flush()
		assert.Equal(t, 1, calls)
	})

	t.Run("a disposed parent stops evaluation", func(t *testing.T) {
		scope := NewScope()
		a := newModel(1, 0)
		calls := 0

		NewBinder(func(*Binder) any { return a.x.Get() },
			WithCallback(func(any) { calls++ }), WithParent(scope), Synchronous())

		scope.Dispose()
		a.x.Set(2)

		assert.Equal(t, 1, calls)
	})

	t.Run("a panicking getter leaves no subscriptions", func(t *testing.T) {
		a := newModel(1, 0)
		fail := false

		b := NewBinder(func(*Binder) any {
			v := a.x.Get()
			if fail {
				panic("getter failed")
			}
			return v
		}, Synchronous())
		require.Len(t, b.Dependencies(), 1)

		fail = true
		assert.Panics(t, func() { a.x.Set(2) })
		assert.Empty(t, b.Dependencies())
		assert.Nil(t, GetRuntime().Tracker().Active(), "collector is restored")

		fail = false
		a.x.Set(3)
		assert.Empty(t, b.Dependencies(), "nothing to resubscribe until the next compute")

		b.Compute()
		assert.Len(t, b.Dependencies(), 1)
	})

	t.Run("nested evaluations restore the outer collector", func(t *testing.T) {
		a := newModel(1, 2)

		var inner *Binder
		outer := NewBinder(func(*Binder) any {
			x := a.x.Get()
			inner = NewBinder(func(*Binder) any { return a.y.Get() })
			return x
		})

		require.Len(t, outer.Dependencies(), 1)
		assert.Equal(t, "x", outer.Dependencies()[0].Event)
		assert.Equal(t, "y", inner.Dependencies()[0].Event)
	})

	t.Run("custom invalidate hook", func(t *testing.T) {
		a := newModel(1, 0)
		hooked := 0

		var b *Binder
		b = NewBinder(func(*Binder) any { return a.x.Get() }, WithInvalidate(func() { hooked++ }))

		a.x.Set(2)
		assert.Equal(t, 1, hooked)
		assert.True(t, b.Dirty())
		assert.Equal(t, 2, b.Get())
		assert.False(t, b.Dirty())
	})

	t.Run("setter pass-through", func(t *testing.T) {
		a := newModel(1, 0)

		b := NewBinder(func(*Binder) any { return a.x.Get() }, WithSetter(func(v any) { a.x.Set(v) }), Synchronous())
		b.Set(5)

		assert.Equal(t, 5, b.Value())
	})

	t.Run("dependency dispose hooks run on detach", func(t *testing.T) {
		a := newModel(1, 0)
		released := 0

		b := NewBinder(func(*Binder) any {
			dep := GetRuntime().Tracker().Active().Push(a, "custom")
			dep.Dispose = func() { released++ }
			return a.x.Get()
		}, Synchronous())

		a.x.Set(2)
		assert.Equal(t, 1, released)

		b.Dispose()
		assert.Equal(t, 2, released)
	})
}

type recordingMutator struct {
	log []string
}

func (m *recordingMutator) Record(_ any, prop string, newValue, oldValue any) {
	m.log = append(m.log, prop)
}

func TestTracker(t *testing.T) {
	t.Run("untracked reads record nothing", func(t *testing.T) {
		a := newModel(1, 2)

		b := NewBinder(func(*Binder) any {
			var y any
			Untrack(func() { y = a.y.Get() })
			return a.x.Get().(int) + y.(int)
		})

		require.Len(t, b.Dependencies(), 1)
		assert.Equal(t, "x", b.Dependencies()[0].Event)
	})

	t.Run("mutators see every change", func(t *testing.T) {
		tracker := GetRuntime().Tracker()
		a := newModel(1, 2)
		m := &recordingMutator{}

		tracker.PushMutator(m)
		a.x.Set(2)
		a.y.Set(3)
		tracker.PopMutator(m)
		a.x.Set(4)

		assert.Equal(t, []string{"x", "y"}, m.log)
		assert.Nil(t, tracker.Mutator())
	})

	t.Run("popping the wrong mutator is ignored", func(t *testing.T) {
		tracker := GetRuntime().Tracker()
		m1, m2 := &recordingMutator{}, &recordingMutator{}

		tracker.PushMutator(m1)
		tracker.PopMutator(m2)

		assert.Same(t, m1, tracker.Mutator())
		tracker.PopMutator(m1)
	})
}
