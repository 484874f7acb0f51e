package sigtree

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	t.Run("recomputes on flush", func(t *testing.T) {
		log := []string{}

		count := NewObservable(1)
		w := Watch(func() int { return count.Get() * 2 }, func(v int) {
			log = append(log, fmt.Sprintf("double %d", v))
		})

		count.Set(2)
		log = append(log, "set")
		assert.True(t, w.Dirty())

		Flush()

		assert.Equal(t, []string{"double 2", "set", "double 4"}, log)
		assert.Equal(t, 4, w.Value())
	})

	t.Run("synchronous watchers recompute immediately", func(t *testing.T) {
		log := []string{}

		name := NewObservable("ada")
		Watch(func() string { return name.Get() }, func(v string) {
			log = append(log, v)
		}, Synchronous())

		name.Set("grace")
		log = append(log, "set")

		assert.Equal(t, []string{"ada", "grace", "set"}, log)
	})

	t.Run("ignore first run", func(t *testing.T) {
		calls := 0

		count := NewObservable(0)
		w := Watch(func() int { return count.Get() }, func(int) { calls++ }, IgnoreFirstRun())

		assert.Equal(t, 0, calls)
		assert.Equal(t, 0, w.Get())

		count.Set(1)
		Flush()
		assert.Equal(t, 1, calls)
	})

	t.Run("priority orders recomputations", func(t *testing.T) {
		log := []string{}

		count := NewObservable(0)
		Watch(func() int { return count.Get() }, func(int) { log = append(log, "low") }, IgnoreFirstRun(), WithPriority(-1))
		Watch(func() int { return count.Get() }, func(int) { log = append(log, "high") }, IgnoreFirstRun(), WithPriority(1))
		Watch(func() int { return count.Get() }, func(int) { log = append(log, "late") }, IgnoreFirstRun(), WithPriority(5), Late())

		count.Set(1)
		Flush()

		assert.Equal(t, []string{"high", "low", "late"}, log)
	})

	t.Run("dispose", func(t *testing.T) {
		calls := 0

		count := NewObservable(0)
		w := Watch(func() int { return count.Get() }, func(int) { calls++ })

		count.Set(1)
		w.Dispose()
		Flush()

		assert.Equal(t, 1, calls)
	})

	t.Run("panicking watchers are logged and skipped", func(t *testing.T) {
		var buf bytes.Buffer
		SetLogger(zerolog.New(&buf))

		count := NewObservable(0)
		Watch(func() int {
			if count.Get() > 0 {
				panic("boom")
			}
			return 0
		}, nil)

		other := 0
		Watch(func() int { return count.Get() }, func(v int) { other = v }, WithPriority(-1))

		count.Set(1)
		assert.NotPanics(t, Flush)

		assert.Equal(t, 1, other)
		assert.Contains(t, buf.String(), "boom")
	})
}

func TestComputed(t *testing.T) {
	t.Run("is lazy and memoized", func(t *testing.T) {
		runs := 0

		count := NewObservable(2)
		square := NewComputed(func() int {
			runs++
			return count.Get() * count.Get()
		})

		assert.Equal(t, 1, runs)
		assert.Equal(t, 4, square.Get())
		assert.Equal(t, 4, square.Get())
		assert.Equal(t, 1, runs)

		count.Set(3)
		assert.Equal(t, 1, runs)
		assert.Equal(t, 9, square.Get())
		assert.Equal(t, 2, runs)
	})

	t.Run("propagates to watchers", func(t *testing.T) {
		log := []int{}

		count := NewObservable(1)
		double := NewComputed(func() int { return count.Get() * 2 })
		Watch(func() int { return double.Get() + 1 }, func(v int) { log = append(log, v) })

		count.Set(5)
		Flush()

		assert.Equal(t, []int{3, 11}, log)
	})
}

func TestBatch(t *testing.T) {
	log := []string{}

	a := NewObservable(1)
	b := NewObservable(2)
	Watch(func() int { return a.Get() + b.Get() }, func(v int) {
		log = append(log, fmt.Sprintf("sum %d", v))
	})

	Batch(func() {
		a.Set(10)
		b.Set(20)
		log = append(log, "updated")
	})

	assert.Equal(t, []string{"sum 3", "updated", "sum 30"}, log)
}

func TestUntrack(t *testing.T) {
	calls := 0

	tracked := NewObservable(1)
	untracked := NewObservable(1)
	Watch(func() int {
		return tracked.Get() + Untrack(untracked.Get)
	}, func(int) { calls++ })

	untracked.Set(2)
	Flush()
	assert.Equal(t, 1, calls)

	tracked.Set(2)
	Flush()
	assert.Equal(t, 2, calls)
}

func TestSignals(t *testing.T) {
	type button struct{ label string }
	b := &button{label: "ok"}

	clicks := []any{}
	h := On(b, "click", func(args ...any) { clicks = append(clicks, args...) })

	Trigger(b, "click", 1)
	Off(b, "click", h)
	Trigger(b, "click", 2)
	Trigger(b, "unknown")

	assert.Equal(t, []any{1}, clicks)
}

func TestPromises(t *testing.T) {
	p := NewPromise()

	values := []any{}
	Watch(func() any { return p }, func(v any) { values = append(values, v) })

	require.True(t, p.Resolve("done"))
	Flush()

	assert.Equal(t, []any{nil, "done"}, values)

	v, err := Resolved("done").Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestObservableSignals(t *testing.T) {
	t.Run("watchers subscribe on the observable itself", func(t *testing.T) {
		count := NewObservable(0)
		w := Watch(count.Get, nil, Synchronous())

		assert.Equal(t, []string{"value"}, count.Signals().Names())

		w.Dispose()
		count.Set(1)
		assert.Equal(t, 0, w.Value())
	})

	t.Run("computed values notify through their own table", func(t *testing.T) {
		base := NewObservable(2)
		square := NewComputed(func() int { return base.Get() * base.Get() })

		seen := []int{}
		Watch(square.Get, func(v int) { seen = append(seen, v) }, Synchronous())
		base.Set(3)

		assert.Equal(t, []int{4, 9}, seen)
		assert.Equal(t, []string{"value"}, square.Signals().Names())
	})
}

func TestQueues(t *testing.T) {
	t.Run("nested queues drain as one task of their parent", func(t *testing.T) {
		log := []string{}
		nested := NewNestedQueue(DefaultQueue(), "nested", 10)

		DefaultQueue().Push(TaskFunc(func() { log = append(log, "parent") }), 0, false)
		nested.Push(TaskFunc(func() { log = append(log, "first") }), 0, false)
		nested.Push(TaskFunc(func() { log = append(log, "second") }), 0, false)

		Flush()

		assert.Equal(t, []string{"second", "first", "parent"}, log)
	})

	t.Run("released goroutines get a fresh runtime", func(t *testing.T) {
		same := make(chan bool)

		go func() {
			before := DefaultQueue()
			ReleaseRuntime()
			after := DefaultQueue()
			ReleaseRuntime()

			same <- before == after
		}()

		assert.False(t, <-same)
	})
}
