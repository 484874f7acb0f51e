package state

import (
	"strconv"
	"testing"

	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	t.Run("fields change only inside actions", func(t *testing.T) {
		s := newCounter()

		err := s.Set("count", 5.0)
		assert.ErrorIs(t, err, ErrOutsideAction)
		assert.EqualError(t, err, "Attempting to set state outside of an action")
		assert.Equal(t, 0.0, s.Get("count"))

		_, err = s.Dispatch("INCR")
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.Get("count"))
	})

	t.Run("mutable stores turn writes into implicit actions", func(t *testing.T) {
		seen := []string{}

		root := New(WithMiddleware(recordActions(&seen)))
		child1 := newCounter(Mutable(true))
		require.NoError(t, root.Link("child1", child1))

		require.NoError(t, child1.Set("count", 5.0))

		assert.Equal(t, []string{"child1/@count"}, seen)
		assert.Equal(t, 5.0, child1.Get("count"))
	})

	t.Run("implicit actions reach nested fields", func(t *testing.T) {
		root, child := New(), newCounter()
		require.NoError(t, root.Link("child", child))

		_, err := root.Dispatch("@child.count", 7.0)
		require.NoError(t, err)
		assert.Equal(t, 7.0, child.Get("count"))

		_, err = root.Dispatch("@missing.count", 7.0)
		assert.Error(t, err)
	})

	t.Run("unknown fields fail", func(t *testing.T) {
		err := newCounter(Mutable(true)).Set("nope", 1)
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("writing the same value does not notify", func(t *testing.T) {
		rt := internal.GetRuntime()
		s := newCounter(Mutable(true))

		values := []any{}
		s.Watch(func() any { return s.Get("count") }, func(v any) { values = append(values, v) })

		require.NoError(t, s.Set("count", 0.0))
		rt.Flush()
		require.NoError(t, s.Set("count", 2.0))
		rt.Flush()

		assert.Equal(t, []any{0.0, 2.0}, values)
	})

	t.Run("parents watchers run before their children's", func(t *testing.T) {
		rt := internal.GetRuntime()
		root := newCounter(Mutable(true))
		child := newCounter()
		require.NoError(t, root.Link("child", child))

		log := []string{}
		child.Watch(func() any { return child.Get("count") }, func(any) { log = append(log, "child") }, internal.IgnoreFirstRun())
		root.Watch(func() any { return root.Get("count") }, func(any) { log = append(log, "root") }, internal.IgnoreFirstRun())

		rt.Batch(func() {
			require.NoError(t, child.Set("count", 1.0))
			require.NoError(t, root.Set("count", 1.0))
		})

		assert.Equal(t, []string{"root", "child"}, log)
	})

	t.Run("methods", func(t *testing.T) {
		seen := []string{}
		s := newCounter(WithMiddleware(recordActions(&seen)))
		s.RegisterMethod("add", func(s *Store, args ...any) (any, error) {
			sum := s.Get("count").(float64) + args[0].(float64)
			return sum, s.Set("count", sum)
		})

		_, err := s.Call("add", 2.0)
		assert.ErrorIs(t, err, ErrOutsideAction)

		_, err = s.Call("nope")
		assert.ErrorIs(t, err, ErrUnknownMethod)

		s.RegisterAction("ADD", func(s *Store, payload ...any) (any, error) {
			return s.Call("add", payload...)
		})
		result, err := s.Dispatch("ADD", 3.0)
		require.NoError(t, err)
		assert.Equal(t, 3.0, result)

		mutable := newCounter(Mutable(true), WithMiddleware(recordActions(&seen)))
		mutable.RegisterMethod("add", func(s *Store, args ...any) (any, error) {
			return nil, s.Set("count", s.Get("count").(float64)+args[0].(float64))
		})
		_, err = mutable.Call("add", 4.0)
		require.NoError(t, err)

		assert.Equal(t, 4.0, mutable.Get("count"))
		assert.Equal(t, []string{"ADD", "@add()"}, seen)
	})

	t.Run("reserved characters in field names panic", func(t *testing.T) {
		assert.Panics(t, func() { New().DefineState("a.b", ByVal, nil) })
		assert.Panics(t, func() { New().DefineState("@a", ByVal, nil) })
	})
}

func TestJSON(t *testing.T) {
	setupProfile := func(s *Store) {
		s.DefineState("name", BySimple, "anonymous")
		s.DefineState("age", ByNumber, 0)
		s.DefineState("admin", ByBool, false)
		s.DefineState("tags", ByVal, []any{})
	}

	t.Run("initial state", func(t *testing.T) {
		s, err := NewWithState(map[string]any{"name": "ada", "age": 36}, WithSetup(setupProfile))
		require.NoError(t, err)

		assert.Equal(t, "ada", s.Get("name"))
		assert.Equal(t, 36.0, s.Get("age"))
		assert.Equal(t, false, s.Get("admin"))
		assert.Equal(t, []string{"name", "age", "admin", "tags"}, s.Fields())
	})

	t.Run("INIT goes through the middleware", func(t *testing.T) {
		seen := []string{}
		s := New(WithSetup(setupProfile), WithMiddleware(recordActions(&seen)))

		require.NoError(t, s.FromJSON(map[string]any{"admin": "true"}))

		assert.Equal(t, []string{InitAction}, seen)
		assert.Equal(t, true, s.Get("admin"))
	})

	t.Run("missing keys reset fields to their default", func(t *testing.T) {
		s, err := NewWithState(map[string]any{"name": "ada"}, WithSetup(setupProfile))
		require.NoError(t, err)

		require.NoError(t, s.Init(nil))
		assert.Equal(t, "anonymous", s.Get("name"))
	})

	t.Run("export skips defaults", func(t *testing.T) {
		s, err := NewWithState(map[string]any{"name": "ada", "tags": []any{"x"}}, WithSetup(setupProfile))
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"name": "ada", "tags": []any{"x"}}, s.ToJSON(false))
		assert.Equal(t, map[string]any{
			"name":  "ada",
			"age":   0.0,
			"admin": false,
			"tags":  []any{"x"},
		}, s.ToJSON(true))
	})

	t.Run("aliases", func(t *testing.T) {
		s := New(WithSetup(func(s *Store) {
			s.DefineState("count", ByNumber, 0)
			s.Alias("count", "c")
		}))

		require.NoError(t, s.Init(map[string]any{"c": 3}))
		assert.Equal(t, 3.0, s.Get("count"))
		assert.Equal(t, map[string]any{"c": 3.0}, s.ToJSON(false))
	})

	t.Run("invalid values fail", func(t *testing.T) {
		s := New(WithSetup(setupProfile))

		err := s.Init(map[string]any{"age": "old"})
		var numErr *strconv.NumError
		assert.ErrorAs(t, err, &numErr)
		assert.False(t, internal.ActionActive())

		assert.Panics(t, func() { New().DefineState("age", ByNumber, "old") })
	})

	t.Run("export is tracked", func(t *testing.T) {
		rt := internal.GetRuntime()
		s := New(WithSetup(setupProfile), Mutable(true))

		exports := 0
		s.Watch(func() any { return s.ToJSON(false) }, func(any) { exports++ })

		require.NoError(t, s.Set("name", "ada"))
		rt.Flush()

		assert.Equal(t, 2, exports)
	})
}

func TestCodecs(t *testing.T) {
	t.Run("numbers", func(t *testing.T) {
		for _, tc := range []struct {
			in   any
			want float64
		}{
			{nil, 0},
			{3, 3},
			{" 12.5 ", 12.5},
			{"", 0},
			{true, 1},
		} {
			got, err := ByNumber.FromJSON(nil, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "%#v", tc.in)
		}

		_, err := ByNumber.FromJSON(nil, []any{})
		assert.Error(t, err)
	})

	t.Run("booleans", func(t *testing.T) {
		for _, tc := range []struct {
			in   any
			want bool
		}{
			{nil, false},
			{"false", false},
			{"", false},
			{"no", true},
			{0.0, false},
			{1, true},
			{map[string]any{}, true},
		} {
			got, err := ByBool.FromJSON(nil, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "%#v", tc.in)
		}
	})

	t.Run("by value copies", func(t *testing.T) {
		in := map[string]any{"a": 1}

		got, err := ByVal.FromJSON(nil, in)
		require.NoError(t, err)
		in["a"] = 2

		assert.Equal(t, map[string]any{"a": 1}, got)
	})

	t.Run("custom", func(t *testing.T) {
		codec := ByCustom(
			func(_ *Store, json any) (any, error) { return strconv.Atoi(json.(string)) },
			func(_ *Store, value any) any { return strconv.Itoa(value.(int)) },
			"7",
		)

		s := New(WithSetup(func(s *Store) { s.DefineState("n", codec, nil) }))
		assert.Equal(t, 7, s.Get("n"))

		require.NoError(t, s.Init(map[string]any{"n": "12"}))
		assert.Equal(t, 12, s.Get("n"))
		assert.Equal(t, map[string]any{"n": "12"}, s.ToJSON(false))
	})
}
