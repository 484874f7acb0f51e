package internal

import (
	"reflect"
	"slices"
	"sync"
)

// Filter post-processes a binder's raw value. Returning ok=true replaces the
// value and stops the chain; filters may push extra dependencies on c.
type Filter func(c *Collector, value any) (result any, ok bool)

// FilterHandle identifies a registered filter for RemoveFilter.
type FilterHandle struct {
	fn Filter
}

var filters struct {
	sync.RWMutex
	list []*FilterHandle
}

func init() {
	filters.list = []*FilterHandle{{fn: PromiseFilter}}
}

// AddFilter appends fn to the chain consulted by every binder.
func AddFilter(fn Filter) *FilterHandle {
	e := &FilterHandle{fn: fn}

	filters.Lock()
	filters.list = append(filters.list, e)
	filters.Unlock()

	return e
}

func RemoveFilter(h *FilterHandle) {
	filters.Lock()
	defer filters.Unlock()

	if i := slices.Index(filters.list, h); i != -1 {
		filters.list = slices.Delete(filters.list, i, i+1)
	}
}

// RunFilters consults the chain in registration order; the first filter that
// claims the value wins.
func RunFilters(c *Collector, value any) any {
	filters.RLock()
	list := slices.Clone(filters.list)
	filters.RUnlock()

	for _, e := range list {
		if result, ok := e.fn(c, value); ok {
			return result
		}
	}

	return value
}

// isEqual reports whether two binder results are the same value.
// Comparable values use ==, except that NaN equals NaN; slices and maps
// compare by reference and funcs never compare equal.
func isEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	if ta.Comparable() {
		defer func() {
			// structs holding non-comparable values behind interfaces
			if recover() != nil {
				equal = false
			}
		}()

		if a == b {
			return true
		}

		switch x := a.(type) {
		case float64:
			y := b.(float64)
			return x != x && y != y
		case float32:
			y := b.(float32)
			return x != x && y != y
		}

		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	}

	return false
}

// Equal is the change test used by binders and observables.
func Equal(a, b any) bool {
	return isEqual(a, b)
}
