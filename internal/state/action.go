package state

import "strings"

const (
	// ImplicitPrefix starts the name of actions generated from direct writes.
	// "@count" sets count, "@child.count" sets count on the child field,
	// "@items.push()" calls the registered method push on the items field.
	ImplicitPrefix = "@"

	InitAction = ImplicitPrefix + "@INIT"

	routeSeparator = "/"
	pathSeparator  = "."
	callSuffix     = "()"
)

// Handler handles a named action on a store. Returning a non-nil value
// stops propagation to sub-stores and becomes the dispatch result.
type Handler func(s *Store, payload ...any) (any, error)

// Method is a store method callable through Call and implicit actions.
type Method func(s *Store, args ...any) (any, error)

// Thunk is an action value: dispatching it calls it with the dispatching
// store, once it went through the root middleware.
type Thunk func(s *Store, payload ...any) (any, error)

type actionHandler struct {
	name      string
	fn        Handler
	async     bool
	propagate bool
}

type ActionOption func(*actionHandler)

// Async marks an action that is called directly on its store instead of
// being routed through the tree. Async actions may schedule work.
func Async() ActionOption {
	return func(h *actionHandler) { h.async = true }
}

// NoPropagate stops the action at its handler even when it returns nil.
func NoPropagate() ActionOption {
	return func(h *actionHandler) { h.propagate = false }
}

func validateActionName(name string) error {
	if strings.Contains(name, routeSeparator) {
		return ErrActionSlash
	}
	if strings.Contains(name, ImplicitPrefix) {
		return ErrActionAt
	}

	return nil
}

// ActionName renders an action value for logs and spans.
func ActionName(action any) string {
	switch a := action.(type) {
	case string:
		return a
	case Thunk, func(*Store, ...any) (any, error):
		return "<thunk>"
	case nil:
		return "<nil>"
	}

	return "<invalid>"
}

func isThunk(action any) bool {
	switch action.(type) {
	case Thunk, func(*Store, ...any) (any, error):
		return true
	}

	return false
}
