package internal

import "fmt"

// UnbalancedActionError is returned when an action ends while another one is on top of the stack.
type UnbalancedActionError struct {
	Expected string
	Got      string
}

func (e *UnbalancedActionError) Error() string {
	return fmt.Sprintf("ActionDispatcher: Expected to end %s, but instead ended a different action of type %s", e.Expected, e.Got)
}

// AsyncBlockedError is the panic value raised by async scheduling attempted
// while a synchronous action is protected.
type AsyncBlockedError struct {
	Name string
}

func (e *AsyncBlockedError) Error() string {
	return fmt.Sprintf("Calling %s from a synchronous action is not allowed. Please use an asynchronous action for this: state.Async()", e.Name)
}

// ActionStack records the actions being dispatched, innermost last.
type ActionStack struct {
	actions []string
}

func NewActionStack() *ActionStack {
	return &ActionStack{}
}

func (s *ActionStack) Active() bool { return len(s.actions) > 0 }

func (s *ActionStack) Depth() int { return len(s.actions) }

// Top returns the innermost action, or "" when idle.
func (s *ActionStack) Top() string {
	if len(s.actions) == 0 {
		return ""
	}

	return s.actions[len(s.actions)-1]
}

func (s *ActionStack) Start(action string) {
	s.actions = append(s.actions, action)
}

func (s *ActionStack) End(action string) error {
	top := s.Top()
	if len(s.actions) == 0 || top != action {
		return &UnbalancedActionError{Expected: top, Got: action}
	}

	s.actions = s.actions[:len(s.actions)-1]
	return nil
}

// Unwind drops every action started after the stack was depth deep.
func (s *ActionStack) Unwind(depth int) {
	if depth < 0 || depth >= len(s.actions) {
		return
	}

	clear(s.actions[depth:])
	s.actions = s.actions[:depth]
}

func StartAction(action string) {
	GetRuntime().actions.Start(action)
}

func EndAction(action string) error {
	return GetRuntime().actions.End(action)
}

func ActionActive() bool {
	return GetRuntime().actions.Active()
}

// BlockAsync runs fn with async scheduling forbidden on this goroutine.
func (r *Runtime) BlockAsync(fn func() (any, error)) (any, error) {
	r.asyncBlocked++
	defer func() { r.asyncBlocked-- }()

	return fn()
}

// UnblockAsync lifts BlockAsync for the duration of fn, for async actions
// dispatched from a protected one.
func (r *Runtime) UnblockAsync(fn func() (any, error)) (any, error) {
	prev := r.asyncBlocked
	r.asyncBlocked = 0
	defer func() { r.asyncBlocked = prev }()

	return fn()
}

// CheckAsync panics with an *AsyncBlockedError when async scheduling is blocked.
func (r *Runtime) CheckAsync(name string) {
	if r.asyncBlocked > 0 {
		panic(&AsyncBlockedError{Name: name})
	}
}
