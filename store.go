package sigtree

import (
	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/AnatoleLucet/sigtree/internal/state"
)

type (
	Store        = state.Store
	StoreOption  = state.Option
	Class        = state.Class
	Codec        = state.Codec
	Middleware   = state.Middleware
	Next         = state.Next
	Action       = state.Handler
	Method       = state.Method
	Thunk        = state.Thunk
	ActionOption = state.ActionOption

	ReparentError         = state.ReparentError
	UnbalancedActionError = state.UnbalancedActionError
	AsyncBlockedError     = state.AsyncBlockedError
)

var (
	NewStore          = state.New
	NewStoreWithState = state.NewWithState
	RegisterClass     = state.RegisterClass
	LookupClass       = state.LookupClass

	WithMiddleware           = state.WithMiddleware
	WithoutDefaultMiddleware = state.WithoutDefaultMiddleware
	Mutable                  = state.Mutable
	WithSetup                = state.WithSetup
	WithStoreLogger          = state.WithLogger

	Async       = state.Async
	NoPropagate = state.NoPropagate

	ByVal         = state.ByVal
	BySimple      = state.BySimple
	ByNumber      = state.ByNumber
	ByBool        = state.ByBool
	ByCustom      = state.ByCustom
	ByRef         = state.ByRef
	ByOptionalRef = state.ByOptionalRef

	ThunkMiddleware     = state.ThunkMiddleware
	ProtectorMiddleware = state.ProtectorMiddleware
	LoggingMiddleware   = state.LoggingMiddleware
	TracingMiddleware   = state.TracingMiddleware
	WithTracerName      = state.WithTracerName

	ValueToJSON   = state.ValueToJSON
	ValueFromJSON = state.ValueFromJSON

	ErrActionName    = state.ErrActionName
	ErrAsyncInSync   = state.ErrAsyncInSync
	ErrOutsideAction = state.ErrOutsideAction
)

// ActionActive reports whether the calling goroutine is inside an action.
func ActionActive() bool {
	return internal.ActionActive()
}

// StateField is a typed handle on a store field. The field's codec must
// produce T: ByNumber produces float64, ByBool bool, ByRef *Store.
type StateField[T any] struct {
	store *Store
	name  string
}

// DefineState declares the field name on s and returns a typed handle on it.
func DefineState[T any](s *Store, name string, codec Codec, def any) *StateField[T] {
	s.DefineState(name, codec, def)

	return &StateField[T]{store: s, name: name}
}

// Field returns a typed handle on a field declared earlier.
func Field[T any](s *Store, name string) *StateField[T] {
	return &StateField[T]{store: s, name: name}
}

func (f *StateField[T]) Name() string { return f.name }

// Get the field, tracking the dependency if read inside a watcher.
func (f *StateField[T]) Get() T {
	return as[T](f.store.Get(f.name))
}

// Set the field. Outside an action this only succeeds on mutable stores.
func (f *StateField[T]) Set(v T) error {
	return f.store.Set(f.name, v)
}
