package state

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Next continues the middleware chain. A nil action continues with the
// current action and payload, anything else substitutes them.
type Next func(action any, payload ...any) (any, error)

// Middleware wraps dispatches that reach the root store.
type Middleware func(s *Store, action any, payload []any, next Next) (any, error)

type storeConfig struct {
	class *Class

	middleware        []Middleware
	defaultMiddleware bool

	mutable *bool
	setups  []func(*Store)
	logger  *zerolog.Logger
}

type Option func(*storeConfig)

// WithMiddleware appends middleware to the store's chain. Only the root
// store's chain runs.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *storeConfig) { c.middleware = append(c.middleware, mw...) }
}

// WithoutDefaultMiddleware drops the thunk middleware installed by default.
func WithoutDefaultMiddleware() Option {
	return func(c *storeConfig) { c.defaultMiddleware = false }
}

// Mutable allows direct writes outside actions. They are turned into
// implicit actions. A store without the option inherits it from its parent.
func Mutable(mutable bool) Option {
	return func(c *storeConfig) { c.mutable = &mutable }
}

// WithSetup runs fn on the new store, after the class setup if any.
// Fields, actions and methods are declared here.
func WithSetup(fn func(*Store)) Option {
	return func(c *storeConfig) { c.setups = append(c.setups, fn) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *storeConfig) { c.logger = &logger }
}

func withClass(class *Class) Option {
	return func(c *storeConfig) { c.class = class }
}

// Store is a node of the state tree. Its fields can only change inside an
// action, and actions dispatched anywhere in the tree go through the root.
type Store struct {
	*internal.SignalDispatcher

	id    uuid.UUID
	class *Class

	parent *Store
	name   string
	depth  int

	// children in link order
	children map[string]*Store
	order    []string

	middleware []Middleware
	handlers   map[string]*actionHandler
	methods    map[string]Method

	fields     map[string]*field
	fieldOrder []string
	aliases    map[string]string

	mutable *bool

	logger zerolog.Logger
}

func New(opts ...Option) *Store {
	cfg := &storeConfig{defaultMiddleware: true}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Store{
		SignalDispatcher: internal.NewSignalDispatcher(),
		id:               uuid.New(),
		class:            cfg.class,
		children:         make(map[string]*Store),
		handlers:         make(map[string]*actionHandler),
		methods:          make(map[string]Method),
		fields:           make(map[string]*field),
		aliases:          make(map[string]string),
		mutable:          cfg.mutable,
		logger:           internal.GetRuntime().Logger(),
	}
	if cfg.logger != nil {
		s.logger = *cfg.logger
	}

	if cfg.defaultMiddleware {
		s.middleware = append(s.middleware, ThunkMiddleware)
	}
	s.middleware = append(s.middleware, cfg.middleware...)

	if cfg.class != nil {
		cfg.class.setupStore(s)
	}
	for _, setup := range cfg.setups {
		setup(s)
	}

	return s
}

// NewWithState creates a store and initializes it from json with an INIT action.
func NewWithState(json any, opts ...Option) (*Store, error) {
	s := New(opts...)
	if err := s.Init(json); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ID() uuid.UUID { return s.id }

// Name is the store's name under its parent, empty for a root.
func (s *Store) Name() string { return s.name }

func (s *Store) Class() *Class { return s.class }

func (s *Store) Logger() zerolog.Logger { return s.logger }

// GetParentStore returns the parent store, nil for a root. The read is tracked.
func (s *Store) GetParentStore() *Store {
	internal.RecordEvent(s, "parent")
	return s.parent
}

func (s *Store) Root() *Store {
	root := s
	for root.parent != nil {
		root = root.parent
	}

	return root
}

// Path is the slash separated route from the root to s.
func (s *Store) Path() string {
	var route []string
	for st := s; st.parent != nil; st = st.parent {
		route = append(route, st.name)
	}
	slices.Reverse(route)

	return strings.Join(route, routeSeparator)
}

func (s *Store) IsMutable() bool {
	if s.mutable != nil {
		return *s.mutable
	}
	if s.parent != nil {
		return s.parent.IsMutable()
	}

	return false
}

// Child returns the sub-store linked under name.
func (s *Store) Child(name string) *Store {
	return s.children[name]
}

// Children returns the sub-store names in link order.
func (s *Store) Children() []string {
	return slices.Clone(s.order)
}

// RegisterAction declares the handler of a named action. It panics with
// ErrActionSlash or ErrActionAt on a reserved character.
func (s *Store) RegisterAction(name string, fn Handler, opts ...ActionOption) {
	if err := validateActionName(name); err != nil {
		panic(err)
	}

	h := &actionHandler{name: name, fn: fn, propagate: true}
	for _, opt := range opts {
		opt(h)
	}

	s.handlers[name] = h
}

// RegisterMethod declares a method callable with Call or through an implicit action.
func (s *Store) RegisterMethod(name string, fn Method) {
	if err := validateActionName(name); err != nil {
		panic(err)
	}

	s.methods[name] = fn
}

// Link attaches child under name, detaching the previous occupant.
// A nil child only detaches.
func (s *Store) Link(name string, child *Store) error {
	return s.linkStore(name, child)
}

func (s *Store) linkStore(name string, value any) error {
	child, _ := value.(*Store)
	if child != nil && child.parent != nil && child.parent != s {
		return &ReparentError{Name: name}
	}

	if old, ok := s.children[name]; ok && old != child {
		s.detach(name, old)
	}

	if child == nil || s.children[name] == child {
		return nil
	}

	if child.parent == s {
		// moving within the same parent
		s.detach(child.name, child)
	}

	s.children[name] = child
	s.order = append(s.order, name)
	child.parent = s
	child.name = name
	child.setDepth(s.depth + 1)

	internal.TriggerNoArgs(child, "parent")

	return nil
}

func (s *Store) detach(name string, child *Store) {
	delete(s.children, name)
	if i := slices.Index(s.order, name); i != -1 {
		s.order = slices.Delete(s.order, i, i+1)
	}

	child.parent = nil
	child.name = ""
	child.setDepth(0)

	internal.TriggerNoArgs(child, "parent")
}

// Watchers of parents run before their children's.
func (s *Store) setDepth(depth int) {
	s.depth = depth
	s.SetPriority(-depth)

	for _, name := range s.order {
		s.children[name].setDepth(depth + 1)
	}
}

// Dispatch sends an action to the store. String actions climb to the root,
// run through its middleware and come back down to s, then propagate to
// sub-stores. Async actions are called directly.
func (s *Store) Dispatch(action any, payload ...any) (any, error) {
	if name, ok := action.(string); ok {
		if h := s.handlers[name]; h != nil && h.async {
			if internal.ActionActive() {
				return nil, ErrAsyncInSync
			}
			return internal.GetRuntime().UnblockAsync(func() (any, error) {
				return h.fn(s, payload...)
			})
		}
	}

	return s.dispatchUp(action, payload, s, "")
}

func (s *Store) dispatchUp(action any, payload []any, origin *Store, route string) (any, error) {
	if s.parent != nil {
		return s.parent.dispatchUp(action, payload, origin, s.name+routeSeparator+route)
	}

	if name, ok := action.(string); ok {
		return s.dispatchWithMiddleware(route+name, payload, s.middleware)
	}

	// non-string actions run on their origin, with the root's middleware
	return origin.dispatchWithMiddleware(action, payload, s.middleware)
}

func (s *Store) dispatchWithMiddleware(action any, payload []any, middleware []Middleware) (any, error) {
	if len(middleware) > 0 && !internal.ActionActive() {
		mw, rest := middleware[0], middleware[1:]

		next := func(newAction any, newPayload ...any) (any, error) {
			if newAction != nil {
				return s.dispatchWithMiddleware(newAction, newPayload, rest)
			}
			return s.dispatchWithMiddleware(action, payload, rest)
		}

		return mw(s, action, payload, next)
	}

	name, ok := action.(string)
	if !ok {
		if internal.ActionActive() && isThunk(action) {
			return nil, ErrAsyncInSync
		}
		return nil, ErrActionName
	}

	return s.runAction(name, payload)
}

func (s *Store) runAction(name string, payload []any) (result any, err error) {
	actions := internal.GetRuntime().Actions()

	depth := actions.Depth()
	actions.Start(name)
	defer func() {
		if endErr := actions.End(name); endErr != nil {
			// a handler left actions open, close them with ours
			actions.Unwind(depth)
			if err == nil {
				err = endErr
			}
		}
	}()

	return s.dispatchDown(name, payload)
}

func (s *Store) dispatchDown(action string, payload []any) (any, error) {
	route := strings.Split(action, routeSeparator)
	action = route[len(route)-1]

	target := s
	for _, segment := range route[:len(route)-1] {
		target = target.children[segment]
		if target == nil {
			return nil, nil
		}
	}

	return target.doDispatch(action, payload)
}

func (s *Store) doDispatch(action string, payload []any) (any, error) {
	switch {
	case action == InitAction:
		var json any
		if len(payload) > 0 {
			json = payload[0]
		}
		return nil, s.fromJSON(json)

	case strings.HasPrefix(action, ImplicitPrefix):
		return s.applyImplicit(strings.TrimPrefix(action, ImplicitPrefix), payload)
	}

	if h := s.handlers[action]; h != nil {
		if h.async {
			s.logger.Warn().
				Str("action", action).
				Str("store", s.id.String()).
				Msgf("Ignoring an asynchronous handler for action %q while propagating. Asynchronous actions can only be dispatched directly to the target store.", action)
		} else {
			result, err := h.fn(s, payload...)
			if err != nil {
				return result, err
			}
			if result != nil || !h.propagate {
				return result, nil
			}
		}
	}

	for _, name := range slices.Clone(s.order) {
		child := s.children[name]
		if child == nil {
			continue
		}

		if _, err := child.doDispatch(action, payload); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

func (s *Store) applyImplicit(path string, payload []any) (any, error) {
	props := strings.Split(path, pathSeparator)

	target := s
	for _, prop := range props[:len(props)-1] {
		next, ok := target.lookup(prop).(*Store)
		if !ok || next == nil {
			return nil, fmt.Errorf("implicit action %q: %q is not a store", path, prop)
		}
		target = next
	}

	prop := props[len(props)-1]

	if method, ok := strings.CutSuffix(prop, callSuffix); ok {
		args := make([]any, len(payload))
		for i, arg := range payload {
			v, err := ValueFromJSON(arg)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

		return target.Call(method, args...)
	}

	var raw any
	if len(payload) > 0 {
		raw = payload[0]
	}

	value, err := ValueFromJSON(raw)
	if err != nil {
		return nil, err
	}

	return nil, target.Set(prop, value)
}

// lookup reads a field or a linked child without tracking.
func (s *Store) lookup(name string) any {
	if f, ok := s.fields[name]; ok {
		return f.value
	}
	if child, ok := s.children[name]; ok {
		return child
	}

	return nil
}

// Call invokes a registered method. Outside an action a mutable store turns
// the call into an implicit action, anything else fails with ErrOutsideAction.
func (s *Store) Call(method string, args ...any) (any, error) {
	fn, ok := s.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	if internal.ActionActive() {
		return fn(s, args...)
	}

	return s.ensureAction(method+callSuffix, args...)
}

func (s *Store) ensureAction(path string, args ...any) (any, error) {
	if !s.IsMutable() {
		return nil, ErrOutsideAction
	}

	payload := make([]any, len(args))
	for i, arg := range args {
		payload[i] = ValueToJSON(arg)
	}

	return s.Dispatch(ImplicitPrefix+path, payload...)
}

// Init replaces the store's state from json with an INIT action.
func (s *Store) Init(json any) error {
	_, err := s.Dispatch(InitAction, json)
	return err
}

// Dispose disposes the store's watchers and its sub-stores.
func (s *Store) Dispose() {
	for _, name := range slices.Clone(s.order) {
		if child := s.children[name]; child != nil {
			child.Dispose()
		}
	}

	s.SignalDispatcher.Dispose()
}
