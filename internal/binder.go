package internal

// Parent is the owning scope of a binder. A binder whose parent is disposed stops evaluating.
type Parent interface {
	IsDisposed() bool
}

type binderConfig struct {
	callback func(any)
	setter   func(any)

	ignoreFirstRun bool

	queue      *TaskQueue
	sync       bool
	invalidate func()
	priority   int
	late       bool

	parent Parent
	track  string
}

type BinderOption func(*binderConfig)

// WithCallback is called with the new value every time Compute detects a change.
func WithCallback(fn func(any)) BinderOption {
	return func(c *binderConfig) { c.callback = fn }
}

// WithSetter gives the binder a write path, used by Binder.Set.
func WithSetter(fn func(any)) BinderOption {
	return func(c *binderConfig) { c.setter = fn }
}

// IgnoreFirstRun evaluates once to collect dependencies without calling back.
func IgnoreFirstRun() BinderOption {
	return func(c *binderConfig) { c.ignoreFirstRun = true }
}

// WithQueue schedules recomputation on q instead of the runtime's default queue.
func WithQueue(q *TaskQueue) BinderOption {
	return func(c *binderConfig) { c.queue = q }
}

func WithPriority(priority int) BinderOption {
	return func(c *binderConfig) { c.priority = priority }
}

// Late defers the binder's recomputation to the late pass of a drain.
func Late() BinderOption {
	return func(c *binderConfig) { c.late = true }
}

// WithInvalidate replaces scheduling with a custom hook, called after the binder is marked dirty.
func WithInvalidate(fn func()) BinderOption {
	return func(c *binderConfig) { c.invalidate = fn }
}

// Synchronous recomputes as soon as a dependency fires.
func Synchronous() BinderOption {
	return func(c *binderConfig) { c.sync = true }
}

func WithParent(p Parent) BinderOption {
	return func(c *binderConfig) { c.parent = p }
}

// WithTrack logs every recorded dependency and invalidation under name.
func WithTrack(name string) BinderOption {
	return func(c *binderConfig) { c.track = name }
}

// Binder is a computation node. It records the signals read by its getter,
// caches the result and recomputes when one of them fires.
type Binder struct {
	getter   func(*Binder) any
	setter   func(any)
	callback func(any)

	// previous is meaningless until evaluated is set
	previous  any
	evaluated bool

	deps     []*Dependency
	dirty    bool
	disposed bool

	// subscribed to every dependency, its identity is the subscription
	handler *Handler
	hook    func()
	queue   *TaskQueue

	priority int
	parent   Parent
	track    string

	// overridden by CollectionBinder
	updater func(value any, invokeCallback bool) bool
}

// NewBinder creates a binder and evaluates it once.
func NewBinder(getter func(*Binder) any, opts ...BinderOption) *Binder {
	cfg := &binderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	b := newBinder(getter, cfg)
	b.start(cfg.ignoreFirstRun)

	return b
}

func newBinder(getter func(*Binder) any, cfg *binderConfig) *Binder {
	if getter == nil {
		getter = func(*Binder) any { return nil }
	}

	b := &Binder{
		getter:   getter,
		setter:   cfg.setter,
		callback: cfg.callback,
		priority: cfg.priority,
		parent:   cfg.parent,
		track:    cfg.track,
	}
	b.updater = b.update
	b.handler = NewHandler(func(...any) { b.Invalidate() })

	switch {
	case cfg.invalidate != nil:
		b.hook = cfg.invalidate
	case cfg.sync:
		b.hook = nil
	default:
		q := cfg.queue
		if q == nil {
			q = GetRuntime().Queue()
		}
		b.queue = q
		late := cfg.late
		b.hook = func() { q.Push(b, b.priority, late) }
	}

	return b
}

func (b *Binder) start(ignoreFirstRun bool) {
	b.dirty = ignoreFirstRun

	if ignoreFirstRun {
		b.Get()
	} else {
		b.Compute()
	}
}

func (b *Binder) Dirty() bool { return b.dirty }

func (b *Binder) IsDisposed() bool { return b.disposed }

func (b *Binder) Priority() int { return b.priority }

// Value returns the cached result of the last evaluation without recomputing.
func (b *Binder) Value() any { return b.previous }

// Dependencies returns the pairs recorded by the last evaluation.
func (b *Binder) Dependencies() []*Dependency { return b.deps }

// Invalidate marks the binder dirty and schedules it, or recomputes right away
// when the binder has no scheduling hook. It is a no-op while the binder's own
// getter is running.
func (b *Binder) Invalidate() {
	rt := GetRuntime()
	if c := rt.tracker.active; c != nil && c.binder == b {
		return
	}

	if b.track != "" {
		rt.logger.Debug().Str("binder", b.track).Msg("change detected")
	}

	if b.hook != nil {
		b.dirty = true
		b.hook()
		return
	}

	b.Compute()
}

// Run implements Task.
func (b *Binder) Run() {
	b.Apply()
}

// Apply recomputes the binder if it is dirty and still alive.
func (b *Binder) Apply() bool {
	if b.disposed || !b.dirty {
		return false
	}

	return b.Compute()
}

// Compute re-evaluates the getter and calls back when the value changed.
func (b *Binder) Compute() bool {
	value, ok := b.computeInner()
	if !ok {
		return false
	}

	return b.Update(value, true)
}

// Get returns the current value, re-evaluating first if the binder is dirty
// or never ran. It never calls back.
func (b *Binder) Get() any {
	if !b.dirty && b.evaluated {
		return b.previous
	}

	value, ok := b.computeInner()
	if !ok {
		return nil
	}
	b.Update(value, false)

	return value
}

// Set forwards v to the setter, if the binder was given one.
func (b *Binder) Set(v any) {
	if b.setter != nil {
		b.setter(v)
	}
}

// Update stores value and reports whether it differs from the previous one.
// The first value is always a change.
func (b *Binder) Update(value any, invokeCallback bool) bool {
	return b.updater(value, invokeCallback)
}

func (b *Binder) update(value any, invokeCallback bool) bool {
	if b.evaluated && isEqual(b.previous, value) {
		return false
	}

	b.previous = value
	b.evaluated = true

	if invokeCallback && b.callback != nil {
		b.callback(value)
	}

	return true
}

func (b *Binder) computeInner() (any, bool) {
	b.dirty = false
	b.removeBindings()

	if b.disposed {
		return nil, false
	}
	if b.parent != nil && b.parent.IsDisposed() {
		// our parent cannot receive anything we produce anymore
		return nil, false
	}

	rt := GetRuntime()

	c := NewCollector(b)
	c.track = b.track

	value := rt.tracker.Run(c, func() any { return b.getter(b) })
	value = RunFilters(c, value)

	if len(c.deps) == 0 {
		return value, true
	}

	for _, dep := range c.deps {
		dep.ref = On(dep.Obj, dep.Event, b.handler)
	}
	b.deps = c.deps

	return value, true
}

func (b *Binder) removeBindings() {
	deps := b.deps
	b.deps = nil

	for _, dep := range deps {
		if dep.ref != nil {
			dep.ref.Remove(b.handler)
		}

		if dep.Dispose != nil {
			dep.Dispose()
		}
	}
}

// Dispose detaches every dependency. A disposed binder never recomputes, and
// a pending scheduled run becomes a no-op.
func (b *Binder) Dispose() {
	if b.disposed {
		return
	}

	b.removeBindings()
	b.disposed = true

	if b.queue != nil {
		b.queue.Remove(b)
	}
}
