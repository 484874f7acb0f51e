package internal

// Dependency is one (object, event) pair read during an evaluation.
type Dependency struct {
	Obj   any
	Event string

	// released together with the subscription, for reads that had to set something up
	Dispose func()

	ref *Signal
}

// Collector accumulates the dependencies of a single evaluation.
type Collector struct {
	binder *Binder
	deps   []*Dependency

	// name used for diagnostics, empty unless tracing was requested
	track string
}

func NewCollector(b *Binder) *Collector {
	return &Collector{binder: b}
}

func (c *Collector) Push(obj any, event string) *Dependency {
	dep := &Dependency{Obj: obj, Event: event}
	c.deps = append(c.deps, dep)

	return dep
}

func (c *Collector) Len() int { return len(c.deps) }

func (c *Collector) Dependencies() []*Dependency { return c.deps }

// Mutator observes every recorded change, in addition to the plain signal fire.
type Mutator interface {
	Record(obj any, prop string, newValue, oldValue any)
}

type Tracker struct {
	tracking bool

	active   *Collector
	mutators []Mutator
}

func NewTracker() *Tracker {
	return &Tracker{
		tracking: true,
	}
}

// Active returns the collector of the evaluation in progress, if any.
func (t *Tracker) Active() *Collector {
	if !t.tracking {
		return nil
	}

	return t.active
}

// Run evaluates fn with c as the sole active collector.
// The previous collector is restored on every exit path.
func (t *Tracker) Run(c *Collector, fn func() any) any {
	prev := t.active
	prevTracking := t.tracking
	t.active = c
	t.tracking = true
	defer func() {
		t.active = prev
		t.tracking = prevTracking
	}()

	return fn()
}

// RunUntracked evaluates fn without recording any read into the active collector.
func (t *Tracker) RunUntracked(fn func()) {
	prev := t.tracking
	t.tracking = false
	defer func() { t.tracking = prev }()

	fn()
}

// RecordEvent registers a read of obj's event on the active collector.
func (t *Tracker) RecordEvent(obj any, event string) {
	c := t.Active()
	if c == nil {
		return
	}

	if c.track != "" {
		GetRuntime().logger.Debug().
			Str("binder", c.track).
			Type("object", obj).
			Str("event", event).
			Msg("recording")
	}

	c.Push(obj, event)
}

// RecordChange fires obj's prop signal and forwards the change to the current mutator.
func (t *Tracker) RecordChange(obj any, prop string, newValue, oldValue any) {
	Trigger(obj, prop)

	if m := t.Mutator(); m != nil {
		m.Record(obj, prop, newValue, oldValue)
	}
}

func (t *Tracker) Mutator() Mutator {
	if len(t.mutators) == 0 {
		return nil
	}

	return t.mutators[len(t.mutators)-1]
}

func (t *Tracker) PushMutator(m Mutator) {
	t.mutators = append(t.mutators, m)
}

// PopMutator removes m from the top of the stack. Popping anything else is logged and ignored.
func (t *Tracker) PopMutator(m Mutator) {
	if t.Mutator() != m || m == nil {
		GetRuntime().logger.Error().Msg("trying to pop a mutator that is not in the top of the stack")
		return
	}

	t.mutators = t.mutators[:len(t.mutators)-1]
}

// RecordEvent records a read on the calling goroutine's tracker.
func RecordEvent(obj any, event string) {
	GetRuntime().tracker.RecordEvent(obj, event)
}

// RecordChange records a write on the calling goroutine's tracker.
func RecordChange(obj any, prop string, newValue, oldValue any) {
	GetRuntime().tracker.RecordChange(obj, prop, newValue, oldValue)
}

func Untrack(fn func()) {
	GetRuntime().tracker.RunUntracked(fn)
}
