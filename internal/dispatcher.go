package internal

// SignalDispatcher is the reactive base of an object: it owns its signal
// table, the binders it watches with, and the observables it defines.
// Embed it by pointer.
type SignalDispatcher struct {
	*Scope

	signals  SignalTable
	priority int
}

func NewSignalDispatcher() *SignalDispatcher {
	return &SignalDispatcher{Scope: NewScope()}
}

// Signals implements SignalHolder.
func (d *SignalDispatcher) Signals() *SignalTable { return &d.signals }

// Priority is the default scheduling priority of the binders created by Watch.
func (d *SignalDispatcher) Priority() int { return d.priority }

func (d *SignalDispatcher) SetPriority(priority int) { d.priority = priority }

func (d *SignalDispatcher) binderOptions(opts []BinderOption) []BinderOption {
	return append([]BinderOption{WithPriority(d.priority), WithParent(d)}, opts...)
}

// Watch evaluates getter now and calls callback every time its value
// changes. The binder is disposed with d.
func (d *SignalDispatcher) Watch(getter func() any, callback func(any), opts ...BinderOption) *Binder {
	opts = append(d.binderOptions(opts), WithCallback(callback))
	b := NewBinder(func(*Binder) any { return getter() }, opts...)
	d.Link(b)

	return b
}

// WatchAll watches several getters at once; callback receives their values in order.
func (d *SignalDispatcher) WatchAll(getters []func() any, callback func(...any), opts ...BinderOption) *Binder {
	return d.Watch(func() any {
		values := make([]any, len(getters))
		for i, g := range getters {
			values[i] = g()
		}
		return values
	}, func(v any) {
		callback(v.([]any)...)
	}, opts...)
}

// WatchCollection is Watch for getters returning a collection that fires
// "change" when mutated in place.
func (d *SignalDispatcher) WatchCollection(getter func() any, callback func(any), opts ...BinderOption) *CollectionBinder {
	opts = append(d.binderOptions(opts), WithCallback(callback))
	cb := NewCollectionBinder(func(*Binder) any { return getter() }, opts...)
	d.Link(cb)

	return cb
}

// Observable is a value property of a SignalDispatcher. Reads are recorded
// as dependencies on (owner, key); writes of a different value fire it.
type Observable struct {
	owner any
	key   string
	value any
}

// DefineObservable creates the observable key on d with an initial value.
func (d *SignalDispatcher) DefineObservable(key string, value any) *Observable {
	return NewObservable(d, key, value)
}

// NewObservable creates an observable whose signal lives on owner.
func NewObservable(owner any, key string, value any) *Observable {
	return &Observable{owner: owner, key: key, value: value}
}

func (o *Observable) Key() string { return o.key }

func (o *Observable) Get() any {
	RecordEvent(o.owner, o.key)
	return o.value
}

// Peek reads the value without recording a dependency.
func (o *Observable) Peek() any { return o.value }

func (o *Observable) Set(value any) {
	old := o.value
	if isEqual(old, value) {
		return
	}

	o.value = value
	RecordChange(o.owner, o.key, value, old)
}

func (d *SignalDispatcher) On(name string, h *Handler) *Signal {
	return On(d, name, h)
}

func (d *SignalDispatcher) Off(name string, h *Handler) {
	Off(d, name, h)
}

func (d *SignalDispatcher) Trigger(name string, args ...any) {
	Trigger(d, name, args...)
}

func (d *SignalDispatcher) ListenTo(obj any, name string, method *Handler) {
	ListenTo(d, obj, name, method)
}

func (d *SignalDispatcher) StopListening(obj any, name string, method *Handler) {
	StopListening(d, obj, name, method)
}

func (d *SignalDispatcher) Dispose() {
	d.StopListening(nil, "", nil)
	d.Scope.Dispose()
}
