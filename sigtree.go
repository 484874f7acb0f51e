package sigtree

import (
	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/rs/zerolog"
)

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

type Observable[T any] struct {
	obs     *internal.Observable
	signals internal.SignalTable
}

// NewObservable creates a standalone observable value.
func NewObservable[T any](initial T) *Observable[T] {
	o := &Observable[T]{}
	o.obs = internal.NewObservable(o, "value", initial)

	return o
}

// Signals keeps the observable's subscriptions on the observable itself.
func (o *Observable[T]) Signals() *internal.SignalTable { return &o.signals }

// Get the current value, tracking the dependency if read inside a watcher.
func (o *Observable[T]) Get() T {
	return as[T](o.obs.Get())
}

// Peek the current value without tracking it.
func (o *Observable[T]) Peek() T {
	return as[T](o.obs.Peek())
}

// Set a new value. Watchers depending on it are invalidated unless the value is unchanged.
func (o *Observable[T]) Set(v T) {
	o.obs.Set(v)
}

type WatchOption = internal.BinderOption

var (
	// Synchronous recomputes the watcher as soon as a dependency changes instead of scheduling it.
	Synchronous = internal.Synchronous
	// IgnoreFirstRun skips the callback for the initial evaluation.
	IgnoreFirstRun = internal.IgnoreFirstRun
	WithPriority   = internal.WithPriority
	Late           = internal.Late
	WithTrack      = internal.WithTrack
	WithQueue      = internal.WithQueue
)

type Watcher[T any] struct {
	binder *internal.Binder
}

// Watch evaluates getter now, and calls callback with the new value every
// time it changes. By default recomputation is scheduled on the goroutine's
// queue and happens on the next Flush or frame.
func Watch[T any](getter func() T, callback func(T), opts ...WatchOption) *Watcher[T] {
	if callback != nil {
		opts = append(opts, internal.WithCallback(func(v any) { callback(as[T](v)) }))
	}

	return &Watcher[T]{
		internal.NewBinder(func(*internal.Binder) any { return getter() }, opts...),
	}
}

// Get the watched value, recomputing it first if a dependency changed since.
func (w *Watcher[T]) Get() T { return as[T](w.binder.Get()) }

// Value returns the last computed value without recomputing.
func (w *Watcher[T]) Value() T { return as[T](w.binder.Value()) }

func (w *Watcher[T]) Dirty() bool { return w.binder.Dirty() }

// Dispose stops watching. A pending recomputation becomes a no-op.
func (w *Watcher[T]) Dispose() { w.binder.Dispose() }

type Computed[T any] struct {
	binder  *internal.Binder
	signals internal.SignalTable
}

func (c *Computed[T]) Signals() *internal.SignalTable { return &c.signals }

// NewComputed creates a lazy memo: it recomputes on read, and only once one
// of its dependencies changed.
func NewComputed[T any](compute func() T) *Computed[T] {
	c := &Computed[T]{}
	c.binder = internal.NewBinder(
		func(*internal.Binder) any { return compute() },
		internal.IgnoreFirstRun(),
		internal.WithInvalidate(func() { internal.TriggerNoArgs(c, "value") }),
	)

	return c
}

// Get the computed value, tracking the dependency if read inside a watcher.
func (c *Computed[T]) Get() T {
	internal.RecordEvent(c, "value")
	return as[T](c.binder.Get())
}

func (c *Computed[T]) Dispose() {
	c.binder.Dispose()
}

// Batch runs fn and flushes scheduled recomputations once the outermost
// batch returns. Panics from recomputations reach the caller.
func Batch(fn func()) {
	internal.GetRuntime().Batch(fn)
}

// Flush runs every scheduled recomputation of the calling goroutine.
// Panicking watchers are logged and skipped.
func Flush() {
	internal.GetRuntime().Flush()
}

// Untrack runs fn without recording any dependency.
func Untrack[T any](fn func() T) T {
	var result T
	internal.Untrack(func() { result = fn() })
	return result
}

// SetLogger sets the logger of the calling goroutine's runtime.
func SetLogger(logger zerolog.Logger) {
	internal.GetRuntime().SetLogger(logger)
}

type Handler = internal.Handler

// On subscribes fn to obj's signal name. Keep the handler to unsubscribe.
func On(obj any, name string, fn func(args ...any)) *Handler {
	h := internal.NewHandler(fn)
	internal.On(obj, name, h)

	return h
}

func Off(obj any, name string, h *Handler) {
	internal.Off(obj, name, h)
}

// Trigger fires obj's signal name. Unknown signals are ignored.
func Trigger(obj any, name string, args ...any) {
	internal.Trigger(obj, name, args...)
}

type Promise = internal.Promise

var (
	NewPromise = internal.NewPromise
	Resolved   = internal.Resolved
)

type (
	Queue         = internal.TaskQueue
	NestedQueue   = internal.NestedTaskQueue
	Task          = internal.Task
	FrameDriver   = internal.FrameDriver
	FrameOption   = internal.FrameOption
	FrameObserver = internal.FrameObserver
)

var (
	TaskFunc          = internal.TaskFunc
	WithInterval      = internal.WithInterval
	WithMaxFrameTime  = internal.WithMaxFrameTime
	Background        = internal.Background
	WithFrameLogger   = internal.WithFrameLogger
	WithFrameObserver = internal.WithFrameObserver
	FrameOptions      = internal.FrameOptions
)

// DefaultQueue returns the calling goroutine's scheduling queue.
func DefaultQueue() *Queue {
	return internal.GetRuntime().Queue()
}

// NewNestedQueue creates a queue that schedules itself on parent as one task
// of the given priority, and drains all of its own tasks when that task runs.
func NewNestedQueue(parent *Queue, name string, priority int) *NestedQueue {
	return internal.NewNestedTaskQueue(parent, name, priority)
}

// ReleaseRuntime forgets the calling goroutine's runtime. Call it before a
// long-lived goroutine that used watchers exits; its queue is dropped with it.
func ReleaseRuntime() {
	internal.ReleaseRuntime()
}

// NewFrameDriver drives the calling goroutine's queue. Call Run on the same goroutine.
func NewFrameDriver(opts ...FrameOption) *FrameDriver {
	return internal.NewFrameDriver(internal.GetRuntime().Queue(), opts...)
}
