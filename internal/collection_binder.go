package internal

import "reflect"

// Based is implemented by collection wrappers that expose their backing value.
type Based interface {
	Base() any
}

// CollectionBinder watches an expression that yields a collection. Returning
// the same collection counts as a change when the collection fired "change"
// since the last evaluation.
type CollectionBinder struct {
	*Binder

	lengthChanged bool
	onChange      *Handler
	signals       SignalTable
}

func (cb *CollectionBinder) Signals() *SignalTable { return &cb.signals }

func NewCollectionBinder(getter func(*Binder) any, opts ...BinderOption) *CollectionBinder {
	cfg := &binderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	cb := &CollectionBinder{}
	cb.Binder = newBinder(getter, cfg)
	cb.Binder.updater = cb.update
	cb.onChange = NewHandler(func(...any) {
		// the collection is the same object, remember it mutated
		cb.lengthChanged = true
		cb.Invalidate()
	})

	cb.start(cfg.ignoreFirstRun)

	return cb
}

func (cb *CollectionBinder) update(value any, invokeCallback bool) bool {
	b := cb.Binder

	if b.evaluated && isEqual(b.previous, value) {
		if !cb.lengthChanged {
			return false
		}
		cb.lengthChanged = false

		if invokeCallback {
			cb.invokeCallback(value)
		}
		return true
	}

	if b.evaluated && isReference(b.previous) {
		StopListening(cb, b.previous, "", nil)
	}

	b.previous = value
	b.evaluated = true
	cb.lengthChanged = false

	if isReference(value) {
		ListenTo(cb, value, "change", cb.onChange)
	}

	if invokeCallback {
		cb.invokeCallback(value)
	}

	return true
}

func (cb *CollectionBinder) invokeCallback(value any) {
	if cb.callback == nil {
		return
	}

	if based, ok := value.(Based); ok {
		cb.callback(based.Base())
		return
	}

	cb.callback(value)
}

func (cb *CollectionBinder) Dispose() {
	cb.Binder.Dispose()

	StopListening(cb, nil, "", nil)
}

func isReference(v any) bool {
	if v == nil {
		return false
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan:
		return true
	}

	return false
}
