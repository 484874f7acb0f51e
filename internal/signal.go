package internal

import (
	"reflect"
	"runtime"
	"slices"
	"sync"
	"weak"
)

// Handler is a signal subscriber. Handlers are compared by pointer identity,
// so keep the *Handler around to unsubscribe it.
type Handler struct {
	fn func(args ...any)
}

func NewHandler(fn func(args ...any)) *Handler {
	return &Handler{fn: fn}
}

func (h *Handler) Call(args ...any) {
	if h.fn != nil {
		h.fn(args...)
	}
}

// Signal is a named multicast channel attached to an object.
type Signal struct {
	handlers []*Handler
}

func (s *Signal) Len() int { return len(s.handlers) }

func (s *Signal) Add(h *Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *Signal) Remove(h *Handler) {
	if i := slices.Index(s.handlers, h); i != -1 {
		s.handlers = slices.Delete(s.handlers, i, i+1)
	}
}

// Trigger calls every handler registered at the time of the call.
func (s *Signal) Trigger(args ...any) {
	// cloning so handlers added or removed mid-fire only affect the next one
	handlers := slices.Clone(s.handlers)

	for _, h := range handlers {
		h.Call(args...)
	}
}

func (s *Signal) TriggerNoArgs() {
	handlers := slices.Clone(s.handlers)

	for _, h := range handlers {
		h.Call()
	}
}

type listening struct {
	obj     any
	name    string
	method  *Handler
	handler *Handler
}

// SignalTable holds the named signals of one object and the subscriptions
// that object made through ListenTo.
// A table never references its object, so side tables don't keep it alive.
type SignalTable struct {
	signals   map[string]*Signal
	listening []listening
}

func (t *SignalTable) init() {
	if t.signals == nil {
		t.signals = make(map[string]*Signal)
	}
}

// Names lists the signals created so far, in no particular order.
func (t *SignalTable) Names() []string {
	names := make([]string, 0, len(t.signals))
	for name := range t.signals {
		names = append(names, name)
	}

	return names
}

// SignalHolder is implemented by objects that carry their own signal table.
// Everything else gets an identity-keyed side table, so the bookkeeping
// never shows up in the object's own fields or serialized form.
type SignalHolder interface {
	Signals() *SignalTable
}

// Side tables of pointers are keyed weakly and dropped once the pointee is
// collected. Other comparable values have no identity to collect and are
// keyed by value until Release.
var sideTables = struct {
	sync.Mutex
	byRef   map[weak.Pointer[byte]]*SignalTable
	byValue map[any]*SignalTable
}{
	byRef:   make(map[weak.Pointer[byte]]*SignalTable),
	byValue: make(map[any]*SignalTable),
}

// refKey returns the weak key of a pointer to a sized value. Zero-size
// values may share their address and are keyed by value instead.
func refKey(obj any) (weak.Pointer[byte], *byte, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem().Size() == 0 {
		return weak.Pointer[byte]{}, nil, false
	}

	ptr := (*byte)(v.UnsafePointer())
	return weak.Make(ptr), ptr, true
}

func dropSideTable(key weak.Pointer[byte]) {
	sideTables.Lock()
	delete(sideTables.byRef, key)
	sideTables.Unlock()
}

func sideTable(obj any, create bool) *SignalTable {
	if !reflect.TypeOf(obj).Comparable() {
		return nil
	}

	sideTables.Lock()
	defer sideTables.Unlock()

	key, ptr, ok := refKey(obj)
	if !ok {
		t := sideTables.byValue[obj]
		if t == nil && create {
			t = &SignalTable{}
			t.init()
			sideTables.byValue[obj] = t
		}
		return t
	}

	t := sideTables.byRef[key]
	if t == nil && create {
		t = &SignalTable{}
		t.init()
		sideTables.byRef[key] = t
		runtime.AddCleanup(ptr, dropSideTable, key)
	}

	return t
}

func tableFor(obj any, create bool) *SignalTable {
	if obj == nil {
		return nil
	}

	if holder, ok := obj.(SignalHolder); ok {
		t := holder.Signals()
		if t == nil {
			return nil
		}
		if t.signals == nil && !create {
			return nil
		}
		t.init()
		return t
	}

	return sideTable(obj, create)
}

// On subscribes h to obj's signal name, creating the table and the signal if needed.
func On(obj any, name string, h *Handler) *Signal {
	t := tableFor(obj, true)
	if t == nil {
		return nil
	}

	s, ok := t.signals[name]
	if !ok {
		s = &Signal{}
		t.signals[name] = s
	}
	s.Add(h)

	return s
}

// Off unsubscribes h. Unknown objects, names and handlers are ignored.
func Off(obj any, name string, h *Handler) {
	if s := lookup(obj, name); s != nil {
		s.Remove(h)
	}
}

// Trigger fires obj's signal name and returns it, or nil when nobody ever subscribed.
func Trigger(obj any, name string, args ...any) *Signal {
	s := lookup(obj, name)
	if s == nil {
		return nil
	}

	s.Trigger(args...)
	return s
}

func TriggerNoArgs(obj any, name string) *Signal {
	s := lookup(obj, name)
	if s == nil {
		return nil
	}

	s.TriggerNoArgs()
	return s
}

func lookup(obj any, name string) *Signal {
	t := tableFor(obj, false)
	if t == nil {
		return nil
	}

	return t.signals[name]
}

// ListenTo subscribes method to obj's signal on behalf of owner,
// so that StopListening(owner) can drop it later.
func ListenTo(owner, obj any, name string, method *Handler) {
	t := tableFor(owner, true)
	if t == nil {
		return
	}

	handler := NewHandler(func(args ...any) { method.Call(args...) })
	t.listening = append(t.listening, listening{obj: obj, name: name, method: method, handler: handler})

	On(obj, name, handler)
}

// StopListening removes owner's subscriptions. Each non-zero argument narrows
// the match: nil obj, empty name and nil method match everything.
func StopListening(owner, obj any, name string, method *Handler) {
	t := tableFor(owner, false)
	if t == nil {
		return
	}

	kept := t.listening[:0]
	for _, l := range t.listening {
		if (obj != nil && l.obj != obj) || (name != "" && l.name != name) || (method != nil && l.method != method) {
			kept = append(kept, l)
			continue
		}

		Off(l.obj, l.name, l.handler)
	}

	clear(t.listening[len(kept):])
	t.listening = kept
}

// Release drops obj's side table. Holders keep their own table and are left untouched.
func Release(obj any) {
	if obj == nil {
		return
	}
	if _, ok := obj.(SignalHolder); ok {
		return
	}
	if !reflect.TypeOf(obj).Comparable() {
		return
	}

	sideTables.Lock()
	defer sideTables.Unlock()

	if key, _, ok := refKey(obj); ok {
		delete(sideTables.byRef, key)
		return
	}
	delete(sideTables.byValue, obj)
}
