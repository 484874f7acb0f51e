package internal

import (
	"sync"
)

type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// Promise is a settle-once placeholder for a value produced later.
// Binders that return a pending promise evaluate to nil and recompute once
// it settles. Settle promises on the goroutine that drains the binders'
// queue (see FrameDriver.Post); the update signal fires synchronously.
type Promise struct {
	mu sync.Mutex

	state PromiseState
	value any
	err   error

	done      chan struct{}
	callbacks []func(any, error)

	// rejection already logged by the promise filter
	reported bool
}

// NewPromise creates a pending promise. It panics inside a protected synchronous action.
func NewPromise() *Promise {
	GetRuntime().CheckAsync("NewPromise()")

	return &Promise{done: make(chan struct{})}
}

// Resolved returns an already fulfilled promise. Like NewPromise it panics
// inside a protected synchronous action.
func Resolved(v any) *Promise {
	GetRuntime().CheckAsync("Resolved()")

	p := &Promise{done: make(chan struct{})}
	p.Resolve(v)
	return p
}

func (p *Promise) Resolve(v any) bool {
	return p.settle(PromiseFulfilled, v, nil)
}

func (p *Promise) Reject(err error) bool {
	return p.settle(PromiseRejected, nil, err)
}

func (p *Promise) settle(state PromiseState, v any, err error) bool {
	p.mu.Lock()
	if p.state != PromisePending {
		p.mu.Unlock()
		return false
	}

	p.state = state
	p.value = v
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}

	TriggerNoArgs(p, "update")
	// nobody can subscribe to a settled promise anymore
	Release(p)

	return true
}

func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Result returns the settled value and error. Both are zero while pending.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.value, p.err
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Then registers fn to run on settlement, or runs it now if already settled.
func (p *Promise) Then(fn func(v any, err error)) {
	p.mu.Lock()
	if p.state == PromisePending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()

	fn(v, err)
}

// PromiseFilter yields nil for a pending promise and subscribes the binder to
// its settlement; a fulfilled promise yields its value. A rejected promise
// yields nil and its error is logged once.
func PromiseFilter(c *Collector, value any) (any, bool) {
	p, ok := value.(*Promise)
	if !ok || p == nil {
		return nil, false
	}

	p.mu.Lock()
	state, v, err := p.state, p.value, p.err
	report := state == PromiseRejected && !p.reported
	if report {
		p.reported = true
	}
	p.mu.Unlock()

	switch state {
	case PromisePending:
		c.Push(p, "update")
		return nil, true
	case PromiseRejected:
		if report {
			GetRuntime().logger.Warn().Err(err).Msg("binder value rejected")
		}
		return nil, true
	}

	return v, true
}
