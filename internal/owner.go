package internal

import (
	"slices"
)

// Disposable is anything a Scope can release.
// Scopes compare disposables by identity, so link pointers.
type Disposable interface {
	Dispose()
}

// Scope owns a list of disposables released, last linked first, when the scope is disposed.
type Scope struct {
	disposables []Disposable
	disposed    bool
}

func NewScope() *Scope {
	return &Scope{}
}

func (s *Scope) IsDisposed() bool { return s.disposed }

// Link ties d's lifetime to the scope and returns it.
func (s *Scope) Link(d Disposable) Disposable {
	s.disposables = append(s.disposables, d)
	return d
}

// Unlink forgets d without disposing it.
func (s *Scope) Unlink(d Disposable) {
	if i := slices.Index(s.disposables, d); i != -1 {
		s.disposables = slices.Delete(s.disposables, i, i+1)
	}
}

// DisposeLink unlinks d and disposes it.
func (s *Scope) DisposeLink(d Disposable) {
	s.Unlink(d)
	d.Dispose()
}

// OnCleanup registers fn to run when the scope is disposed.
func (s *Scope) OnCleanup(fn func()) {
	s.Link(&cleanup{fn})
}

func (s *Scope) Dispose() {
	s.disposed = true

	disposables := s.disposables
	s.disposables = nil

	for i := len(disposables) - 1; i >= 0; i-- {
		disposables[i].Dispose()
	}
}

// cleanup is a pointer so Unlink can find it again
type cleanup struct{ fn func() }

func (c *cleanup) Dispose() { c.fn() }
