//go:build !wasm

package internal

import (
	"sync"

	"github.com/petermattis/goid"
)

var runtimes sync.Map

// GetRuntime returns the runtime bound to the calling goroutine, creating it on first use.
func GetRuntime() *Runtime {
	gid := getGID()

	if r, ok := runtimes.Load(gid); ok {
		return r.(*Runtime)
	}

	r := NewRuntime()
	runtimes.Store(gid, r)
	return r
}

// ReleaseRuntime forgets the calling goroutine's runtime.
// Goroutines that created reactive state and are about to exit should call it.
func ReleaseRuntime() {
	runtimes.Delete(getGID())
}

func getGID() int64 {
	return goid.Get()
}
