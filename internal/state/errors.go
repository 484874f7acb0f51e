package state

import (
	"errors"
	"fmt"

	"github.com/AnatoleLucet/sigtree/internal"
)

var (
	ErrActionName    = errors.New("Action name must be a string")
	ErrAsyncInSync   = errors.New("Cannot dispatch an asynchronous action from a synchronous action")
	ErrOutsideAction = errors.New("Attempting to set state outside of an action")

	ErrActionSlash = errors.New(`Action name can't include the "/" character`)
	ErrActionAt    = errors.New(`Action name can't include the "@" character`)

	ErrUnknownField  = errors.New("unknown state field")
	ErrUnknownMethod = errors.New("unknown store method")
	ErrUnknownClass  = errors.New("unknown store class")
)

// ReparentError is returned when a store that already has a parent is assigned under another one.
type ReparentError struct {
	Name string
}

func (e *ReparentError) Error() string {
	return fmt.Sprintf("The store you're attempting to assign to %q already belongs to another store. The store hierarchy must be a tree.", e.Name)
}

type (
	UnbalancedActionError = internal.UnbalancedActionError
	AsyncBlockedError     = internal.AsyncBlockedError
)
