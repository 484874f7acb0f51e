package internal

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runtime is the evaluation context of one goroutine.
// It owns the dependency tracker, the in-flight action stack and the default task queue.
type Runtime struct {
	tracker *Tracker
	batcher *Batcher
	actions *ActionStack

	queue *TaskQueue

	// set while a protector middleware runs a synchronous action
	asyncBlocked int

	logger zerolog.Logger
}

func NewRuntime() *Runtime {
	r := &Runtime{
		tracker: NewTracker(),
		batcher: NewBatcher(),
		actions: NewActionStack(),
		logger:  log.Logger,
	}
	r.queue = NewTaskQueue(WithQueueName("default"), WithQueueLogger(r.logger))

	return r
}

// Queue returns the default queue binders schedule themselves on.
func (r *Runtime) Queue() *TaskQueue { return r.queue }

// SetQueue replaces the default queue. Binders created afterwards use the new one.
func (r *Runtime) SetQueue(q *TaskQueue) { r.queue = q }

func (r *Runtime) Tracker() *Tracker { return r.tracker }

func (r *Runtime) Actions() *ActionStack { return r.actions }

func (r *Runtime) Logger() zerolog.Logger { return r.logger }

func (r *Runtime) SetLogger(logger zerolog.Logger) {
	r.logger = logger
	r.queue.logger = logger
}

// Flush drains the default queue, recovering task panics.
func (r *Runtime) Flush() {
	r.queue.Run()
}
