package internal

import (
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Task is a unit of deferred work. Tasks are deduplicated by identity, so
// implementations should be pointers.
type Task interface {
	Run()
}

type funcTask struct{ fn func() }

func (t *funcTask) Run() { t.fn() }

// TaskFunc wraps fn in a new Task. Keep the result to push or remove it again.
func TaskFunc(fn func()) Task {
	return &funcTask{fn: fn}
}

// Waker is asked to drain a queue at some later point, once per registration.
type Waker interface {
	Wake(q *TaskQueue, useAfter bool)
}

// QueueObserver receives the outcome of every full drain.
type QueueObserver interface {
	ObserveDrain(queue string, executed, failed int, elapsed time.Duration)
}

type queueItem struct {
	task     Task
	priority int
	bucket   *bucket

	cancel   bool
	executed bool
	late     bool
}

type bucket struct {
	priority int
	index    int

	// LIFO, popped from the end; moved items leave a nil hole
	items []*queueItem
}

type QueueOption func(*TaskQueue)

func WithQueueName(name string) QueueOption {
	return func(q *TaskQueue) { q.name = name }
}

func WithQueueLogger(logger zerolog.Logger) QueueOption {
	return func(q *TaskQueue) { q.logger = logger }
}

func WithObserver(o QueueObserver) QueueOption {
	return func(q *TaskQueue) { q.observer = o }
}

func WithWaker(w Waker) QueueOption {
	return func(q *TaskQueue) { q.waker = w }
}

// TaskQueue runs tasks by descending priority. Within one priority the most
// recently pushed task runs first, and late tasks run after everything else
// pending in the same drain.
type TaskQueue struct {
	name string

	items map[Task]*queueItem

	// strictly descending priority
	buckets   []*bucket
	bucketMap map[int]*bucket

	// index of the first bucket that may still hold items, len(buckets) when idle
	next int

	hoisted []*queueItem

	running    bool
	registered bool
	inAfter    bool

	after *TaskQueue
	waker Waker

	logger   zerolog.Logger
	observer QueueObserver

	// last task started, for panic reports
	current *queueItem

	executed int
	failed   int
}

func NewTaskQueue(opts ...QueueOption) *TaskQueue {
	q := &TaskQueue{
		name:      "queue",
		items:     make(map[Task]*queueItem),
		bucketMap: make(map[int]*bucket),
		logger:    log.Logger,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

func (q *TaskQueue) Name() string { return q.name }

func (q *TaskQueue) Running() bool { return q.running }

func (q *TaskQueue) SetWaker(w Waker) { q.waker = w }

func (q *TaskQueue) SetObserver(o QueueObserver) { q.observer = o }

// Pending returns the number of tasks waiting to run.
func (q *TaskQueue) Pending() int {
	n := 0
	for _, item := range q.items {
		if !item.executed && !item.cancel {
			n++
		}
	}

	return n
}

// Push schedules task at priority. Pushing a task that is already waiting
// only updates its priority and late flag.
func (q *TaskQueue) Push(task Task, priority int, late bool) {
	item, ok := q.items[task]
	if ok {
		item.late = late
		item.cancel = false

		if item.priority != priority {
			// leave a hole in the old bucket and fall through to the new one
			if i := slices.Index(item.bucket.items, item); i != -1 {
				item.bucket.items[i] = nil
			}
			item.priority = priority
		} else if !item.executed {
			return
		}

		item.executed = false
	} else {
		item = &queueItem{task: task, priority: priority, late: late}
		q.items[task] = item
	}

	b, ok := q.bucketMap[priority]
	if !ok {
		b = q.makeBucket(priority)
	}

	q.next = min(q.next, b.index)
	item.bucket = b
	b.items = append(b.items, item)

	q.registerIfNeeded()
}

func (q *TaskQueue) makeBucket(priority int) *bucket {
	// first index whose priority is lower than the new one
	i, _ := slices.BinarySearchFunc(q.buckets, priority, func(b *bucket, p int) int {
		switch {
		case b.priority > p:
			return -1
		case b.priority < p:
			return 1
		}
		return 0
	})

	b := &bucket{priority: priority, index: i}
	q.bucketMap[priority] = b
	q.buckets = slices.Insert(q.buckets, i, b)

	if i <= q.next {
		// the bucket we were pointing at moved right
		q.next++
	}

	for j := i + 1; j < len(q.buckets); j++ {
		q.buckets[j].index = j
	}

	return b
}

// Wrap returns a function that pushes task when called.
func (q *TaskQueue) Wrap(task Task, priority int, late bool) func() {
	return func() { q.Push(task, priority, late) }
}

// Remove cancels a waiting task. The item is dropped when the drain reaches it.
func (q *TaskQueue) Remove(task Task) {
	if item, ok := q.items[task]; ok {
		item.executed = false
		item.cancel = true
	}
}

// After returns the queue drained right after each full drain of q.
func (q *TaskQueue) After() *TaskQueue {
	if q.after == nil {
		q.after = NewTaskQueue(
			WithQueueName(q.name+".after"),
			WithQueueLogger(q.logger),
			WithWaker(afterWaker{parent: q}),
		)
	}

	return q.after
}

type afterWaker struct {
	parent *TaskQueue
}

func (w afterWaker) Wake(*TaskQueue, bool) {
	w.parent.registerIfNeeded()
}

func (q *TaskQueue) registerIfNeeded() {
	if q.registered {
		return
	}

	q.registered = true
	if q.waker != nil {
		q.waker.Wake(q, q.inAfter)
	}
}

func (q *TaskQueue) pending() bool {
	return q.next < len(q.buckets) || len(q.hoisted) > 0
}

func (q *TaskQueue) execCallbacks() {
	for q.next < len(q.buckets) {
		b := q.buckets[q.next]

		n := len(b.items)
		if n == 0 {
			q.next++
			continue
		}

		item := b.items[n-1]
		b.items[n-1] = nil
		b.items = b.items[:n-1]

		if item == nil || item.executed {
			continue
		}

		if item.cancel {
			if q.items[item.task] == item {
				delete(q.items, item.task)
			}
			continue
		}

		if item.late {
			q.hoisted = append(q.hoisted, item)
			continue
		}

		q.exec(item)
	}
}

func (q *TaskQueue) execHoisted() {
	for len(q.hoisted) > 0 {
		n := len(q.hoisted)
		item := q.hoisted[n-1]
		q.hoisted[n-1] = nil
		q.hoisted = q.hoisted[:n-1]

		if item.cancel || item.executed {
			continue
		}

		q.exec(item)
	}
}

func (q *TaskQueue) exec(item *queueItem) {
	item.executed = true
	q.executed++
	q.current = item

	item.task.Run()
}

func (q *TaskQueue) drain() {
	for q.pending() {
		q.execCallbacks()
		q.execHoisted()
	}
}

func (q *TaskQueue) safeDrain() {
	defer func() {
		if r := recover(); r != nil {
			q.failed++

			event := q.logger.Error().Str("queue", q.name).Interface("panic", r)
			if q.current != nil {
				event = event.Int("priority", q.current.priority)
			}
			event.Msg("task failed")
		}
	}()

	q.drain()
}

// Run drains every pending task. A panicking task is logged and the drain
// goes on with the next one.
func (q *TaskQueue) Run() {
	start := time.Now()

	if q.pending() {
		q.running = true
		for q.pending() {
			q.safeDrain()
		}
		q.running = false
	}

	q.finish(start)
}

// QuickRun drains like Run but lets a task's panic reach the caller.
func (q *TaskQueue) QuickRun() {
	start := time.Now()

	if q.pending() {
		q.running = true
		func() {
			defer func() {
				q.running = false
				if r := recover(); r != nil {
					q.registered = false
					panic(r)
				}
			}()

			q.drain()
		}()
	}

	q.finish(start)
}

func (q *TaskQueue) finish(start time.Time) {
	executed, failed := q.executed, q.failed

	q.items = make(map[Task]*queueItem)
	q.registered = false
	q.current = nil
	q.executed, q.failed = 0, 0

	if q.observer != nil && executed > 0 {
		q.observer.ObserveDrain(q.name, executed, failed, time.Since(start))
	}

	if q.after != nil {
		q.inAfter = true
		defer func() { q.inAfter = false }()

		q.after.Run()
	}
}
