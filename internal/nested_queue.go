package internal

// NestedTaskQueue is a queue drained as a single task of its parent.
type NestedTaskQueue struct {
	*TaskQueue

	parent   *TaskQueue
	priority int

	// identities pushed on the parent, kept so repeated wakes dedupe
	runTask     Task
	enqueueTask Task
}

func NewNestedTaskQueue(parent *TaskQueue, name string, priority int) *NestedTaskQueue {
	n := &NestedTaskQueue{
		parent:   parent,
		priority: priority,
	}

	n.TaskQueue = NewTaskQueue(
		WithQueueName(name),
		WithQueueLogger(parent.logger),
		WithObserver(parent.observer),
		WithWaker(n),
	)
	n.runTask = TaskFunc(n.Run)
	n.enqueueTask = TaskFunc(n.enqueue)

	return n
}

func (n *NestedTaskQueue) enqueue() {
	n.parent.Push(n.runTask, n.priority, false)
}

// Wake implements Waker. From inside an after pass the drain waits for the
// parent's next run instead of joining the current one.
func (n *NestedTaskQueue) Wake(_ *TaskQueue, useAfter bool) {
	if useAfter || n.parent.inAfter {
		n.parent.After().Push(n.enqueueTask, 0, false)
		return
	}

	n.enqueue()
}
