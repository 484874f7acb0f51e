package internal

// Batcher counts nested batches. Scheduled work is flushed once the
// outermost batch returns.
type Batcher struct {
	depth int
}

func NewBatcher() *Batcher {
	return &Batcher{}
}

func (b *Batcher) IsBatching() bool {
	return b.depth > 0
}

func (b *Batcher) Batch(fn, onComplete func()) {
	b.depth++
	defer func() {
		b.depth--
		if b.depth == 0 && onComplete != nil {
			onComplete()
		}
	}()

	fn()
}

// Batch runs fn and then drains the default queue, propagating task panics.
// Nested batches drain only once, when the outermost returns.
func (r *Runtime) Batch(fn func()) {
	r.batcher.Batch(fn, r.queue.QuickRun)
}

func (r *Runtime) IsBatching() bool {
	return r.batcher.IsBatching()
}
