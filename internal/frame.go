package internal

import (
	"context"
	"sync"
	"time"

	"github.com/AnatoleLucet/sigtree/internal/config"
	"github.com/rs/zerolog"
)

const (
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultMaxFrameTime  = 16 * time.Millisecond

	// frames closer than this are coalesced by Tick
	minTickDelta = 5 * time.Millisecond

	frameTimesLen = 10
)

// FrameObserver receives the duration of every frame.
type FrameObserver interface {
	ObserveFrame(elapsed time.Duration)
}

type FrameOption func(*FrameDriver)

func WithInterval(d time.Duration) FrameOption {
	return func(f *FrameDriver) { f.interval = d }
}

func WithMaxFrameTime(d time.Duration) FrameOption {
	return func(f *FrameDriver) { f.maxFrameTime = d }
}

// Background runs a frame as soon as work is queued instead of waiting for the next tick.
func Background(enabled bool) FrameOption {
	return func(f *FrameDriver) { f.background = enabled }
}

func WithFrameLogger(logger zerolog.Logger) FrameOption {
	return func(f *FrameDriver) { f.logger = logger }
}

func WithFrameObserver(o FrameObserver) FrameOption {
	return func(f *FrameDriver) { f.observer = o }
}

// FrameOptions turns the frame section of a config into driver options.
// Zero durations keep the driver defaults.
func FrameOptions(cfg config.FrameConfig) []FrameOption {
	opts := []FrameOption{Background(cfg.Background)}
	if cfg.Interval > 0 {
		opts = append(opts, WithInterval(cfg.Interval))
	}
	if cfg.MaxFrameTime > 0 {
		opts = append(opts, WithMaxFrameTime(cfg.MaxFrameTime))
	}

	return opts
}

// FrameDriver drains a queue once per frame. Run blocks the goroutine that
// owns the queue; other goroutines hand work over with Post.
type FrameDriver struct {
	queue *TaskQueue

	interval     time.Duration
	maxFrameTime time.Duration
	background   bool

	wake  chan struct{}
	posts chan func()

	tickTime time.Time

	mu         sync.Mutex
	frameTimes []time.Duration

	logger   zerolog.Logger
	observer FrameObserver
}

// NewFrameDriver becomes q's waker.
func NewFrameDriver(q *TaskQueue, opts ...FrameOption) *FrameDriver {
	f := &FrameDriver{
		queue:        q,
		interval:     DefaultFrameInterval,
		maxFrameTime: DefaultMaxFrameTime,
		wake:         make(chan struct{}, 1),
		posts:        make(chan func(), 64),
		tickTime:     time.Now(),
		logger:       q.logger,
	}

	for _, opt := range opts {
		opt(f)
	}

	q.SetWaker(f)

	return f
}

func (f *FrameDriver) Queue() *TaskQueue { return f.queue }

// Wake implements Waker.
func (f *FrameDriver) Wake(*TaskQueue, bool) {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Post runs fn on the driver's goroutine before the next frame.
// It may be called from any goroutine.
func (f *FrameDriver) Post(fn func()) {
	GetRuntime().CheckAsync("FrameDriver.Post()")

	f.posts <- fn
}

// Run drives frames until ctx is done.
func (f *FrameDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	requested := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fn := <-f.posts:
			fn()

		case <-f.wake:
			if f.background {
				f.Frame()
				continue
			}
			requested = true

		case <-ticker.C:
			if requested {
				requested = false
				f.Frame()
			}
		}
	}
}

// Tick runs a frame unless one ran very recently. It is meant for hosts
// that pump frames themselves instead of calling Run.
func (f *FrameDriver) Tick() bool {
	if time.Since(f.tickTime) < minTickDelta {
		return false
	}

	f.Frame()
	return true
}

// Frame drains the queue once and records how long it took.
func (f *FrameDriver) Frame() {
	start := time.Now()
	f.tickTime = start

	f.queue.Run()

	elapsed := time.Since(start)

	f.mu.Lock()
	f.frameTimes = append([]time.Duration{elapsed}, f.frameTimes...)
	if len(f.frameTimes) > frameTimesLen {
		f.frameTimes = f.frameTimes[:frameTimesLen]
	}
	f.mu.Unlock()

	if elapsed > f.maxFrameTime {
		f.logger.Warn().Dur("elapsed", elapsed).Msg("long frame")
	}

	if f.observer != nil {
		f.observer.ObserveFrame(elapsed)
	}
}

// FrameTimes returns the durations of the most recent frames, newest first.
func (f *FrameDriver) FrameTimes() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.frameTimes))
	copy(out, f.frameTimes)

	return out
}
