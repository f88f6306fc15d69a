package resilience

import (
	"context"
	"sync"
	"time"
)

// DefaultBatchTimeout is the flush deadline used when BatcherConfig leaves
// BatchTimeout zero.
const DefaultBatchTimeout = 500 * time.Millisecond

// BatcherConfig defines configuration for the batcher.
type BatcherConfig struct {
	// BatchSize flushes the window as soon as this many keys are pending.
	BatchSize int

	// BatchTimeout flushes whatever is pending once this much time passes
	// after the most recent key with nothing new arriving.
	BatchTimeout time.Duration
}

// Batcher coalesces a stream of keys into batches, flushing on size or
// time. Keys within and across batches preserve arrival order. Closing the
// batcher flushes exactly one trailing partial batch and stops the worker.
type Batcher struct {
	ctx       context.Context
	cancel    context.CancelFunc
	in        chan string
	flush     func(ctx context.Context, keys []string)
	size      int
	timeout   time.Duration
	waitGroup sync.WaitGroup
	once      sync.Once
}

// NewBatcher creates a batcher that delivers batches to flush from a
// single background goroutine. Zero-valued config fields fall back to a
// batch size of 10 and DefaultBatchTimeout. Cancelling parent discards
// pending keys and stops the worker.
func NewBatcher(parent context.Context, cfg BatcherConfig, flush func(ctx context.Context, keys []string)) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	b := &Batcher{
		ctx:     ctx,
		cancel:  cancel,
		in:      make(chan string, 1024),
		flush:   flush,
		size:    cfg.BatchSize,
		timeout: cfg.BatchTimeout,
	}
	b.waitGroup.Add(1)
	go b.run()
	return b
}

// Add enqueues a key for the next batch. It reports false when the batcher
// has been cancelled. Add must not be called concurrently with or after
// Close.
func (b *Batcher) Add(key string) bool {
	if b.ctx.Err() != nil {
		return false
	}
	select {
	case <-b.ctx.Done():
		return false
	case b.in <- key:
		return true
	}
}

// Close drains the queue, flushes one trailing partial batch, and waits
// for the worker to stop.
func (b *Batcher) Close() {
	b.once.Do(func() {
		close(b.in)
		b.waitGroup.Wait()
		b.cancel()
	})
}

func (b *Batcher) run() {
	defer b.waitGroup.Done()
	timer := time.NewTimer(b.timeout)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending []string
	emit := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		b.flush(b.ctx, batch)
	}
	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.timeout)
	}

	for {
		select {
		case <-b.ctx.Done():
			return
		case key, ok := <-b.in:
			if !ok {
				emit()
				return
			}
			pending = append(pending, key)
			if len(pending) >= b.size {
				emit()
			} else {
				resetTimer()
			}
		case <-timer.C:
			emit()
		}
	}
}
