package locks

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPoolSize = 10

	maxReaders = 1 << 30
)

var ErrLockTimeout = errors.New("unable to acquire lock")

// Pool guards a database with many readers or one writer. Readers take a
// share of the current slot. A writer that times out on the current slot
// moves every new reader to the next one and retries there, then drains the
// remaining slots so exclusion always holds.
type Pool struct {
	slots   []*semaphore.Weighted
	current atomic.Int64
	writer  *semaphore.Weighted
	logger  *zap.Logger
}

func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		slots:  make([]*semaphore.Weighted, size),
		writer: semaphore.NewWeighted(1),
		logger: logger,
	}
	for i := range p.slots {
		p.slots[i] = semaphore.NewWeighted(maxReaders)
	}
	return p
}

func (p *Pool) Size() int {
	return len(p.slots)
}

// Current returns the slot new readers are sent to.
func (p *Pool) Current() int {
	return int(p.current.Load())
}

// deadline turns a timeout into a context, 0 waits forever.
func deadline(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (p *Pool) WithReadLock(timeout time.Duration, f func() error) error {

	ctx, cancel := deadline(timeout)
	defer cancel()

	slot := p.slots[p.current.Load()]
	if err := slot.Acquire(ctx, 1); err != nil {
		return ErrLockTimeout
	}
	defer slot.Release(1)

	return f()
}

func (p *Pool) WithWriteLock(timeout time.Duration, f func() error) error {

	ctx, cancel := deadline(timeout)
	defer cancel()

	if err := p.writer.Acquire(ctx, 1); err != nil {
		return ErrLockTimeout
	}
	defer p.writer.Release(1)

	held := -1
	for attempt := 0; attempt < len(p.slots); attempt++ {
		i := int(p.current.Load())
		attemptCtx, attemptCancel := deadline(timeout)
		err := p.slots[i].Acquire(attemptCtx, maxReaders)
		attemptCancel()
		if err == nil {
			held = i
			break
		}
		next := (i + 1) % len(p.slots)
		p.current.Store(int64(next))
		p.logger.Warn("lock timeout, moving to lock", zap.Int("lock", next))
	}
	if held < 0 {
		return ErrLockTimeout
	}

	acquired := []int{held}
	defer func() {
		for _, i := range acquired {
			p.slots[i].Release(maxReaders)
		}
	}()

	for i := range p.slots {
		if i == held {
			continue
		}
		drainCtx, drainCancel := deadline(timeout)
		err := p.slots[i].Acquire(drainCtx, maxReaders)
		drainCancel()
		if err != nil {
			return ErrLockTimeout
		}
		acquired = append(acquired, i)
	}

	return f()
}
