package locks

import (
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/fulldump/biff"
	"go.uber.org/zap/zaptest"
)

func TestPool_ConcurrentReaders(t *testing.T) {
	p := NewPool(0, zaptest.NewLogger(t))
	AssertEqual(p.Size(), DefaultPoolSize)

	inside := make(chan struct{})
	release := make(chan struct{})
	errs := make(chan error, 2)

	wg := &sync.WaitGroup{}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.WithReadLock(time.Second, func() error {
				inside <- struct{}{}
				<-release
				return nil
			})
		}()
	}

	<-inside
	<-inside
	close(release)
	wg.Wait()

	AssertNil(<-errs)
	AssertNil(<-errs)
}

func TestPool_WriterExcludesReaders(t *testing.T) {
	p := NewPool(3, zaptest.NewLogger(t))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- p.WithWriteLock(time.Second, func() error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	err := p.WithReadLock(20*time.Millisecond, func() error {
		return nil
	})
	AssertTrue(errors.Is(err, ErrLockTimeout))

	close(release)
	AssertNil(<-done)

	AssertNil(p.WithReadLock(20*time.Millisecond, func() error {
		return nil
	}))
}

func TestPool_WriterRotatesOnTimeout(t *testing.T) {
	p := NewPool(3, zaptest.NewLogger(t))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- p.WithReadLock(time.Second, func() error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	ran := false
	err := p.WithWriteLock(20*time.Millisecond, func() error {
		ran = true
		return nil
	})
	AssertTrue(errors.Is(err, ErrLockTimeout))
	AssertFalse(ran)
	AssertEqual(p.Current(), 1)

	close(release)
	AssertNil(<-done)

	AssertNil(p.WithWriteLock(20*time.Millisecond, func() error {
		ran = true
		return nil
	}))
	AssertTrue(ran)
}

func TestPool_CallbackError(t *testing.T) {
	p := NewPool(2, nil)

	expected := errors.New("boom")
	err := p.WithWriteLock(0, func() error {
		return expected
	})
	AssertTrue(errors.Is(err, expected))

	err = p.WithReadLock(0, func() error {
		return expected
	})
	AssertTrue(errors.Is(err, expected))
}
