package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	p := New(opts...)
	require.NoError(t, p.Start())
	t.Cleanup(func() {
		_ = p.Stop(context.Background(), time.Second)
	})
	return p
}

func TestPool_Lifecycle(t *testing.T) {
	t.Run("rejects submissions before start", func(t *testing.T) {
		p := New()
		assert.False(t, p.Running())
		assert.ErrorIs(t, p.Submit(func() {}), ErrNotRunning)
	})

	t.Run("start twice", func(t *testing.T) {
		p := startPool(t)
		assert.True(t, p.Running())
		assert.ErrorIs(t, p.Start(), ErrAlreadyRunning)
	})

	t.Run("stop before start", func(t *testing.T) {
		p := New()
		assert.ErrorIs(t, p.Stop(context.Background(), time.Second), ErrNotRunning)
	})

	t.Run("cannot restart after stop", func(t *testing.T) {
		p := New()
		require.NoError(t, p.Start())
		require.NoError(t, p.Stop(context.Background(), time.Second))
		assert.ErrorIs(t, p.Start(), ErrClosed)
		assert.ErrorIs(t, p.Submit(func() {}), ErrNotRunning)
		assert.ErrorIs(t, p.Stop(context.Background(), time.Second), ErrNotRunning)
	})

	t.Run("defaults", func(t *testing.T) {
		p := New(WithWorkers(0), WithQueueSize(-1))
		assert.Positive(t, p.Workers())
		assert.Equal(t, defaultQueueSize, p.queueSize)
	})
}

func TestPool_Submit(t *testing.T) {
	t.Run("runs every task", func(t *testing.T) {
		p := startPool(t, WithWorkers(4))
		var wg sync.WaitGroup
		var count atomic.Int32
		for range 100 {
			wg.Add(1)
			require.NoError(t, p.Submit(func() {
				defer wg.Done()
				count.Add(1)
			}))
		}
		wg.Wait()
		assert.Equal(t, int32(100), count.Load())

		stats := p.Stats()
		assert.Equal(t, uint64(100), stats.Submitted)
	})

	t.Run("runs inline when the queue is full", func(t *testing.T) {
		p := startPool(t, WithWorkers(1), WithQueueSize(1))

		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, p.Submit(func() {
			close(started)
			<-release
		}))
		<-started
		// occupies the single queue slot
		require.NoError(t, p.Submit(func() {}))

		var ranInline bool
		require.NoError(t, p.SubmitOrRun(func() { ranInline = true }))
		assert.True(t, ranInline, "task should run on the submitting goroutine")
		assert.Equal(t, uint64(1), p.Stats().Inline)
		close(release)
	})

	t.Run("overflows to a goroutine when the queue is full", func(t *testing.T) {
		p := startPool(t, WithWorkers(1), WithQueueSize(1))

		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, p.Submit(func() {
			close(started)
			<-release
		}))
		<-started
		require.NoError(t, p.Submit(func() { <-release }))

		ran := make(chan struct{})
		start := time.Now()
		require.NoError(t, p.Submit(func() {
			<-release
			close(ran)
		}))
		assert.Less(t, time.Since(start), 100*time.Millisecond, "submit must not run the task")

		stats := p.Stats()
		assert.Equal(t, uint64(1), stats.Overflow)
		assert.Equal(t, uint64(0), stats.Inline)

		close(release)
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("overflow task did not run")
		}
	})

	t.Run("stop waits for overflow tasks", func(t *testing.T) {
		p := New(WithWorkers(1), WithQueueSize(1))
		require.NoError(t, p.Start())

		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, p.Submit(func() {
			close(started)
			<-release
		}))
		<-started
		require.NoError(t, p.Submit(func() {}))

		var finished atomic.Bool
		require.NoError(t, p.Submit(func() {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
		}))
		close(release)

		require.NoError(t, p.Stop(context.Background(), time.Second))
		assert.True(t, finished.Load())
	})

	t.Run("recovers panics", func(t *testing.T) {
		var mu sync.Mutex
		var got any
		p := startPool(t, WithWorkers(1), WithPanicHandler(func(v any, stack []byte) {
			mu.Lock()
			defer mu.Unlock()
			got = v
			assert.NotEmpty(t, stack)
		}))

		require.NoError(t, p.Submit(func() { panic("boom") }))

		done := make(chan struct{})
		require.NoError(t, p.Submit(func() { close(done) }))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not survive the panic")
		}
		mu.Lock()
		assert.Equal(t, "boom", got)
		mu.Unlock()
		assert.Equal(t, uint64(1), p.Stats().Panicked)
	})

	t.Run("panicking panic handler is contained", func(t *testing.T) {
		p := startPool(t, WithWorkers(1), WithPanicHandler(func(any, []byte) { panic("again") }))
		require.NoError(t, p.Submit(func() { panic("boom") }))

		done := make(chan struct{})
		require.NoError(t, p.Submit(func() { close(done) }))
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not survive the panic")
		}
	})
}

func TestWait(t *testing.T) {
	done := make(chan struct{})
	close(done)
	require.NoError(t, Wait(context.Background(), done))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, make(chan struct{})), context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Wait(ctx, done), "done wins over a finished context")
}

func TestPool_Await(t *testing.T) {
	t.Run("returns when done closes", func(t *testing.T) {
		p := startPool(t)
		done := make(chan struct{})
		require.NoError(t, p.Submit(func() {
			time.Sleep(20 * time.Millisecond)
			close(done)
		}))
		require.NoError(t, p.Await(context.Background(), done))
	})

	t.Run("returns the context error", func(t *testing.T) {
		p := startPool(t)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Await(ctx, make(chan struct{}))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("helps run queued work", func(t *testing.T) {
		p := startPool(t, WithWorkers(1), WithQueueSize(8))

		// the only worker blocks on work that can only run through Await
		outer := make(chan struct{})
		require.NoError(t, p.Submit(func() {
			defer close(outer)
			inner := make(chan struct{})
			assert.NoError(t, p.Submit(func() { close(inner) }))
			assert.NoError(t, p.Await(context.Background(), inner))
		}))

		select {
		case <-outer:
		case <-time.After(2 * time.Second):
			t.Fatal("nested await deadlocked")
		}
	})

	t.Run("works on a pool that never started", func(t *testing.T) {
		p := New()
		done := make(chan struct{})
		close(done)
		require.NoError(t, p.Await(context.Background(), done))
	})
}

func TestPool_Stop(t *testing.T) {
	t.Run("drains queued tasks", func(t *testing.T) {
		p := New(WithWorkers(2))
		require.NoError(t, p.Start())

		var count atomic.Int32
		for range 20 {
			require.NoError(t, p.Submit(func() {
				time.Sleep(time.Millisecond)
				count.Add(1)
			}))
		}
		require.NoError(t, p.Stop(context.Background(), 5*time.Second))
		assert.Equal(t, int32(20), count.Load())
		assert.False(t, p.Running())
	})

	t.Run("gives up after the drain timeout", func(t *testing.T) {
		p := New(WithWorkers(1))
		require.NoError(t, p.Start())

		release := make(chan struct{})
		defer close(release)
		require.NoError(t, p.Submit(func() { <-release }))

		start := time.Now()
		err := p.Stop(context.Background(), 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrDrainTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("honours the context", func(t *testing.T) {
		p := New(WithWorkers(1))
		require.NoError(t, p.Start())

		release := make(chan struct{})
		defer close(release)
		require.NoError(t, p.Submit(func() { <-release }))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, p.Stop(ctx, time.Minute), context.DeadlineExceeded)
	})
}
