package placement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatcherCheck tests the fresh / stale transitions
func TestWatcherCheck(t *testing.T) {
	var fail atomic.Bool
	boom := errors.New("boom")
	reload := func(context.Context) error {
		if fail.Load() {
			return boom
		}
		return nil
	}

	logger, hook := test.NewNullLogger()
	w := NewWatcher(reload, logger)
	assert.Equal(t, StatusUnknown, w.Health().Status)

	var staleCalls []error
	w.SetOnStale(func(err error) { staleCalls = append(staleCalls, err) })

	require.NoError(t, w.Check(context.Background()))
	h := w.Health()
	assert.Equal(t, StatusFresh, h.Status)
	assert.False(t, h.LastLoaded.IsZero())

	fail.Store(true)
	for i := 1; i <= 2; i++ {
		assert.ErrorIs(t, w.Check(context.Background()), boom)
		assert.Equal(t, StatusFresh, w.Health().Status, "attempt %d", i)
	}
	assert.ErrorIs(t, w.Check(context.Background()), boom)
	assert.True(t, w.IsStale())
	assert.Equal(t, 3, w.Health().ConsecutiveFails)
	assert.Equal(t, "boom", w.Health().LastError)

	// staying stale does not notify again
	_ = w.Check(context.Background())
	assert.Len(t, staleCalls, 1)
	assert.Len(t, hook.AllEntries(), 4)

	fail.Store(false)
	require.NoError(t, w.Check(context.Background()))
	h = w.Health()
	assert.Equal(t, StatusFresh, h.Status)
	assert.Zero(t, h.ConsecutiveFails)
	assert.Empty(t, h.LastError)
	assert.Equal(t, "snapshot source recovered", hook.LastEntry().Message)
}

// TestWatcherStart tests periodic refreshes and shutdown
func TestWatcherStart(t *testing.T) {
	var calls atomic.Int32
	w := NewWatcher(func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(context.Background(), 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()
	wg.Wait()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no refreshes after Stop")
}

// TestWatcherStartDisabled tests that a non-positive interval does not poll
func TestWatcherStartDisabled(t *testing.T) {
	w := NewWatcher(func(context.Context) error {
		t.Fatal("reload must not be called")
		return nil
	}, nil)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
	w.Stop()
}

// TestWatcherContextCancel tests that canceling the caller's context stops Start
func TestWatcherContextCancel(t *testing.T) {
	w := NewWatcher(func(context.Context) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
