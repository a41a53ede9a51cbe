package placement

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SourceStatus describes how current the loaded snapshot is.
type SourceStatus string

const (
	StatusUnknown SourceStatus = "unknown"
	StatusFresh   SourceStatus = "fresh"
	StatusStale   SourceStatus = "stale"
)

// SourceHealth tracks refresh attempts against a snapshot source.
type SourceHealth struct {
	LastCheck        time.Time    `json:"last_check"`
	LastLoaded       time.Time    `json:"last_loaded"`
	Status           SourceStatus `json:"status"`
	LastError        string       `json:"last_error,omitempty"`
	ConsecutiveFails int          `json:"consecutive_fails"`
}

// Watcher periodically refreshes a snapshot through a caller supplied
// reload function. After maxFailures consecutive failed refreshes the source
// is reported stale; the previously loaded snapshot stays in use.
// Thread-safe: All methods are safe for concurrent access.
type Watcher struct {
	reload      func(ctx context.Context) error
	onStale     func(err error)
	logger      logrus.FieldLogger
	ctx         context.Context
	cancel      context.CancelFunc
	health      SourceHealth
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewWatcher creates a watcher around reload. Nothing is loaded until Check
// or Start is called.
func NewWatcher(reload func(ctx context.Context) error, logger logrus.FieldLogger) *Watcher {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		reload:      reload,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		health:      SourceHealth{Status: StatusUnknown},
		maxFailures: 3,
	}
}

// SetOnStale registers a callback invoked once when the source turns stale.
func (w *Watcher) SetOnStale(fn func(err error)) {
	w.mu.Lock()
	w.onStale = fn
	w.mu.Unlock()
}

// Start refreshes the snapshot every interval until ctx is canceled or Stop
// is called. It blocks; a non-positive interval returns immediately.
func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	w.wg.Add(1)
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.WithField("interval", interval).Info("snapshot watcher started")
	for {
		select {
		case <-ticker.C:
			_ = w.Check(ctx)
		case <-ctx.Done():
			return
		case <-w.ctx.Done():
			return
		}
	}
}

// Stop cancels a running Start and waits for it to return.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Check performs a single refresh and updates the source health.
func (w *Watcher) Check(ctx context.Context) error {
	err := w.reload(ctx)

	w.mu.Lock()
	now := time.Now()
	w.health.LastCheck = now

	if err == nil {
		if w.health.Status == StatusStale {
			w.logger.Info("snapshot source recovered")
		}
		w.health.Status = StatusFresh
		w.health.ConsecutiveFails = 0
		w.health.LastError = ""
		w.health.LastLoaded = now
		w.mu.Unlock()
		return nil
	}

	w.health.ConsecutiveFails++
	w.health.LastError = err.Error()
	w.logger.WithError(err).WithField("attempt", w.health.ConsecutiveFails).Warn("snapshot refresh failed")

	var notify func(error)
	if w.health.ConsecutiveFails >= w.maxFailures && w.health.Status != StatusStale {
		w.health.Status = StatusStale
		notify = w.onStale
	}
	w.mu.Unlock()

	// callback runs without the lock held
	if notify != nil {
		notify(err)
	}
	return err
}

// Health returns a copy of the current source health.
func (w *Watcher) Health() SourceHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.health
}

// IsStale reports whether the source has failed too often in a row.
func (w *Watcher) IsStale() bool {
	return w.Health().Status == StatusStale
}
