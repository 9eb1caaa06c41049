package quietfocus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner drives the engine's tick loop on a background goroutine. The
// sleep interval is re-read from the policy store on every iteration,
// so interval changes take effect within one cycle.
//
// Stop is the owner's contract: it waits for the loop goroutine to
// observe the shutdown flag and exit, and only then runs the unmute-all
// fail-safe. The ordering prevents a race where a final tick re-mutes a
// process after cleanup.
type Runner struct {
	engine *Engine
	logger *slog.Logger

	stop     atomic.Bool
	wake     chan struct{}
	done     chan struct{}
	wakeOnce sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRunner creates a runner for the engine.
func NewRunner(engine *Engine) *Runner {
	return &Runner{
		engine: engine,
		logger: engine.logger,
		wake:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the poll loop. Starting twice returns ErrRunnerStarted.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRunnerStarted
	}
	r.started = true
	go r.loop()
	return nil
}

func (r *Runner) loop() {
	defer close(r.done)
	r.logger.Debug("poll loop started")
	for !r.stop.Load() {
		res := r.engine.Tick()
		if res.ForegroundChanged {
			r.logger.Debug("foreground changed",
				"pid", res.ForegroundPID,
				"muted", res.MutedCount,
				"sessions", res.ActiveSessions)
		}

		interval := r.engine.store.PollInterval()
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-r.wake:
			timer.Stop()
		}
	}
	r.logger.Debug("poll loop stopped")
}

// Stop shuts the loop down and runs the unmute-all fail-safe. It blocks
// until the loop goroutine has exited. Safe to call more than once;
// calling Stop before Start only runs the fail-safe.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	r.stop.Store(true)
	// Wake a possibly-sleeping loop so shutdown is prompt rather than
	// waiting out the poll timeout.
	r.wakeOnce.Do(func() { close(r.wake) })
	if started {
		<-r.done
	}
	r.engine.UnmuteAll()
}
