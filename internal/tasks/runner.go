package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/events"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/metrics"
	"github.com/conneroisu/assetforge/internal/paths"
)

// State is the lifecycle state of a task.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Runner serializes the runs of one task. Triggers that arrive while a run
// is in flight collapse into exactly one follow-up run.
type Runner struct {
	task    Task
	logger  logging.Logger
	broker  *events.Broker
	metrics *metrics.Metrics

	runMu sync.Mutex

	mu      sync.Mutex
	state   State
	last    Result
	lastErr error
	pending bool
	dirty   bool
	idle    chan struct{}
}

// NewRunner wraps task. broker and m may be nil.
func NewRunner(task Task, logger logging.Logger, broker *events.Broker, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		task:    task,
		logger:  logger.WithComponent("runner").With("category", string(task.Category())),
		broker:  broker,
		metrics: m,
	}
}

// Category returns the category of the wrapped task.
func (r *Runner) Category() paths.Category { return r.task.Category() }

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Last returns the outcome of the most recent finished run.
func (r *Runner) Last() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastErr
}

// Run executes the task once, waiting for any run in flight to finish
// first. A panic in the task becomes an internal error.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runID := uuid.NewString()
	log := r.logger.With("run_id", runID)
	perf := logging.StartOperation(log, "task")

	r.setState(StateRunning)
	log.Debug(ctx, "Task started")

	func() {
		defer func() {
			if p := recover(); p != nil {
				err = ferrors.NewInternalError(ferrors.ErrCodeTaskPanic,
					fmt.Sprintf("task panicked: %v", p), nil).WithTask(string(r.Category()))
			}
		}()
		res, err = r.task.Run(ctx)
	}()

	elapsed := perf.Elapsed()
	r.mu.Lock()
	r.last, r.lastErr = res, err
	if err != nil {
		r.state = StateFailed
	} else {
		r.state = StateSucceeded
	}
	r.mu.Unlock()

	if err != nil {
		perf.EndWithError(ctx, err, "written", len(res.Written))
	} else {
		perf.End(ctx, "written", len(res.Written), "changed", len(res.Changed))
	}
	r.metrics.ObserveTask(string(r.Category()), elapsed, len(res.Changed), err)

	if r.broker != nil {
		r.broker.Publish(events.Event{
			RunID:    runID,
			Category: r.Category(),
			Paths:    res.Changed,
			Reload:   events.ReloadFor(r.Category()),
			Err:      err,
			Duration: elapsed,
		})
	}
	return res, err
}

// Trigger schedules a run in the background. While a triggered run is in
// flight, further triggers mark the task dirty and exactly one more run
// follows. Failures are logged by Run and otherwise dropped.
func (r *Runner) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.pending {
		r.dirty = true
		r.mu.Unlock()
		return
	}
	r.pending = true
	r.idle = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	for {
		if ctx.Err() == nil {
			_, _ = r.Run(ctx)
		}

		r.mu.Lock()
		if !r.dirty || ctx.Err() != nil {
			r.pending, r.dirty = false, false
			close(r.idle)
			r.mu.Unlock()
			return
		}
		r.dirty = false
		r.mu.Unlock()
	}
}

// Wait blocks until no triggered run is pending.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle, pending := r.idle, r.pending
	r.mu.Unlock()
	if !pending {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Debounced delays triggers of a runner until window has passed without a
// new one. A zero window triggers immediately.
type Debounced struct {
	runner *Runner
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebounced wraps runner.
func NewDebounced(runner *Runner, window time.Duration) *Debounced {
	return &Debounced{runner: runner, window: window}
}

// Runner returns the wrapped runner.
func (d *Debounced) Runner() *Runner { return d.runner }

// Trigger schedules a trigger of the runner.
func (d *Debounced) Trigger(ctx context.Context) {
	if d.window <= 0 {
		d.runner.Trigger(ctx)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() { d.runner.Trigger(ctx) })
}

// Stop cancels a trigger that has not fired yet.
func (d *Debounced) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
