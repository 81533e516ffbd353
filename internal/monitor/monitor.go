// Package monitor runs the check loops. Each endpoint gets its own
// EndpointMonitor goroutine; the Daemon owns their shared resources and
// lifecycle.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"servermon/internal/config"
	"servermon/internal/domain"
	"servermon/internal/metrics"
	"servermon/internal/notify"
	"servermon/internal/repo"
)

// State is the observable phase of a monitor loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner executes one check against one endpoint.
type Runner interface {
	Execute(ctx context.Context, spec *config.Endpoint) *domain.CheckResult
}

// EndpointMonitor owns the loop for a single endpoint and is the only
// writer of that endpoint's status record. The interval is measured
// from the end of one cycle to the start of the next, so a slow check
// never overlaps itself.
type EndpointMonitor struct {
	spec     *config.Endpoint
	runner   Runner
	store    repo.ResultStore
	dispatch *notify.Manager
	gate     *semaphore.Weighted
	recorder *metrics.Recorder
	log      *zap.Logger

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(spec *config.Endpoint, runner Runner, store repo.ResultStore, dispatch *notify.Manager, gate *semaphore.Weighted, recorder *metrics.Recorder, log *zap.Logger) *EndpointMonitor {
	return &EndpointMonitor{
		spec:     spec,
		runner:   runner,
		store:    store,
		dispatch: dispatch,
		gate:     gate,
		recorder: recorder,
		log: log.With(
			zap.String("endpoint", spec.Name),
			zap.String("check", string(spec.Type))),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (m *EndpointMonitor) Name() string { return m.spec.Name }

func (m *EndpointMonitor) State() State { return State(m.state.Load()) }

// Done is closed when the loop has fully exited.
func (m *EndpointMonitor) Done() <-chan struct{} { return m.done }

// Start launches the loop. The first check runs immediately. Cancelling
// ctx aborts the in-flight check; Stop lets it finish.
func (m *EndpointMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop ends scheduling after the current cycle completes. Safe to call
// more than once.
func (m *EndpointMonitor) Stop() {
	m.stopOnce.Do(func() {
		m.state.Store(int32(StateStopping))
		close(m.stop)
	})
}

func (m *EndpointMonitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.state.Store(int32(StateStopped))

	// The gate waits on its own context so a queued acquisition is
	// abandoned on Stop instead of holding the loop through the drain.
	gateCtx, cancelGate := context.WithCancel(ctx)
	defer cancelGate()
	go func() {
		select {
		case <-m.stop:
			cancelGate()
		case <-gateCtx.Done():
		}
	}()

	interval := m.spec.Interval.Std()
	m.log.Info("monitor_started", zap.Duration("interval", interval))
	defer m.log.Info("monitor_stopped")

	for {
		m.runCycle(ctx, gateCtx)
		if m.halted(ctx) {
			return
		}
		m.state.Store(int32(StateSleeping))
		timer := time.NewTimer(interval)
		select {
		case <-m.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *EndpointMonitor) halted(ctx context.Context) bool {
	select {
	case <-m.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runCycle performs one gated check and feeds the result through
// metrics, storage and notification. A panic is contained so one bad
// cycle cannot kill the loop.
func (m *EndpointMonitor) runCycle(ctx, gateCtx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("check_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	m.state.Store(int32(StateRunning))
	if err := m.gate.Acquire(gateCtx, 1); err != nil {
		return
	}
	defer m.gate.Release(1)

	res := m.runner.Execute(ctx, m.spec)
	m.recorder.RecordCheck(res)
	m.log.Debug("check_completed",
		zap.String("status", string(res.Status)),
		zap.Float64("response_time", res.ResponseTime),
		zap.String("error", res.ErrorMessage))

	// Read the prior record before the transition is applied; this loop
	// is the only writer for the endpoint, so the pair is consistent.
	prev, err := m.store.Status(ctx, m.spec.Name)
	if err != nil {
		m.log.Error("status_read_failed", zap.Error(err))
		return
	}
	curr, err := m.store.Store(ctx, res)
	if err != nil {
		m.log.Error("result_store_failed", zap.Error(err))
		return
	}
	if m.dispatch != nil {
		m.dispatch.Dispatch(ctx, notify.BuildContext(res, prev, curr))
	}
}
