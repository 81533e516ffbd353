package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"servermon/internal/config"
	"servermon/internal/domain"
	"servermon/internal/metrics"
	"servermon/internal/notify"
	"servermon/internal/probe"
	"servermon/internal/repo"
	"servermon/internal/repo/memory"
	"servermon/internal/repo/postgres"
	"servermon/internal/repo/sqlite"
)

// ShutdownLevel orders the escalation steps. Levels only ever go up.
type ShutdownLevel int32

const (
	ShutdownNone ShutdownLevel = iota
	// ShutdownGraceful stops scheduling and lets in-flight checks
	// finish.
	ShutdownGraceful
	// ShutdownForced additionally cancels in-flight checks.
	ShutdownForced
)

const (
	drainTimeout = 5 * time.Second
	forceTimeout = 2 * time.Second
	closeTimeout = 2 * time.Second
)

// Daemon wires the store, the probe executor, the notification sinks
// and one monitor per enabled endpoint, and owns their shutdown.
type Daemon struct {
	cfg      *config.Config
	log      *zap.Logger
	store    repo.ResultStore
	exec     *probe.Executor
	monitors []*EndpointMonitor
	byName   map[string]*EndpointMonitor

	checkCtx     context.Context
	cancelChecks context.CancelFunc
	level        atomic.Int32
	running      atomic.Bool
	forced       chan struct{}
	forceOnce    sync.Once
}

// NewDaemon builds the full monitoring assembly. Notification policies
// for every endpoint are resolved here; an enabled but incomplete sink
// is a startup error, never a runtime one. ctx bounds the store
// connection attempt and parents every check the daemon will ever run.
func NewDaemon(ctx context.Context, cfg *config.Config, log *zap.Logger, recorder *metrics.Recorder) (*Daemon, error) {
	store, err := buildStore(ctx, cfg.Global.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client := &http.Client{}
	exec := probe.NewExecutor(client)
	gate := semaphore.NewWeighted(int64(cfg.Global.MaxConcurrentChecks))

	checkCtx, cancel := context.WithCancel(ctx)
	d := &Daemon{
		cfg:          cfg,
		log:          log,
		store:        store,
		exec:         exec,
		byName:       make(map[string]*EndpointMonitor),
		checkCtx:     checkCtx,
		cancelChecks: cancel,
		forced:       make(chan struct{}),
	}

	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		email, err := config.ResolveEmail(ep.Email, cfg.Global.Email)
		if err != nil {
			store.Close()
			cancel()
			return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		webhook, err := config.ResolveWebhook(ep.Webhook, cfg.Global.Webhook)
		if err != nil {
			store.Close()
			cancel()
			return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		if !ep.IsEnabled() {
			log.Info("endpoint_disabled", zap.String("endpoint", ep.Name))
			continue
		}
		var sinks []notify.Notifier
		if email != nil {
			sinks = append(sinks, notify.NewEmail(email))
		}
		if webhook != nil {
			sinks = append(sinks, notify.NewWebhook(webhook, client))
		}
		mgr := notify.NewManager(store, log.Named("notify"), sinks...)
		m := New(ep, exec, store, mgr, gate, recorder, log.Named("monitor"))
		d.monitors = append(d.monitors, m)
		d.byName[ep.Name] = m
	}
	return d, nil
}

func buildStore(ctx context.Context, db config.DatabaseConfig) (repo.ResultStore, error) {
	switch db.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(ctx, db.Path)
	case "postgres":
		return postgres.Open(ctx, db.URL)
	default:
		return nil, fmt.Errorf("unknown database type %q", db.Type)
	}
}

// Start launches every monitor. It does not block.
func (d *Daemon) Start() {
	d.running.Store(true)
	for _, m := range d.monitors {
		m.Start(d.checkCtx)
	}
	d.log.Info("daemon_started",
		zap.Int("endpoints", len(d.cfg.Endpoints)),
		zap.Int("monitors", len(d.monitors)),
		zap.Int("max_concurrent_checks", d.cfg.Global.MaxConcurrentChecks))
}

// Level reports the highest shutdown level requested so far.
func (d *Daemon) Level() ShutdownLevel { return ShutdownLevel(d.level.Load()) }

// RequestShutdown raises the shutdown level. Lower or equal requests
// are ignored, so repeated signals only ever escalate.
func (d *Daemon) RequestShutdown(level ShutdownLevel) {
	for {
		cur := d.level.Load()
		if int32(level) <= cur {
			return
		}
		if d.level.CompareAndSwap(cur, int32(level)) {
			break
		}
	}
	if level >= ShutdownGraceful {
		for _, m := range d.monitors {
			m.Stop()
		}
	}
	if level >= ShutdownForced {
		d.forceOnce.Do(func() {
			d.log.Warn("forced_shutdown")
			d.cancelChecks()
			close(d.forced)
		})
	}
}

// Stop drains the monitors and closes shared resources. The graceful
// drain is bounded; when it expires, or when a forced shutdown is
// requested while draining, in-flight checks are cancelled and given a
// short grace before being abandoned.
func (d *Daemon) Stop(ctx context.Context) error {
	d.RequestShutdown(ShutdownGraceful)

	drained := make(chan struct{})
	go func() {
		for _, m := range d.monitors {
			<-m.Done()
		}
		close(drained)
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-d.forced:
		d.awaitDrain(drained)
	case <-timer.C:
		d.log.Warn("drain_timeout", zap.Duration("after", drainTimeout))
		d.RequestShutdown(ShutdownForced)
		d.awaitDrain(drained)
	case <-ctx.Done():
		d.RequestShutdown(ShutdownForced)
		d.awaitDrain(drained)
	}

	var errs error
	d.exec.Close()

	// Close can hang on a wedged database, so it gets a bound too.
	closed := make(chan error, 1)
	go func() { closed <- d.store.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close store: %w", err))
		}
	case <-time.After(closeTimeout):
		errs = multierr.Append(errs, errors.New("store close timed out"))
	}

	d.running.Store(false)
	d.log.Info("daemon_stopped")
	return errs
}

func (d *Daemon) awaitDrain(drained <-chan struct{}) {
	select {
	case <-drained:
	case <-time.After(forceTimeout):
		d.log.Error("monitors_abandoned", zap.Duration("after", forceTimeout))
	}
}

// ---- Status surface ----

type DaemonInfo struct {
	Running        bool `json:"running"`
	TotalEndpoints int  `json:"total_endpoints"`
	ActiveMonitors int  `json:"active_monitors"`
}

type EndpointInfo struct {
	Type     string                 `json:"type"`
	Interval string                 `json:"interval"`
	Enabled  bool                   `json:"enabled"`
	Monitor  string                 `json:"monitor,omitempty"`
	Status   *domain.EndpointStatus `json:"status,omitempty"`
}

type StatusSnapshot struct {
	Daemon    DaemonInfo              `json:"daemon"`
	Endpoints map[string]EndpointInfo `json:"endpoints"`
}

// Status assembles the live view served over the health listener:
// every configured endpoint with its scheduler state and latest stored
// record.
func (d *Daemon) Status(ctx context.Context) (*StatusSnapshot, error) {
	statuses, err := d.store.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}

	active := 0
	for _, m := range d.monitors {
		if s := m.State(); s != StateIdle && s != StateStopped {
			active++
		}
	}

	snap := &StatusSnapshot{
		Daemon: DaemonInfo{
			Running:        d.running.Load(),
			TotalEndpoints: len(d.cfg.Endpoints),
			ActiveMonitors: active,
		},
		Endpoints: make(map[string]EndpointInfo, len(d.cfg.Endpoints)),
	}
	for i := range d.cfg.Endpoints {
		ep := &d.cfg.Endpoints[i]
		info := EndpointInfo{
			Type:     string(ep.Type),
			Interval: ep.Interval.String(),
			Enabled:  ep.IsEnabled(),
			Status:   statuses[ep.Name],
		}
		if m, ok := d.byName[ep.Name]; ok {
			info.Monitor = m.State().String()
		}
		snap.Endpoints[ep.Name] = info
	}
	return snap, nil
}

// Results returns recent stored results for one configured endpoint,
// newest first.
func (d *Daemon) Results(ctx context.Context, name string, limit int) ([]*domain.CheckResult, error) {
	known := false
	for i := range d.cfg.Endpoints {
		if d.cfg.Endpoints[i].Name == name {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("endpoint %q: %w", name, repo.ErrNotFound)
	}
	return d.store.Results(ctx, name, limit)
}
