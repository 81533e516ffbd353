// Package notify turns stored check transitions into outbound
// notifications. Each sink carries its own resolved policy; the
// manager fans a context out to every sink whose policy accepts it.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"servermon/internal/config"
	"servermon/internal/domain"
)

// Context carries everything a sink needs to render a notification.
// Counters reflect the record after the triggering result was applied;
// PreviousStatus, NotificationSent and LastNotification reflect the
// record before it.
type Context struct {
	Endpoint            string
	CheckType           string
	Event               config.NotificationEvent
	Status              domain.CheckStatus
	PreviousStatus      domain.CheckStatus
	ConsecutiveFailures int
	FailureCount        int
	NotificationSent    bool
	LastNotification    *time.Time
	ResponseTime        float64
	ErrorMessage        string
	Details             map[string]any
	Timestamp           time.Time
}

// Failed reports whether this context describes a failure event.
func (c *Context) Failed() bool { return c.Event == config.EventFailure }

// BuildContext derives the notifiable event from a result and the
// status records surrounding it. It returns nil when nothing happened
// worth telling anyone about: a success with no failure to recover
// from.
func BuildContext(r *domain.CheckResult, prev, curr *domain.EndpointStatus) *Context {
	c := &Context{
		Endpoint:     r.EndpointName,
		CheckType:    r.CheckType,
		Status:       r.Status,
		ResponseTime: r.ResponseTime,
		ErrorMessage: r.ErrorMessage,
		Details:      r.Details,
		Timestamp:    r.Timestamp,
	}
	if prev != nil {
		c.PreviousStatus = prev.CurrentStatus
		c.NotificationSent = prev.NotificationSent
		c.LastNotification = prev.LastNotification
	}
	if curr != nil {
		c.ConsecutiveFailures = curr.ConsecutiveFailures
		c.FailureCount = curr.FailureCount
	}
	switch {
	case r.Status.IsFailure():
		c.Event = config.EventFailure
	case prev != nil && prev.CurrentStatus.IsFailure():
		c.Event = config.EventRecovery
	default:
		return nil
	}
	return c
}

// ShouldNotify applies a sink policy to an event. Recoveries pass as
// soon as the event filter admits them; failures additionally have to
// clear the consecutive-failure threshold and, when suppression is on,
// must not already have been announced.
func ShouldNotify(c *Context, p config.NotificationPolicy) bool {
	if c == nil || !p.Enabled || !p.Allows(c.Event) {
		return false
	}
	if c.Event == config.EventRecovery {
		return true
	}
	if c.ConsecutiveFailures < p.FailureThreshold {
		return false
	}
	if p.SuppressRepeated && c.NotificationSent {
		return false
	}
	return true
}

// Notifier is a single delivery sink.
type Notifier interface {
	Name() string
	Policy() config.NotificationPolicy
	Send(ctx context.Context, c *Context) error
}

// StatusMarker records that a failure was announced so suppression can
// hold until the endpoint recovers.
type StatusMarker interface {
	MarkNotificationSent(ctx context.Context, name string, at time.Time) error
}

// Manager fans events out to its sinks.
type Manager struct {
	notifiers []Notifier
	marks     StatusMarker
	log       *zap.Logger
}

func NewManager(marks StatusMarker, log *zap.Logger, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, marks: marks, log: log}
}

// Dispatch delivers the event to every sink whose policy accepts it,
// concurrently, and waits for all of them. A sink failure is logged
// and never blocks the others. The endpoint is marked as notified only
// when the event was a failure and at least one sink delivered.
func (m *Manager) Dispatch(ctx context.Context, c *Context) {
	if c == nil {
		return
	}
	var eligible []Notifier
	for _, n := range m.notifiers {
		if ShouldNotify(c, n.Policy()) {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return
	}

	var (
		wg   sync.WaitGroup
		sent atomic.Int32
	)
	for _, n := range eligible {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, c); err != nil {
				m.log.Warn("notification_failed",
					zap.String("notifier", n.Name()),
					zap.String("endpoint", c.Endpoint),
					zap.String("event", string(c.Event)),
					zap.Error(err))
				return
			}
			sent.Add(1)
			m.log.Info("notification_sent",
				zap.String("notifier", n.Name()),
				zap.String("endpoint", c.Endpoint),
				zap.String("event", string(c.Event)))
		}(n)
	}
	wg.Wait()

	if sent.Load() > 0 && c.Failed() {
		if err := m.marks.MarkNotificationSent(ctx, c.Endpoint, time.Now().UTC()); err != nil {
			m.log.Warn("notification_mark_failed",
				zap.String("endpoint", c.Endpoint),
				zap.Error(err))
		}
	}
}
