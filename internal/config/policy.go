package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type NotificationEvent string

const (
	EventFailure  NotificationEvent = "failure"
	EventRecovery NotificationEvent = "recovery"
	EventBoth     NotificationEvent = "both"
)

const (
	ConnectionStartTLS = "starttls"
	ConnectionSSL      = "ssl"
	ConnectionPlain    = "plain"
)

// PolicyOverride holds the per-sink decision fields as written in the
// file. Every field is optional; endpoint values win over global ones.
// Overrides are never used directly, only through Resolve*.
type PolicyOverride struct {
	Enabled          *bool               `yaml:"enabled"`
	Events           []NotificationEvent `yaml:"events"`
	FailureThreshold *int                `yaml:"failure_threshold"`
	SuppressRepeated *bool               `yaml:"suppress_repeated"`
}

type SMTPConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	ConnectionMethod string `yaml:"connection_method"` // starttls, ssl or plain
	From             string `yaml:"from_email"`
}

type WebhookTarget struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
}

type EmailOverride struct {
	PolicyOverride `yaml:",inline"`
	SMTP           *SMTPConfig `yaml:"smtp"`
	Recipients     []string    `yaml:"recipients"`
}

type WebhookOverride struct {
	PolicyOverride `yaml:",inline"`
	Webhook        *WebhookTarget `yaml:"webhook"`
}

// NotificationPolicy is a resolved, complete decision policy for one
// sink.
type NotificationPolicy struct {
	Enabled          bool
	Events           []NotificationEvent
	FailureThreshold int
	SuppressRepeated bool
}

// Allows reports whether the event filter covers e. "both" covers every
// event.
func (p NotificationPolicy) Allows(e NotificationEvent) bool {
	for _, ev := range p.Events {
		if ev == e || ev == EventBoth {
			return true
		}
	}
	return false
}

func (p NotificationPolicy) validate() error {
	if p.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", p.FailureThreshold)
	}
	for _, e := range p.Events {
		switch e {
		case EventFailure, EventRecovery, EventBoth:
		default:
			return fmt.Errorf("unknown notification event %q", e)
		}
	}
	return nil
}

// EmailSettings is a resolved email sink: decision policy plus complete
// transport configuration.
type EmailSettings struct {
	Policy     NotificationPolicy
	SMTP       SMTPConfig
	Recipients []string
}

// WebhookSettings is a resolved webhook sink.
type WebhookSettings struct {
	Policy  NotificationPolicy
	Webhook WebhookTarget
}

func resolvePolicy(override, global *PolicyOverride) NotificationPolicy {
	p := NotificationPolicy{
		Events:           []NotificationEvent{EventBoth},
		FailureThreshold: 1,
		SuppressRepeated: true,
	}
	apply := func(o *PolicyOverride) {
		if o == nil {
			return
		}
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		if len(o.Events) > 0 {
			p.Events = o.Events
		}
		if o.FailureThreshold != nil {
			p.FailureThreshold = *o.FailureThreshold
		}
		if o.SuppressRepeated != nil {
			p.SuppressRepeated = *o.SuppressRepeated
		}
	}
	apply(global)
	apply(override)
	return p
}

// ResolveEmail merges an endpoint override over the global defaults and
// returns complete settings, nil when the sink ends up disabled, or an
// error when it is enabled but incomplete. Resolution runs at startup;
// an error here is fatal, never a runtime condition.
func ResolveEmail(override, global *EmailOverride) (*EmailSettings, error) {
	var op, gp *PolicyOverride
	if override != nil {
		op = &override.PolicyOverride
	}
	if global != nil {
		gp = &global.PolicyOverride
	}
	p := resolvePolicy(op, gp)
	if !p.Enabled {
		return nil, nil
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("email notifications: %w", err)
	}
	var smtp *SMTPConfig
	var recipients []string
	if global != nil {
		smtp = global.SMTP
		recipients = global.Recipients
	}
	if override != nil {
		if override.SMTP != nil {
			smtp = override.SMTP
		}
		if len(override.Recipients) > 0 {
			recipients = override.Recipients
		}
	}
	if smtp == nil || smtp.Host == "" {
		return nil, errors.New("email notifications enabled but no smtp host configured")
	}
	s := *smtp
	if s.Port == 0 {
		s.Port = 587
	}
	s.ConnectionMethod = strings.ToLower(s.ConnectionMethod)
	if s.ConnectionMethod == "" {
		s.ConnectionMethod = ConnectionStartTLS
	}
	switch s.ConnectionMethod {
	case ConnectionStartTLS, ConnectionSSL, ConnectionPlain:
	default:
		return nil, fmt.Errorf("unknown smtp connection_method %q", s.ConnectionMethod)
	}
	if s.From == "" {
		return nil, errors.New("email notifications enabled but no from_email configured")
	}
	if len(recipients) == 0 {
		return nil, errors.New("email notifications enabled but no recipients configured")
	}
	return &EmailSettings{Policy: p, SMTP: s, Recipients: recipients}, nil
}

// ResolveWebhook is the webhook counterpart of ResolveEmail.
func ResolveWebhook(override, global *WebhookOverride) (*WebhookSettings, error) {
	var op, gp *PolicyOverride
	if override != nil {
		op = &override.PolicyOverride
	}
	if global != nil {
		gp = &global.PolicyOverride
	}
	p := resolvePolicy(op, gp)
	if !p.Enabled {
		return nil, nil
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("webhook notifications: %w", err)
	}
	var target *WebhookTarget
	if global != nil {
		target = global.Webhook
	}
	if override != nil && override.Webhook != nil {
		target = override.Webhook
	}
	if target == nil || target.URL == "" {
		return nil, errors.New("webhook notifications enabled but no webhook url configured")
	}
	t := *target
	t.Method = strings.ToUpper(t.Method)
	if t.Method == "" {
		t.Method = "POST"
	}
	if t.Timeout == 0 {
		t.Timeout = Duration(30 * time.Second)
	}
	return &WebhookSettings{Policy: p, Webhook: t}, nil
}
