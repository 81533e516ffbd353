package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CheckType is the closed set of probe kinds.
type CheckType string

const (
	CheckHTTP CheckType = "http"
	CheckTCP  CheckType = "tcp"
	CheckTLS  CheckType = "tls"
)

// Duration accepts Go duration strings ("30s", "24h") and, for
// hand-written files, bare integers meaning seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\" or integer seconds", value.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
func (d Duration) String() string     { return time.Duration(d).String() }

// StatusList is the accepted HTTP status set; YAML may give one code or
// a list.
type StatusList []int

func (l *StatusList) UnmarshalYAML(value *yaml.Node) error {
	var one int
	if err := value.Decode(&one); err == nil {
		*l = StatusList{one}
		return nil
	}
	var many []int
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("line %d: expected_status must be an integer or a list of integers", value.Line)
	}
	*l = StatusList(many)
	return nil
}

func (l StatusList) Contains(code int) bool {
	for _, c := range l {
		if c == code {
			return true
		}
	}
	return false
}

func (l StatusList) String() string {
	parts := make([]string, len(l))
	for i, c := range l {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}

type HTTPCheck struct {
	URL             string            `yaml:"url"`
	Method          string            `yaml:"method"`
	Headers         map[string]string `yaml:"headers"`
	Timeout         Duration          `yaml:"timeout"`
	ExpectedStatus  StatusList        `yaml:"expected_status"`
	ContentMatch    string            `yaml:"content_match"`
	ContentRegex    bool              `yaml:"content_regex"`
	FollowRedirects *bool             `yaml:"follow_redirects"`
	VerifySSL       *bool             `yaml:"verify_ssl"`
}

type TCPCheck struct {
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`
	Timeout Duration `yaml:"timeout"`
}

type TLSCheck struct {
	Host                  string   `yaml:"host"`
	Port                  int      `yaml:"port"`
	Timeout               Duration `yaml:"timeout"`
	CertExpiryWarningDays *int     `yaml:"cert_expiry_warning_days"`
}

// Endpoint is one monitoring target. The block matching Type must be set
// and no other. Read-only to the rest of the system once loaded.
type Endpoint struct {
	Name     string           `yaml:"name"`
	Type     CheckType        `yaml:"type"`
	Interval Duration         `yaml:"interval"`
	Enabled  *bool            `yaml:"enabled"`
	HTTP     *HTTPCheck       `yaml:"http,omitempty"`
	TCP      *TCPCheck        `yaml:"tcp,omitempty"`
	TLS      *TLSCheck        `yaml:"tls,omitempty"`
	Email    *EmailOverride   `yaml:"email_notifications,omitempty"`
	Webhook  *WebhookOverride `yaml:"webhook_notifications,omitempty"`
}

func (e *Endpoint) IsEnabled() bool { return e.Enabled != nil && *e.Enabled }

type HealthConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	AuthToken       string `yaml:"auth_token"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"` // 0 disables
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // memory, sqlite or postgres
	Path string `yaml:"path"` // sqlite file
	URL  string `yaml:"url"`  // postgres DSN
}

type Global struct {
	LogLevel            string           `yaml:"log_level"`
	LogFile             string           `yaml:"log_file"`
	LogMaxSizeMB        int              `yaml:"log_max_size_mb"`
	LogBackupCount      int              `yaml:"log_backup_count"`
	MaxConcurrentChecks int              `yaml:"max_concurrent_checks"`
	Health              HealthConfig     `yaml:"health"`
	Email               *EmailOverride   `yaml:"email_notifications"`
	Webhook             *WebhookOverride `yaml:"webhook_notifications"`
	Database            DatabaseConfig   `yaml:"database"`
}

type Config struct {
	Global    Global     `yaml:"global"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Load reads, parses, normalizes and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse rejects unknown keys so typos fail at startup instead of being
// silently ignored.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.normalize()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ptr[T any](v T) *T { return &v }

func (c *Config) normalize() {
	g := &c.Global
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.LogMaxSizeMB <= 0 {
		g.LogMaxSizeMB = 5
	}
	if g.LogBackupCount <= 0 {
		g.LogBackupCount = 3
	}
	if g.MaxConcurrentChecks <= 0 {
		g.MaxConcurrentChecks = 10
	}
	if g.Health.Enabled == nil {
		g.Health.Enabled = ptr(true)
	}
	if g.Health.Listen == "" {
		g.Health.Listen = ":8080"
	}
	if g.Database.Type == "" {
		g.Database.Type = "sqlite"
	}
	if g.Database.Type == "sqlite" && g.Database.Path == "" {
		g.Database.Path = "servermon.db"
	}
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		if e.Interval == 0 {
			e.Interval = Duration(60 * time.Second)
		}
		if e.Enabled == nil {
			e.Enabled = ptr(true)
		}
		if h := e.HTTP; h != nil {
			h.Method = strings.ToUpper(h.Method)
			if h.Method == "" {
				h.Method = "GET"
			}
			if h.Timeout == 0 {
				h.Timeout = Duration(30 * time.Second)
			}
			if len(h.ExpectedStatus) == 0 {
				h.ExpectedStatus = StatusList{200}
			}
			if h.FollowRedirects == nil {
				h.FollowRedirects = ptr(true)
			}
			if h.VerifySSL == nil {
				h.VerifySSL = ptr(true)
			}
		}
		if t := e.TCP; t != nil {
			if t.Timeout == 0 {
				t.Timeout = Duration(10 * time.Second)
			}
		}
		if t := e.TLS; t != nil {
			if t.Port == 0 {
				t.Port = 443
			}
			if t.Timeout == 0 {
				t.Timeout = Duration(10 * time.Second)
			}
			if t.CertExpiryWarningDays == nil {
				t.CertExpiryWarningDays = ptr(30)
			}
		}
	}
}

// applyEnv lets the SMTP secret stay out of the file.
func (c *Config) applyEnv() {
	pw := os.Getenv("SMTP_PASSWORD")
	if pw == "" {
		return
	}
	set := func(o *EmailOverride) {
		if o != nil && o.SMTP != nil && o.SMTP.Password == "" {
			o.SMTP.Password = pw
		}
	}
	set(c.Global.Email)
	for i := range c.Endpoints {
		set(c.Endpoints[i].Email)
	}
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true, "PATCH": true,
}

func (c *Config) Validate() error {
	switch c.Global.Database.Type {
	case "memory", "sqlite":
	case "postgres":
		if c.Global.Database.URL == "" {
			return fmt.Errorf("database type postgres requires a url")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Global.Database.Type)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint must be configured")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		if e.Name == "" {
			return fmt.Errorf("endpoint %d: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("endpoint %q: duplicate name", e.Name)
		}
		seen[e.Name] = true
		if err := e.validate(); err != nil {
			return fmt.Errorf("endpoint %q: %w", e.Name, err)
		}
	}
	return nil
}

func (e *Endpoint) validate() error {
	if e.Interval.Std() <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	blocks := 0
	for _, set := range []bool{e.HTTP != nil, e.TCP != nil, e.TLS != nil} {
		if set {
			blocks++
		}
	}
	if blocks > 1 {
		return fmt.Errorf("only one of http/tcp/tls may be set")
	}
	switch e.Type {
	case CheckHTTP:
		if e.HTTP == nil {
			return fmt.Errorf("http block is required for type http")
		}
		return e.HTTP.validate()
	case CheckTCP:
		if e.TCP == nil {
			return fmt.Errorf("tcp block is required for type tcp")
		}
		return e.TCP.validate()
	case CheckTLS:
		if e.TLS == nil {
			return fmt.Errorf("tls block is required for type tls")
		}
		return e.TLS.validate()
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown check type %q", e.Type)
	}
}

func (c *HTTPCheck) validate() error {
	if c.URL == "" {
		return fmt.Errorf("http url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("http url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("http url must use http or https, got %q", u.Scheme)
	}
	if !httpMethods[c.Method] {
		return fmt.Errorf("unsupported http method %q", c.Method)
	}
	if c.Timeout.Std() <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	for _, s := range c.ExpectedStatus {
		if s < 100 || s > 599 {
			return fmt.Errorf("expected_status %d out of range", s)
		}
	}
	return nil
}

func (c *TCPCheck) validate() error {
	if c.Host == "" {
		return fmt.Errorf("tcp host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("tcp port %d out of range", c.Port)
	}
	if c.Timeout.Std() <= 0 {
		return fmt.Errorf("tcp timeout must be positive")
	}
	return nil
}

func (c *TLSCheck) validate() error {
	if c.Host == "" {
		return fmt.Errorf("tls host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("tls port %d out of range", c.Port)
	}
	if c.Timeout.Std() <= 0 {
		return fmt.Errorf("tls timeout must be positive")
	}
	if *c.CertExpiryWarningDays < 0 {
		return fmt.Errorf("cert_expiry_warning_days must not be negative")
	}
	return nil
}
