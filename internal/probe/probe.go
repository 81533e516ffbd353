package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

// Executor runs probes for the closed set of check kinds. The HTTP
// client is constructed once by the owner and injected; Close releases
// its idle connections at shutdown.
type Executor struct {
	client   *http.Client
	insecure *http.Client
}

func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{client: client, insecure: insecureVariant(client)}
}

func (e *Executor) Close() {
	e.client.CloseIdleConnections()
	e.insecure.CloseIdleConnections()
}

// Execute never returns an error to the caller. Every fault becomes a
// result with status failure (target unhealthy) or error (health could
// not be evaluated).
func (e *Executor) Execute(ctx context.Context, spec *config.Endpoint) *domain.CheckResult {
	switch spec.Type {
	case config.CheckHTTP:
		return e.checkHTTP(ctx, spec.Name, spec.HTTP)
	case config.CheckTCP:
		return e.checkTCP(ctx, spec.Name, spec.TCP)
	case config.CheckTLS:
		return e.checkTLS(ctx, spec.Name, spec.TLS)
	default:
		// unreachable with a validated config
		return newResult(spec.Name, string(spec.Type), domain.StatusError, 0,
			fmt.Sprintf("unknown check type %q", spec.Type), nil)
	}
}

func newResult(endpoint, checkType string, status domain.CheckStatus, elapsed time.Duration, msg string, details map[string]any) *domain.CheckResult {
	return &domain.CheckResult{
		EndpointName: endpoint,
		CheckType:    checkType,
		Status:       status,
		ResponseTime: elapsed.Seconds(),
		ErrorMessage: msg,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	}
}

type faultClass int

const (
	faultTimeout faultClass = iota
	faultDNS
	faultTLS
	faultConn
	faultOther
)

// classify maps a transport error onto the failure/error taxonomy shared
// by all three checks. DNS is inspected first because resolver faults
// arrive wrapped in *net.OpError.
func classify(err error) faultClass {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return faultDNS
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return faultTLS
	}
	var rhe tls.RecordHeaderError
	if errors.As(err, &rhe) {
		return faultTLS
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return faultTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return faultTimeout
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return faultConn
	}
	return faultOther
}

func errorType(class faultClass, err error) string {
	switch class {
	case faultTimeout:
		return "timeout"
	case faultDNS:
		return "dns"
	case faultTLS:
		return "tls"
	case faultConn:
		return "connection"
	default:
		return fmt.Sprintf("%T", err)
	}
}
