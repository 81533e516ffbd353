package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

func (e *Executor) checkTLS(ctx context.Context, name string, cfg *config.TLSCheck) *domain.CheckResult {
	const kind = "tls"
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Std())
	defer cancel()

	d := tls.Dialer{
		NetDialer: &net.Dialer{},
		// Verification is skipped so expired or not-yet-valid leaves can
		// still be retrieved and reported below instead of failing the
		// handshake opaquely.
		Config: &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true},
	}
	conn, err := d.DialContext(cctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		class := classify(err)
		if class == faultTimeout {
			return newResult(name, kind, domain.StatusFailure, elapsed,
				fmt.Sprintf("tls connection timeout after %s", cfg.Timeout),
				map[string]any{"host": cfg.Host, "port": cfg.Port, "timeout": cfg.Timeout.String()})
		}
		return newResult(name, kind, domain.StatusError, elapsed,
			fmt.Sprintf("tls connection failed: %v", err),
			map[string]any{"host": cfg.Host, "port": cfg.Port, "error_type": errorType(class, err)})
	}
	defer conn.Close()

	tconn, ok := conn.(*tls.Conn)
	if !ok || len(tconn.ConnectionState().PeerCertificates) == 0 {
		return newResult(name, kind, domain.StatusError, elapsed,
			"unable to retrieve certificate from connection",
			map[string]any{"host": cfg.Host, "port": cfg.Port})
	}
	cert := tconn.ConnectionState().PeerCertificates[0]

	now := time.Now().UTC()
	days := int(time.Until(cert.NotAfter).Hours() / 24)
	details := map[string]any{
		"host":              cfg.Host,
		"port":              cfg.Port,
		"not_valid_before":  cert.NotBefore.UTC().Format(time.RFC3339),
		"not_valid_after":   cert.NotAfter.UTC().Format(time.RFC3339),
		"days_until_expiry": days,
		"subject":           cert.Subject.String(),
		"issuer":            cert.Issuer.String(),
	}

	switch {
	case now.Before(cert.NotBefore):
		return newResult(name, kind, domain.StatusFailure, elapsed,
			"certificate is not yet valid", details)
	case now.After(cert.NotAfter):
		return newResult(name, kind, domain.StatusFailure, elapsed,
			"certificate has expired", details)
	case days <= *cfg.CertExpiryWarningDays:
		details["warning_threshold"] = *cfg.CertExpiryWarningDays
		return newResult(name, kind, domain.StatusFailure, elapsed,
			fmt.Sprintf("certificate expires in %d days", days), details)
	default:
		return newResult(name, kind, domain.StatusSuccess, elapsed, "", details)
	}
}
