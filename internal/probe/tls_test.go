package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

func iptr(n int) *int { return &n }

func tlsEndpoint(port int) *config.Endpoint {
	return &config.Endpoint{
		Name: "cert",
		Type: config.CheckTLS,
		TLS: &config.TLSCheck{
			Host:                  "127.0.0.1",
			Port:                  port,
			Timeout:               config.Duration(2 * time.Second),
			CertExpiryWarningDays: iptr(30),
		},
	}
}

// startTLSServer serves a self-signed certificate with the given validity
// window on a loopback port and answers handshakes until the test ends.
func startTLSServer(t *testing.T, notBefore, notAfter time.Time) int {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "servermon.test"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if tc, ok := conn.(*tls.Conn); ok {
				tc.Handshake()
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestTLSCheck_Valid(t *testing.T) {
	now := time.Now()
	port := startTLSServer(t, now.Add(-time.Hour), now.Add(365*24*time.Hour))

	e := NewExecutor(nil)
	defer e.Close()
	out := e.Execute(context.Background(), tlsEndpoint(port))

	if out.Status != domain.StatusSuccess {
		t.Fatalf("want success, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if out.CheckType != "tls" || out.Details["port"] != port {
		t.Fatalf("envelope wrong: %+v", out)
	}
	if days := out.Details["days_until_expiry"].(int); days < 300 {
		t.Fatalf("want ~364 days until expiry, got %d", days)
	}
	if subj := out.Details["subject"].(string); !strings.Contains(subj, "servermon.test") {
		t.Fatalf("subject wrong: %q", subj)
	}
}

func TestTLSCheck_Expired(t *testing.T) {
	now := time.Now()
	port := startTLSServer(t, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	e := NewExecutor(nil)
	defer e.Close()
	out := e.Execute(context.Background(), tlsEndpoint(port))

	if out.Status != domain.StatusFailure {
		t.Fatalf("expired cert must be failure, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if out.ErrorMessage != "certificate has expired" {
		t.Fatalf("message wrong: %q", out.ErrorMessage)
	}
}

func TestTLSCheck_NotYetValid(t *testing.T) {
	now := time.Now()
	port := startTLSServer(t, now.Add(24*time.Hour), now.Add(48*time.Hour))

	e := NewExecutor(nil)
	defer e.Close()
	out := e.Execute(context.Background(), tlsEndpoint(port))

	if out.Status != domain.StatusFailure {
		t.Fatalf("not-yet-valid cert must be failure, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if out.ErrorMessage != "certificate is not yet valid" {
		t.Fatalf("message wrong: %q", out.ErrorMessage)
	}
}

func TestTLSCheck_ExpiringSoon(t *testing.T) {
	now := time.Now()
	port := startTLSServer(t, now.Add(-time.Hour), now.Add(10*24*time.Hour+time.Hour))

	e := NewExecutor(nil)
	defer e.Close()
	out := e.Execute(context.Background(), tlsEndpoint(port))

	if out.Status != domain.StatusFailure {
		t.Fatalf("expiring cert must be failure, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if !strings.HasPrefix(out.ErrorMessage, "certificate expires in") {
		t.Fatalf("message wrong: %q", out.ErrorMessage)
	}
	if out.Details["warning_threshold"] != 30 {
		t.Fatalf("want warning_threshold 30, got %v", out.Details)
	}
}

func TestTLSCheck_NonTLSPortIsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte("220 not tls\r\n"))
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	e := NewExecutor(nil)
	defer e.Close()
	out := e.Execute(context.Background(), tlsEndpoint(port))

	if out.Status != domain.StatusError {
		t.Fatalf("plaintext peer must be error, got %s (%s)", out.Status, out.ErrorMessage)
	}
	if !strings.HasPrefix(out.ErrorMessage, "tls connection failed") {
		t.Fatalf("message wrong: %q", out.ErrorMessage)
	}
}
