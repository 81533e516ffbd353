package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

func insecureVariant(base *http.Client) *http.Client {
	t, ok := base.Transport.(*http.Transport)
	if !ok {
		t = http.DefaultTransport.(*http.Transport)
	}
	t = t.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	t.TLSClientConfig.InsecureSkipVerify = true
	c := *base
	c.Transport = t
	return &c
}

// clientFor applies the per-endpoint redirect and TLS-verify policy on
// top of the shared client.
func (e *Executor) clientFor(cfg *config.HTTPCheck) *http.Client {
	c := *e.client
	if !*cfg.VerifySSL {
		c = *e.insecure
	}
	if !*cfg.FollowRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &c
}

func (e *Executor) checkHTTP(ctx context.Context, name string, cfg *config.HTTPCheck) *domain.CheckResult {
	const kind = "http"

	// A malformed pattern is a probe fault, not a target fault; reject it
	// before touching the network.
	var re *regexp.Regexp
	if cfg.ContentMatch != "" && cfg.ContentRegex {
		var err error
		re, err = regexp.Compile(cfg.ContentMatch)
		if err != nil {
			return newResult(name, kind, domain.StatusError, 0,
				fmt.Sprintf("invalid content pattern: %v", err),
				map[string]any{"url": cfg.URL, "error_type": "pattern", "content_match": cfg.ContentMatch})
		}
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, cfg.Method, cfg.URL, nil)
	if err != nil {
		return newResult(name, kind, domain.StatusError, time.Since(start),
			fmt.Sprintf("build request: %v", err),
			map[string]any{"url": cfg.URL, "error_type": fmt.Sprintf("%T", err)})
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.clientFor(cfg).Do(req)
	if err != nil {
		return httpErrorResult(name, cfg, time.Since(start), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpErrorResult(name, cfg, time.Since(start), err)
	}
	elapsed := time.Since(start)

	if !cfg.ExpectedStatus.Contains(resp.StatusCode) {
		return newResult(name, kind, domain.StatusFailure, elapsed,
			fmt.Sprintf("HTTP %d: expected %s", resp.StatusCode, cfg.ExpectedStatus),
			map[string]any{
				"status_code":     resp.StatusCode,
				"expected_status": []int(cfg.ExpectedStatus),
				"url":             cfg.URL,
				"method":          cfg.Method,
			})
	}

	if cfg.ContentMatch != "" {
		matched := false
		if re != nil {
			matched = re.Match(body)
		} else {
			matched = strings.Contains(string(body), cfg.ContentMatch)
		}
		if !matched {
			return newResult(name, kind, domain.StatusFailure, elapsed,
				fmt.Sprintf("content %q not found in response", cfg.ContentMatch),
				map[string]any{
					"status_code":   resp.StatusCode,
					"content_match": cfg.ContentMatch,
					"content_regex": cfg.ContentRegex,
					"url":           cfg.URL,
				})
		}
	}

	return newResult(name, kind, domain.StatusSuccess, elapsed, "",
		map[string]any{
			"status_code":    resp.StatusCode,
			"url":            cfg.URL,
			"method":         cfg.Method,
			"content_length": len(body),
		})
}

// httpErrorResult folds transport faults into the taxonomy: timeouts and
// refused connections mean the target is unhealthy, resolver and TLS
// faults mean health could not be evaluated.
func httpErrorResult(name string, cfg *config.HTTPCheck, elapsed time.Duration, err error) *domain.CheckResult {
	class := classify(err)
	details := map[string]any{"url": cfg.URL, "error_type": errorType(class, err)}
	switch class {
	case faultTimeout:
		details["timeout"] = cfg.Timeout.String()
		return newResult(name, "http", domain.StatusFailure, elapsed,
			fmt.Sprintf("http request timeout after %s", cfg.Timeout), details)
	case faultConn:
		return newResult(name, "http", domain.StatusFailure, elapsed,
			fmt.Sprintf("connection error: %v", err), details)
	default:
		return newResult(name, "http", domain.StatusError, elapsed,
			fmt.Sprintf("request failed: %v", err), details)
	}
}
