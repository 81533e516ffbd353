package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

func (e *Executor) checkTCP(ctx context.Context, name string, cfg *config.TCPCheck) *domain.CheckResult {
	const kind = "tcp"
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout.Std())
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(cctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		class := classify(err)
		if class == faultTimeout {
			return newResult(name, kind, domain.StatusFailure, elapsed,
				fmt.Sprintf("tcp connection timeout after %s", cfg.Timeout),
				map[string]any{"host": cfg.Host, "port": cfg.Port, "timeout": cfg.Timeout.String()})
		}
		return newResult(name, kind, domain.StatusError, elapsed,
			fmt.Sprintf("connection failed: %v", err),
			map[string]any{"host": cfg.Host, "port": cfg.Port, "error_type": errorType(class, err)})
	}
	_ = conn.Close()

	return newResult(name, kind, domain.StatusSuccess, elapsed, "",
		map[string]any{"host": cfg.Host, "port": cfg.Port})
}
