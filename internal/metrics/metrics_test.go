package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"servermon/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func res(status domain.CheckStatus, rt float64) *domain.CheckResult {
	return &domain.CheckResult{EndpointName: "web", CheckType: "http", Status: status, ResponseTime: rt}
}

func TestRecordCheck_Success(t *testing.T) {
	r := NewRecorder()
	r.RecordCheck(res(domain.StatusSuccess, 0.05))

	if v := counterValue(t, r.checks.WithLabelValues("web", "success")); v != 1 {
		t.Fatalf("want 1 check, got %v", v)
	}
	if v := gaugeValue(t, r.up.WithLabelValues("web")); v != 1 {
		t.Fatalf("want up=1, got %v", v)
	}
}

func TestRecordCheck_OnlyErrorStatusCountsAsError(t *testing.T) {
	r := NewRecorder()
	r.RecordCheck(res(domain.StatusFailure, 0))
	r.RecordCheck(res(domain.StatusError, 0))

	if v := counterValue(t, r.errors.WithLabelValues("web")); v != 1 {
		t.Fatalf("want 1 error, got %v", v)
	}
	if v := counterValue(t, r.checks.WithLabelValues("web", "failure")); v != 1 {
		t.Fatalf("want 1 failure check, got %v", v)
	}
	if v := gaugeValue(t, r.up.WithLabelValues("web")); v != 0 {
		t.Fatalf("want up=0, got %v", v)
	}
}

func TestRecordCheck_UpFollowsLatestResult(t *testing.T) {
	r := NewRecorder()
	r.RecordCheck(res(domain.StatusFailure, 0))
	r.RecordCheck(res(domain.StatusSuccess, 0.02))
	if v := gaugeValue(t, r.up.WithLabelValues("web")); v != 1 {
		t.Fatalf("want up=1 after recovery, got %v", v)
	}
	r.RecordCheck(res(domain.StatusFailure, 0))
	if v := gaugeValue(t, r.up.WithLabelValues("web")); v != 0 {
		t.Fatalf("want up=0 after failure, got %v", v)
	}
}

func TestRecordCheck_ObservesDurationOnlyWhenPresent(t *testing.T) {
	r := NewRecorder()
	r.RecordCheck(res(domain.StatusSuccess, 0.25))
	r.RecordCheck(res(domain.StatusError, 0))

	var m dto.Metric
	if err := r.duration.WithLabelValues("web").(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("want 1 observation, got %d", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.RecordCheck(res(domain.StatusSuccess, 0.01))
	if h := r.Handler(); h == nil {
		t.Fatal("nil recorder must still serve a handler")
	}
}
