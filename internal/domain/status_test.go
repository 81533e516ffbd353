package domain

import (
	"testing"
	"time"
)

func result(status CheckStatus) *CheckResult {
	return &CheckResult{
		EndpointName: "ep",
		CheckType:    "http",
		Status:       status,
		Timestamp:    time.Now().UTC(),
	}
}

func TestApply_FirstSuccess(t *testing.T) {
	now := time.Now().UTC()
	rec := Apply(nil, result(StatusSuccess), now)

	if rec.EndpointName != "ep" || rec.CurrentStatus != StatusSuccess {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ConsecutiveFailures != 0 || rec.FailureCount != 0 {
		t.Fatalf("counts should be zero, got %+v", rec)
	}
	if rec.LastSuccess == nil || rec.LastFailure != nil {
		t.Fatalf("want last_success set and last_failure nil, got %+v", rec)
	}
	if rec.NotificationSent {
		t.Fatalf("notification_sent should start false")
	}
	if !rec.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at not applied: %v", rec.UpdatedAt)
	}
}

func TestApply_FirstFailure(t *testing.T) {
	rec := Apply(nil, result(StatusFailure), time.Now().UTC())

	if rec.CurrentStatus != StatusFailure {
		t.Fatalf("want failure, got %s", rec.CurrentStatus)
	}
	if rec.FailureCount != 1 || rec.ConsecutiveFailures != 1 {
		t.Fatalf("want counts 1/1, got %d/%d", rec.FailureCount, rec.ConsecutiveFailures)
	}
	if rec.LastFailure == nil || rec.LastSuccess != nil {
		t.Fatalf("want last_failure set and last_success nil, got %+v", rec)
	}
}

func TestApply_SequenceKeepsInvariants(t *testing.T) {
	seq := []CheckStatus{
		StatusSuccess, StatusFailure, StatusError, StatusFailure,
		StatusSuccess, StatusFailure, StatusSuccess,
	}
	var rec *EndpointStatus
	consecutive := 0
	total := 0
	for i, st := range seq {
		rec = Apply(rec, result(st), time.Now().UTC())
		if st == StatusSuccess {
			consecutive = 0
		} else {
			consecutive++
			total++
		}
		if rec.ConsecutiveFailures != consecutive {
			t.Fatalf("step %d (%s): want consecutive %d, got %d", i, st, consecutive, rec.ConsecutiveFailures)
		}
		if rec.FailureCount != total {
			t.Fatalf("step %d (%s): want total %d, got %d", i, st, total, rec.FailureCount)
		}
		// consecutive_failures is zero exactly when status is success
		if (rec.ConsecutiveFailures == 0) != (rec.CurrentStatus == StatusSuccess) {
			t.Fatalf("step %d: invariant broken: %+v", i, rec)
		}
	}
}

func TestApply_SuccessClearsNotificationSent(t *testing.T) {
	rec := Apply(nil, result(StatusFailure), time.Now().UTC())
	rec.NotificationSent = true
	sentAt := time.Now().UTC()
	rec.LastNotification = &sentAt

	rec = Apply(rec, result(StatusSuccess), time.Now().UTC())
	if rec.NotificationSent {
		t.Fatalf("success must clear notification_sent: %+v", rec)
	}
	// the episode timestamp is history, not state; it survives
	if rec.LastNotification == nil {
		t.Fatalf("last_notification should be retained")
	}
}

func TestApply_ErrorCountsAsFailure(t *testing.T) {
	rec := Apply(nil, result(StatusError), time.Now().UTC())
	if rec.ConsecutiveFailures != 1 || rec.CurrentStatus != StatusError {
		t.Fatalf("error result must count against the endpoint: %+v", rec)
	}
}

func TestApply_DoesNotMutatePrev(t *testing.T) {
	prev := Apply(nil, result(StatusFailure), time.Now().UTC())
	before := *prev

	_ = Apply(prev, result(StatusFailure), time.Now().UTC())
	if prev.FailureCount != before.FailureCount || prev.ConsecutiveFailures != before.ConsecutiveFailures {
		t.Fatalf("prev mutated: before=%+v after=%+v", before, prev)
	}
}

func TestIsFailure(t *testing.T) {
	if StatusSuccess.IsFailure() {
		t.Fatalf("success must not count as failure")
	}
	if !StatusFailure.IsFailure() || !StatusError.IsFailure() {
		t.Fatalf("failure and error must both count as failure")
	}
}
