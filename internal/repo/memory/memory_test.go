package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"servermon/internal/domain"
	"servermon/internal/repo"
)

func res(status domain.CheckStatus) *domain.CheckResult {
	return &domain.CheckResult{
		EndpointName: "api",
		CheckType:    "http",
		Status:       status,
		Timestamp:    time.Now().UTC(),
	}
}

func TestStore_TransitionSequence(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.Store(ctx, res(domain.StatusSuccess))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec.CurrentStatus != domain.StatusSuccess || rec.ConsecutiveFailures != 0 {
		t.Fatalf("after success: %+v", rec)
	}
	if rec.LastSuccess == nil {
		t.Fatal("last success not stamped")
	}

	s.Store(ctx, res(domain.StatusFailure))
	rec, _ = s.Store(ctx, res(domain.StatusError))
	if rec.ConsecutiveFailures != 2 || rec.FailureCount != 2 {
		t.Fatalf("after two failures: %+v", rec)
	}
	if rec.LastFailure == nil {
		t.Fatal("last failure not stamped")
	}

	rec, _ = s.Store(ctx, res(domain.StatusSuccess))
	if rec.ConsecutiveFailures != 0 || rec.FailureCount != 2 {
		t.Fatalf("recovery must reset the streak only: %+v", rec)
	}
}

func TestStatus_UnknownIsNil(t *testing.T) {
	rec, err := New().Status(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec != nil {
		t.Fatalf("want nil record, got %+v", rec)
	}
}

func TestMarkNotificationSent(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Store(ctx, res(domain.StatusFailure))

	at := time.Now().UTC()
	if err := s.MarkNotificationSent(ctx, "api", at); err != nil {
		t.Fatalf("mark: %v", err)
	}
	rec, _ := s.Status(ctx, "api")
	if !rec.NotificationSent || rec.LastNotification == nil {
		t.Fatalf("mark not recorded: %+v", rec)
	}

	rec, _ = s.Store(ctx, res(domain.StatusSuccess))
	if rec.NotificationSent {
		t.Fatal("recovery must clear the sent flag")
	}
	if rec.LastNotification == nil {
		t.Fatal("recovery must keep the last notification timestamp")
	}
}

func TestMarkNotificationSent_Unknown(t *testing.T) {
	err := New().MarkNotificationSent(context.Background(), "ghost", time.Now())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResults_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 1; i <= 5; i++ {
		r := res(domain.StatusSuccess)
		r.ErrorMessage = fmt.Sprintf("r%d", i)
		s.Store(ctx, r)
	}

	out, err := s.Results(ctx, "api", 2)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(out) != 2 || out[0].ErrorMessage != "r5" || out[1].ErrorMessage != "r4" {
		t.Fatalf("want newest first, got %+v", out)
	}

	out, _ = s.Results(ctx, "api", 0)
	if len(out) != 5 {
		t.Fatalf("limit 0 must return everything, got %d", len(out))
	}
}

func TestStatus_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Store(ctx, res(domain.StatusFailure))

	rec, _ := s.Status(ctx, "api")
	rec.ConsecutiveFailures = 99

	again, _ := s.Status(ctx, "api")
	if again.ConsecutiveFailures != 1 {
		t.Fatalf("caller mutation leaked into the store: %+v", again)
	}

	all, _ := s.Statuses(ctx)
	all["api"].FailureCount = 99
	again, _ = s.Status(ctx, "api")
	if again.FailureCount != 1 {
		t.Fatalf("caller mutation leaked into the store: %+v", again)
	}
}
