package repo

import (
	"context"
	"errors"
	"time"

	"servermon/internal/domain"
)

// ErrNotFound is returned when an operation targets an endpoint that has
// no status record yet.
var ErrNotFound = errors.New("not found")

// ResultStore is the persistence port; swap in any engine behind it.
// The result log is append-only, the status record is the only mutable
// row, and nothing here is ever deleted.
type ResultStore interface {
	// Store appends r to the result log and folds it into the endpoint's
	// status record in one logical transaction, returning the updated
	// record.
	Store(ctx context.Context, r *domain.CheckResult) (*domain.EndpointStatus, error)

	// Status returns nil, nil if nothing has been stored for name yet.
	Status(ctx context.Context, name string) (*domain.EndpointStatus, error)

	// Statuses returns every status record keyed by endpoint name.
	Statuses(ctx context.Context) (map[string]*domain.EndpointStatus, error)

	// Results returns up to limit recent results for name, newest first.
	Results(ctx context.Context, name string, limit int) ([]*domain.CheckResult, error)

	// MarkNotificationSent flags the record after a delivered failure
	// notification and stamps last_notification.
	MarkNotificationSent(ctx context.Context, name string, at time.Time) error

	Close() error
}
