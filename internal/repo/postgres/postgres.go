package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"servermon/internal/domain"
	"servermon/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS check_results (
	id            BIGSERIAL PRIMARY KEY,
	endpoint_name TEXT NOT NULL,
	check_type    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time DOUBLE PRECISION,
	error_message TEXT,
	details       JSONB,
	timestamp     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_endpoint_time
	ON check_results (endpoint_name, timestamp DESC);
CREATE TABLE IF NOT EXISTS endpoint_status (
	endpoint_name        TEXT PRIMARY KEY,
	current_status       TEXT NOT NULL,
	last_success         TIMESTAMPTZ,
	last_failure         TIMESTAMPTZ,
	failure_count        BIGINT NOT NULL DEFAULT 0,
	consecutive_failures BIGINT NOT NULL DEFAULT 0,
	notification_sent    BOOLEAN NOT NULL DEFAULT FALSE,
	last_notification    TIMESTAMPTZ,
	updated_at           TIMESTAMPTZ NOT NULL
);`

const selectStatus = `
SELECT endpoint_name, current_status, last_success, last_failure,
       failure_count, consecutive_failures, notification_sent,
       last_notification, updated_at
  FROM endpoint_status`

// Store persists checks in Postgres for multi-node or long-retention
// deployments.
type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Store(ctx context.Context, r *domain.CheckResult) (*domain.EndpointStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var details []byte
	if r.Details != nil {
		if details, err = json.Marshal(r.Details); err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO check_results
			(endpoint_name, check_type, status, response_time, error_message, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.EndpointName, r.CheckType, string(r.Status), r.ResponseTime, r.ErrorMessage, details, r.Timestamp.UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	prev, err := scanStatus(tx.QueryRow(ctx, selectStatus+` WHERE endpoint_name = $1 FOR UPDATE`, r.EndpointName))
	if err != nil {
		return nil, err
	}
	next := domain.Apply(prev, r, time.Now().UTC())
	if _, err := tx.Exec(ctx,
		`INSERT INTO endpoint_status
			(endpoint_name, current_status, last_success, last_failure,
			 failure_count, consecutive_failures, notification_sent, last_notification, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (endpoint_name) DO UPDATE SET
			current_status       = excluded.current_status,
			last_success         = excluded.last_success,
			last_failure         = excluded.last_failure,
			failure_count        = excluded.failure_count,
			consecutive_failures = excluded.consecutive_failures,
			notification_sent    = excluded.notification_sent,
			last_notification    = excluded.last_notification,
			updated_at           = excluded.updated_at`,
		next.EndpointName, string(next.CurrentStatus), next.LastSuccess, next.LastFailure,
		next.FailureCount, next.ConsecutiveFailures, next.NotificationSent,
		next.LastNotification, next.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) Status(ctx context.Context, name string) (*domain.EndpointStatus, error) {
	return scanStatus(s.pool.QueryRow(ctx, selectStatus+` WHERE endpoint_name = $1`, name))
}

func (s *Store) Statuses(ctx context.Context) (map[string]*domain.EndpointStatus, error) {
	rows, err := s.pool.Query(ctx, selectStatus)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.EndpointStatus)
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out[rec.EndpointName] = rec
	}
	return out, rows.Err()
}

func (s *Store) Results(ctx context.Context, name string, limit int) ([]*domain.CheckResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint_name, check_type, status, response_time, error_message, details, timestamp
		   FROM check_results
		  WHERE endpoint_name = $1
		  ORDER BY timestamp DESC, id DESC
		  LIMIT $2`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*domain.CheckResult
	for rows.Next() {
		var (
			r       domain.CheckResult
			status  string
			details []byte
		)
		if err := rows.Scan(&r.EndpointName, &r.CheckType, &status,
			&r.ResponseTime, &r.ErrorMessage, &details, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = domain.CheckStatus(status)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationSent(ctx context.Context, name string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE endpoint_status
		    SET notification_sent = TRUE, last_notification = $1, updated_at = $2
		  WHERE endpoint_name = $3`,
		at.UTC(), time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("endpoint %q: %w", name, repo.ErrNotFound)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanStatus(rw pgx.Row) (*domain.EndpointStatus, error) {
	var (
		rec    domain.EndpointStatus
		status string
	)
	err := rw.Scan(&rec.EndpointName, &status, &rec.LastSuccess, &rec.LastFailure,
		&rec.FailureCount, &rec.ConsecutiveFailures, &rec.NotificationSent,
		&rec.LastNotification, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan status: %w", err)
	}
	rec.CurrentStatus = domain.CheckStatus(status)
	return &rec, nil
}
