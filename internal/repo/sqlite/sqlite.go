package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"servermon/internal/domain"
	"servermon/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS check_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint_name TEXT NOT NULL,
	check_type    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time REAL,
	error_message TEXT,
	details       TEXT,
	timestamp     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_endpoint_time
	ON check_results (endpoint_name, timestamp);
CREATE TABLE IF NOT EXISTS endpoint_status (
	endpoint_name        TEXT PRIMARY KEY,
	current_status       TEXT NOT NULL,
	last_success         TIMESTAMP,
	last_failure         TIMESTAMP,
	failure_count        INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	notification_sent    INTEGER NOT NULL DEFAULT 0,
	last_notification    TIMESTAMP,
	updated_at           TIMESTAMP NOT NULL
);`

const selectStatus = `
SELECT endpoint_name, current_status, last_success, last_failure,
       failure_count, consecutive_failures, notification_sent,
       last_notification, updated_at
  FROM endpoint_status`

// Store is the default embedded engine; one file, no server.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database file and bootstraps the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn between schedulers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Store(ctx context.Context, r *domain.CheckResult) (*domain.EndpointStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var details any
	if r.Details != nil {
		b, err := json.Marshal(r.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
		details = string(b)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO check_results
			(endpoint_name, check_type, status, response_time, error_message, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.EndpointName, r.CheckType, string(r.Status), r.ResponseTime, r.ErrorMessage, details, r.Timestamp.UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	prev, err := scanStatus(tx.QueryRowContext(ctx, selectStatus+` WHERE endpoint_name = ?`, r.EndpointName))
	if err != nil {
		return nil, err
	}
	next := domain.Apply(prev, r, time.Now().UTC())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO endpoint_status
			(endpoint_name, current_status, last_success, last_failure,
			 failure_count, consecutive_failures, notification_sent, last_notification, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) Status(ctx context.Context, name string) (*domain.EndpointStatus, error) {
	return scanStatus(s.db.QueryRowContext(ctx, selectStatus+` WHERE endpoint_name = ?`, name))
}

func (s *Store) Statuses(ctx context.Context) (map[string]*domain.EndpointStatus, error) {
	rows, err := s.db.QueryContext(ctx, selectStatus)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint_name, check_type, status, response_time, error_message, details, timestamp
		   FROM check_results
		  WHERE endpoint_name = ?
		  ORDER BY timestamp DESC, id DESC
		  LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*domain.CheckResult
	for rows.Next() {
		var (
			r       domain.CheckResult
			status  string
			details sql.NullString
		)
		if err := rows.Scan(&r.EndpointName, &r.CheckType, &status,
			&r.ResponseTime, &r.ErrorMessage, &details, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = domain.CheckStatus(status)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &r.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationSent(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE endpoint_status
		    SET notification_sent = 1, last_notification = ?, updated_at = ?
		  WHERE endpoint_name = ?`,
		at.UTC(), time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("endpoint %q: %w", name, repo.ErrNotFound)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

type row interface {
	Scan(dest ...any) error
}

func scanStatus(rw row) (*domain.EndpointStatus, error) {
	var (
		rec          domain.EndpointStatus
		status       string
		lastSuccess  sql.NullTime
		lastFailure  sql.NullTime
		lastNotified sql.NullTime
	)
	err := rw.Scan(&rec.EndpointName, &status, &lastSuccess, &lastFailure,
		&rec.FailureCount, &rec.ConsecutiveFailures, &rec.NotificationSent,
		&lastNotified, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan status: %w", err)
	}
	rec.CurrentStatus = domain.CheckStatus(status)
	if lastSuccess.Valid {
		t := lastSuccess.Time
		rec.LastSuccess = &t
	}
	if lastFailure.Valid {
		t := lastFailure.Time
		rec.LastFailure = &t
	}
	if lastNotified.Valid {
		t := lastNotified.Time
		rec.LastNotification = &t
	}
	return &rec, nil
}
