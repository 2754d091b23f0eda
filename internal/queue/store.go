package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const maxResultOutputBytes = 64 * 1024

// Store is the durable, single-source-of-truth backing for job state.
// Enqueue writes the whole job envelope in one INSERT before returning its
// id — matching the teacher's "envelope written before notification" rule
// for enqueue durability — and Fetch claims a job inside a SQLite
// transaction. Complete, Fail and Abort read the job and then apply a
// single UPDATE, without an enclosing transaction.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the SQLite-backed queue store at
// dbPath, applying the same WAL/busy-timeout/foreign-keys pragmas the
// teacher uses for its own SQLite-backed stores.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL,
	attempts           INTEGER NOT NULL DEFAULT 0,
	payload_json       TEXT NOT NULL,
	metadata_json      TEXT NOT NULL,
	result_json        TEXT,
	error_kind         TEXT,
	error_message      TEXT,
	consumer_id        TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	acquired_at        TEXT,
	last_heartbeat_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status_heartbeat ON jobs(status, last_heartbeat_at);
`

var errNotFound = errors.New("job not found")

// IsNotFound reports whether err denotes a job that does not exist.
func IsNotFound(err error) bool { return errors.Is(err, errNotFound) }

// Enqueue transitions NEW → QUEUED, persisting the job envelope before
// returning the new job id.
func (s *Store) Enqueue(payload Payload, metadata Metadata) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO jobs (id, status, attempts, payload_json, metadata_json, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?, ?)`,
		id, StatusQueued, string(payloadJSON), string(metadataJSON), ts(now), ts(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Fetch performs a blocking pull by consumerID: it polls for the oldest
// QUEUED job, atomically claims it (QUEUED → ACTIVE), and returns it.
// It blocks, yielding between attempts, until a job is claimed, ctx is
// done, or timeout elapses.
func (s *Store) Fetch(ctx context.Context, consumerID string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	backoff := 100 * time.Millisecond
	const maxBackoff = 1 * time.Second

	for {
		job, err := s.tryClaim(consumerID)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		if timeout > 0 && time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (s *Store) tryClaim(consumerID string) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`, StatusQueued)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select queued job: %w", err)
	}

	now := ts(time.Now().UTC())
	res, err := tx.Exec(
		`UPDATE jobs SET status = ?, consumer_id = ?, acquired_at = ?, last_heartbeat_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusActive, consumerID, now, now, now, id, StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Raced with another claimant (or a supervisor sweep); caller retries.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return s.Poll(id)
}

// Complete transitions ACTIVE → COMPLETE. A call on a job that is already
// terminal (COMPLETE, FAILED or ABORTED) is a no-op (idempotence law from
// spec §8).
func (s *Store) Complete(jobID string, result Result) error {
	job, err := s.Poll(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	resultJSON, err := json.Marshal(truncateResult(result))
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := ts(time.Now().UTC())
	_, err = s.db.Exec(
		`UPDATE jobs SET status = ?, result_json = ?, updated_at = ? WHERE id = ?`,
		StatusComplete, string(resultJSON), now, jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail applies §4.1 fail() semantics: FATAL, or TRANSIENT with no retries
// left, goes terminal FAILED; TRANSIENT with retries remaining re-queues
// after decrementing the retry budget.
func (s *Store) Fail(jobID string, jobErr JobError, hint RetryHint) error {
	job, err := s.Poll(jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	now := ts(time.Now().UTC())

	if hint == RetryFatal || job.Payload.RetriesRemaining <= 0 {
		_, err := s.db.Exec(
			`UPDATE jobs SET status = ?, error_kind = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			StatusFailed, jobErr.Kind, jobErr.Message, now, jobID,
		)
		return err
	}

	job.Payload.RetriesRemaining--
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE jobs SET status = ?, attempts = attempts + 1, payload_json = ?, consumer_id = NULL,
		 acquired_at = NULL, last_heartbeat_at = NULL, updated_at = ? WHERE id = ?`,
		StatusQueued, string(payloadJSON), now, jobID,
	)
	return err
}

// Abort transitions FAILED/ACTIVE → ABORTED. Cooperative: the worker must
// still honor it at its next checkpoint.
func (s *Store) Abort(jobID string) error {
	job, err := s.Poll(jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusActive && job.Status != StatusFailed {
		return fmt.Errorf("cannot abort job in status %s", job.Status)
	}
	now := ts(time.Now().UTC())
	_, err = s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, StatusAborted, now, jobID)
	return err
}

// Poll is an idempotent snapshot read.
func (s *Store) Poll(jobID string) (*Job, error) {
	row := s.db.QueryRow(
		`SELECT id, status, attempts, payload_json, metadata_json, result_json, error_kind, error_message,
		 consumer_id, created_at, updated_at, acquired_at, last_heartbeat_at FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

// Wait is read-through polling with exponential backoff until the job is
// terminal or deadline expires. It never cancels the job on timeout.
func (s *Store) Wait(ctx context.Context, jobID string, deadline time.Time) (*Job, error) {
	backoff := 50 * time.Millisecond
	const maxBackoff = 1 * time.Second

	for {
		job, err := s.Poll(jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, nil
		}

		wait := backoff
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Heartbeat records a liveness tick for an ACTIVE job.
func (s *Store) Heartbeat(jobID string) error {
	now := ts(time.Now().UTC())
	res, err := s.db.Exec(
		`UPDATE jobs SET last_heartbeat_at = ? WHERE id = ? AND status = ?`,
		now, jobID, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errNotFound
	}
	return nil
}

// ActiveJobs returns every ACTIVE job, for the worker-status monitoring
// endpoint (grouped by consumer_id by the caller).
func (s *Store) ActiveJobs() ([]Job, error) {
	return s.queryByStatus(StatusActive, 0)
}

// FailedJobs returns the most recently updated FAILED jobs, newest first,
// capped at limit (0 means unbounded), for the failed-command monitoring
// stream.
func (s *Store) FailedJobs(limit int) ([]Job, error) {
	return s.queryByStatus(StatusFailed, limit)
}

// QueuedCount reports the number of jobs waiting to be claimed, for the
// queue-depth gauge.
func (s *Store) QueuedCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, StatusQueued).Scan(&n)
	return n, err
}

func (s *Store) queryByStatus(status Status, limit int) ([]Job, error) {
	query := `SELECT id, status, attempts, payload_json, metadata_json, result_json, error_kind, error_message,
		 consumer_id, created_at, updated_at, acquired_at, last_heartbeat_at FROM jobs
		 WHERE status = ? ORDER BY updated_at DESC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// StaleActive returns ACTIVE jobs whose last heartbeat predates the
// liveness window, for the supervisor requeue sweep.
func (s *Store) StaleActive(livenessWindow time.Duration) ([]Job, error) {
	cutoff := ts(time.Now().UTC().Add(-livenessWindow))
	rows, err := s.db.Query(
		`SELECT id, status, attempts, payload_json, metadata_json, result_json, error_kind, error_message,
		 consumer_id, created_at, updated_at, acquired_at, last_heartbeat_at FROM jobs
		 WHERE status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)`,
		StatusActive, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale active jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		id, status, payloadJSON, metadataJSON string
		attempts                              int
		resultJSON, errorKind, errorMessage    sql.NullString
		consumerID                             sql.NullString
		createdAt, updatedAt                   string
		acquiredAt, lastHeartbeatAt            sql.NullString
	)
	err := row.Scan(&id, &status, &attempts, &payloadJSON, &metadataJSON, &resultJSON, &errorKind,
		&errorMessage, &consumerID, &createdAt, &updatedAt, &acquiredAt, &lastHeartbeatAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job := &Job{ID: id, Status: Status(status), Attempts: attempts, ConsumerID: consumerID.String}
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &job.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if resultJSON.Valid {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	if errorKind.Valid {
		job.Error = &JobError{Kind: errorKind.String, Message: errorMessage.String}
	}
	job.CreatedAt = parseTS(createdAt)
	job.UpdatedAt = parseTS(updatedAt)
	if acquiredAt.Valid {
		t := parseTS(acquiredAt.String)
		job.AcquiredAt = &t
	}
	if lastHeartbeatAt.Valid {
		t := parseTS(lastHeartbeatAt.String)
		job.LastHeartbeatAt = &t
	}
	return job, nil
}

func ts(t time.Time) string    { return t.Format(time.RFC3339Nano) }
func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func truncateResult(r Result) Result {
	for cmd, out := range r.Data {
		if len(out) > maxResultOutputBytes {
			r.Data[cmd] = out[:maxResultOutputBytes] + "...[truncated]"
		}
	}
	return r
}
