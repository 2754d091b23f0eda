// Package gate implements the Device Concurrency Gate: a per-device
// single-occupancy lease enforced through the shared SQLite store, with
// jittered bounded-retry acquisition and half-TTL renewal.
package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrGating is returned when acquisition fails after exhausting max_wait_s.
// Callers classify this as spec's GATING_ERROR (TRANSIENT).
var ErrGating = errors.New("GATING_ERROR: device lease unavailable")

// Lease is a held device lock. Release is idempotent and only succeeds in
// freeing the underlying key if HolderID still matches.
type Lease struct {
	DeviceKey  string
	HolderID   string
	AcquiredAt time.Time
}

// Gate is the SQLite-backed per-device lease manager.
type Gate struct {
	db        *sql.DB
	leaseTTL  time.Duration
}

// New opens (creating if absent) the gate's lease table in the shared
// SQLite file, following the same pragma idiom as the queue store.
func New(dbPath string, leaseTTL time.Duration) (*Gate, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open gate db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(leaseSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create lease schema: %w", err)
	}
	return &Gate{db: db, leaseTTL: leaseTTL}, nil
}

func (g *Gate) Close() error { return g.db.Close() }

const leaseSchemaSQL = `
CREATE TABLE IF NOT EXISTS device_leases (
	device_key  TEXT PRIMARY KEY,
	holder_id   TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);
`

// Acquire enters a jittered bounded-retry loop: initial 500ms, doubling,
// capped at 5s, jitter ±25%. Fails with ErrGating once cumulative wait
// exceeds maxWait.
func (g *Gate) Acquire(ctx context.Context, deviceKey, holderID string, maxWait time.Duration) (*Lease, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 500 * time.Millisecond
	const capBackoff = 5 * time.Second

	for {
		lease, err := g.tryAcquire(deviceKey, holderID)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrGating
		}

		wait := jitter(backoff, 0.25)
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		if backoff < capBackoff {
			backoff *= 2
			if backoff > capBackoff {
				backoff = capBackoff
			}
		}
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	delta := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * delta
	result := time.Duration(float64(d) + offset)
	if result < 0 {
		return 0
	}
	return result
}

func (g *Gate) tryAcquire(deviceKey, holderID string) (*Lease, error) {
	now := time.Now().UTC()

	// Reclaim expired leases so a crashed holder never blocks forever.
	if _, err := g.db.Exec(`DELETE FROM device_leases WHERE device_key = ? AND expires_at < ?`, deviceKey, ts(now)); err != nil {
		return nil, fmt.Errorf("reclaim expired lease: %w", err)
	}

	expiresAt := now.Add(g.leaseTTL)
	_, err := g.db.Exec(
		`INSERT INTO device_leases (device_key, holder_id, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_key) DO NOTHING`,
		deviceKey, holderID, ts(now), ts(expiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert lease: %w", err)
	}

	row := g.db.QueryRow(`SELECT holder_id, acquired_at FROM device_leases WHERE device_key = ?`, deviceKey)
	var gotHolder, acquiredAt string
	if err := row.Scan(&gotHolder, &acquiredAt); err != nil {
		return nil, fmt.Errorf("select lease: %w", err)
	}
	if gotHolder != holderID {
		return nil, nil // held by someone else
	}
	t, _ := time.Parse(time.RFC3339Nano, acquiredAt)
	return &Lease{DeviceKey: deviceKey, HolderID: holderID, AcquiredAt: t}, nil
}

// Renew refreshes the lease TTL. Callers must invoke this at half-TTL
// intervals; a failed renewal means the key was reclaimed by another
// holder and the caller must abort its in-flight command as TRANSIENT.
func (g *Gate) Renew(lease *Lease) error {
	now := time.Now().UTC()
	expiresAt := now.Add(g.leaseTTL)
	res, err := g.db.Exec(
		`UPDATE device_leases SET expires_at = ? WHERE device_key = ? AND holder_id = ?`,
		ts(expiresAt), lease.DeviceKey, lease.HolderID,
	)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("TRANSIENT: lease for %s was reclaimed", lease.DeviceKey)
	}
	return nil
}

// Release always succeeds and is idempotent; it deletes the key only if
// holder_id still matches, so it can never free a lease re-granted after
// TTL expiry to a different holder.
func (g *Gate) Release(lease *Lease) error {
	if lease == nil {
		return nil
	}
	_, err := g.db.Exec(`DELETE FROM device_leases WHERE device_key = ? AND holder_id = ?`, lease.DeviceKey, lease.HolderID)
	return err
}

// ActiveLeaseCount reports the number of currently held (non-expired)
// leases, for the active-lease gauge (§4.2).
func (g *Gate) ActiveLeaseCount() (int, error) {
	var n int
	err := g.db.QueryRow(`SELECT COUNT(*) FROM device_leases WHERE expires_at >= ?`, ts(time.Now().UTC())).Scan(&n)
	return n, err
}

// NewHolderID generates a process-unique holder identity for one lease
// attempt.
func NewHolderID() string { return uuid.NewString() }

func ts(t time.Time) string { return t.Format(time.RFC3339Nano) }
