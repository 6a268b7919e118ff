package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// SQLiteStore implements Store using SQLite, grounded on the same
// WAL-journalled, single-file persistence pattern used for the audit
// trace store. Allowances, usage, and reservations each get their own
// table; ReserveQuota re-checks the allowance inside the same
// transaction that writes the updated usage row, so the check and the
// reserve observe one consistent snapshot.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and does not yet initialize) a SQLite-backed
// quota store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Initialize creates the store's tables and indexes if they don't
// already exist.
func (s *SQLiteStore) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS allowances (
		actor_id        TEXT NOT NULL,
		window_id       TEXT NOT NULL,
		max_flops       REAL NOT NULL,
		max_energy_kwh  REAL NOT NULL,
		max_carbon_kg   REAL NOT NULL,
		max_tier        INTEGER NOT NULL,
		valid_until     DATETIME NOT NULL,
		PRIMARY KEY (actor_id, window_id)
	);

	CREATE TABLE IF NOT EXISTS usage_snapshots (
		actor_id          TEXT NOT NULL,
		window_id         TEXT NOT NULL,
		flops_used        REAL NOT NULL DEFAULT 0,
		energy_kwh_used   REAL NOT NULL DEFAULT 0,
		carbon_kg_emitted REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (actor_id, window_id)
	);

	CREATE TABLE IF NOT EXISTS reservations (
		reservation_id  TEXT PRIMARY KEY,
		actor_id        TEXT NOT NULL,
		window_id       TEXT NOT NULL,
		flops           REAL NOT NULL,
		energy_kwh      REAL NOT NULL,
		carbon_kg       REAL NOT NULL,
		created_at      DATETIME NOT NULL,
		expires_at      DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(expires_at);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize quota schema: %w", err)
	}
	return nil
}

// Close shuts down the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetAllowance upserts the allowance row for (actor, window), for
// seeding by operator tooling outside the hot path. The cmd/orchestrator
// commands do not call it.
func (s *SQLiteStore) SetAllowance(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID, allowance domain.ComputeEnergyAllowance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allowances (actor_id, window_id, max_flops, max_energy_kwh, max_carbon_kg, max_tier, valid_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id, window_id) DO UPDATE SET
			max_flops = excluded.max_flops,
			max_energy_kwh = excluded.max_energy_kwh,
			max_carbon_kg = excluded.max_carbon_kg,
			max_tier = excluded.max_tier,
			valid_until = excluded.valid_until
	`, string(actor), string(window), allowance.MaxFlops, allowance.MaxEnergyKWh, allowance.MaxCarbonKg, int(allowance.MaxTier), allowance.ValidUntil)
	return err
}

// GetAllowance implements Store.
func (s *SQLiteStore) GetAllowance(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.ComputeEnergyAllowance, error) {
	var a domain.ComputeEnergyAllowance
	var tier int
	row := s.db.QueryRowContext(ctx, `
		SELECT max_flops, max_energy_kwh, max_carbon_kg, max_tier, valid_until
		FROM allowances WHERE actor_id = ? AND window_id = ?
	`, string(actor), string(window))
	err := row.Scan(&a.MaxFlops, &a.MaxEnergyKWh, &a.MaxCarbonKg, &tier, &a.ValidUntil)
	if err == sql.ErrNoRows {
		return domain.ComputeEnergyAllowance{}, nil
	}
	if err != nil {
		return domain.ComputeEnergyAllowance{}, fmt.Errorf("failed to load allowance: %w", err)
	}
	a.MaxTier = domain.CapabilityTier(tier)
	return a, nil
}

// GetUsage implements Store.
func (s *SQLiteStore) GetUsage(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.UsageSnapshot, error) {
	snap := domain.UsageSnapshot{WindowID: window}
	row := s.db.QueryRowContext(ctx, `
		SELECT flops_used, energy_kwh_used, carbon_kg_emitted
		FROM usage_snapshots WHERE actor_id = ? AND window_id = ?
	`, string(actor), string(window))
	err := row.Scan(&snap.FlopsUsed, &snap.EnergyKWhUsed, &snap.CarbonKgEmitted)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return domain.UsageSnapshot{}, fmt.Errorf("failed to load usage: %w", err)
	}
	return snap, nil
}

// ReserveQuota implements Store. The re-check and the usage update run
// inside one transaction so a concurrent reservation against the same
// (actor, window) either commits before or after this one, never
// interleaved with it.
func (s *SQLiteStore) ReserveQuota(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID, allowance domain.ComputeEnergyAllowance, deltaFlops, deltaEnergyKWh, deltaCarbonKg float64) (domain.ReservationID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin reservation transaction: %w", err)
	}
	defer tx.Rollback()

	var flopsUsed, energyUsed, carbonUsed float64
	row := tx.QueryRowContext(ctx, `
		SELECT flops_used, energy_kwh_used, carbon_kg_emitted
		FROM usage_snapshots WHERE actor_id = ? AND window_id = ?
	`, string(actor), string(window))
	err = row.Scan(&flopsUsed, &energyUsed, &carbonUsed)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to load usage for reservation: %w", err)
	}

	if flopsUsed+deltaFlops > allowance.MaxFlops {
		return "", fmt.Errorf("concurrent reservation exceeded flops allowance")
	}
	if energyUsed+deltaEnergyKWh > allowance.MaxEnergyKWh {
		return "", fmt.Errorf("concurrent reservation exceeded energy allowance")
	}
	if carbonUsed+deltaCarbonKg > allowance.MaxCarbonKg {
		return "", fmt.Errorf("concurrent reservation exceeded carbon allowance")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_snapshots (actor_id, window_id, flops_used, energy_kwh_used, carbon_kg_emitted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(actor_id, window_id) DO UPDATE SET
			flops_used = flops_used + excluded.flops_used,
			energy_kwh_used = energy_kwh_used + excluded.energy_kwh_used,
			carbon_kg_emitted = carbon_kg_emitted + excluded.carbon_kg_emitted
	`, string(actor), string(window), deltaFlops, deltaEnergyKWh, deltaCarbonKg)
	if err != nil {
		return "", fmt.Errorf("failed to update usage: %w", err)
	}

	rid := domain.ReservationID(ulid.Make().String())
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (reservation_id, actor_id, window_id, flops, energy_kwh, carbon_kg, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(rid), string(actor), string(window), deltaFlops, deltaEnergyKWh, deltaCarbonKg, now, allowance.ValidUntil)
	if err != nil {
		return "", fmt.Errorf("failed to record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit reservation: %w", err)
	}

	return rid, nil
}

// PruneExpired deletes reservation rows past their expires_at. Orphaned
// reservation reclamation is the store's responsibility; this method is
// the mechanism a periodic maintenance task would call.
func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired reservations: %w", err)
	}
	return res.RowsAffected()
}
