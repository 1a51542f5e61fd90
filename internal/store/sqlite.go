package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MJE43/wheel8/internal/wheel"
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path. ":memory:" gives a private in-memory database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite is not concurrent for writes, and every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations. It is safe to call repeatedly.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS wheel_configs (
			wheel_id TEXT PRIMARY KEY,
			record BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wheel_stats (
			wheel_id TEXT PRIMARY KEY,
			spin_count INTEGER NOT NULL DEFAULT 0,
			multiplier_sum INTEGER NOT NULL DEFAULT 0,
			last_spin_at DATETIME,
			FOREIGN KEY (wheel_id) REFERENCES wheel_configs(wheel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS spins (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			wheel_id TEXT NOT NULL,
			requester TEXT NOT NULL,
			anchor INTEGER NOT NULL,
			client_seed INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			multiplier INTEGER NOT NULL,
			digest TEXT NOT NULL,
			engine_version TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (wheel_id) REFERENCES wheel_configs(wheel_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spins_wheel ON spins(wheel_id, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_spins_requester ON spins(wheel_id, requester, seq DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// InitializeConfig stores cfg once per wheel.
func (s *SQLiteDB) InitializeConfig(ctx context.Context, wheelID string, cfg wheel.Config) error {
	const op = "store.sqlite.InitializeConfig"

	record, err := cfg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO wheel_configs (wheel_id, record, created_at) VALUES (?, ?, ?)
		ON CONFLICT(wheel_id) DO NOTHING`,
		wheelID, record, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, wheel.Errorf(wheel.KindAlreadyInitialized, "wheel %q already has a config", wheelID))
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO wheel_stats (wheel_id) VALUES (?)`, wheelID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetConfig loads the config of a wheel.
func (s *SQLiteDB) GetConfig(ctx context.Context, wheelID string) (wheel.Config, error) {
	const op = "store.sqlite.GetConfig"

	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM wheel_configs WHERE wheel_id = ?`, wheelID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return wheel.Config{}, fmt.Errorf("%s: %w", op, wheel.Errorf(wheel.KindUninitialized, "wheel %q has no config", wheelID))
	}
	if err != nil {
		return wheel.Config{}, fmt.Errorf("%s: %w", op, err)
	}

	cfg, err := decodeConfig(record)
	if err != nil {
		return wheel.Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

// ListWheels returns every initialized wheel ordered by id.
func (s *SQLiteDB) ListWheels(ctx context.Context) ([]WheelRecord, error) {
	const op = "store.sqlite.ListWheels"

	rows, err := s.db.QueryContext(ctx, `SELECT wheel_id, record, created_at FROM wheel_configs ORDER BY wheel_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	wheels := []WheelRecord{}
	for rows.Next() {
		var w WheelRecord
		var record []byte
		if err := rows.Scan(&w.ID, &record, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if w.Config, err = decodeConfig(record); err != nil {
			return nil, fmt.Errorf("%s: wheel %s: %w", op, w.ID, err)
		}
		w.CreatedAt = w.CreatedAt.UTC()
		wheels = append(wheels, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return wheels, nil
}

// SaveSpin appends a spin and bumps the wheel stats in one transaction.
func (s *SQLiteDB) SaveSpin(ctx context.Context, rec *SpinRecord) error {
	const op = "store.sqlite.SaveSpin"

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE wheel_stats SET spin_count = spin_count + 1, multiplier_sum = multiplier_sum + ?, last_spin_at = ?
		WHERE wheel_id = ?`,
		int64(rec.Multiplier), rec.CreatedAt, rec.WheelID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if n == 0 {
		return fmt.Errorf("%s: %w", op, wheel.Errorf(wheel.KindUninitialized, "wheel %q has no config", rec.WheelID))
	}

	query := `INSERT INTO spins (` + spinColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, spinArgs(rec)...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSpin retrieves a spin by ID
func (s *SQLiteDB) GetSpin(ctx context.Context, id string) (*SpinRecord, error) {
	const op = "store.sqlite.GetSpin"

	row := s.db.QueryRowContext(ctx, `SELECT `+spinColumns+` FROM spins WHERE id = ?`, id)
	rec, err := scanSpin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, wheel.Errorf(wheel.KindNotFound, "spin %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// ListSpins retrieves spins newest first with pagination and filtering
func (s *SQLiteDB) ListSpins(ctx context.Context, query SpinsQuery) (*SpinsList, error) {
	const op = "store.sqlite.ListSpins"

	query.normalize()

	var conds []string
	args := []any{}
	if query.WheelID != "" {
		conds = append(conds, "wheel_id = ?")
		args = append(args, query.WheelID)
	}
	if query.Requester != "" {
		conds = append(conds, "requester = ?")
		args = append(args, query.Requester)
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spins "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("%s: failed to get total count: %w", op, err)
	}

	mainQuery := `SELECT ` + spinColumns + ` FROM spins ` + whereClause + ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, query.offset())

	rows, err := s.db.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query spins: %w", op, err)
	}
	defer rows.Close()

	var spins []SpinRecord
	for rows.Next() {
		rec, err := scanSpin(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan spin: %w", op, err)
		}
		spins = append(spins, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: error iterating spins: %w", op, err)
	}

	return newSpinsList(spins, totalCount, query), nil
}

// GetStats returns the aggregate counters of a wheel.
func (s *SQLiteDB) GetStats(ctx context.Context, wheelID string) (*WheelStats, error) {
	const op = "store.sqlite.GetStats"

	stats := WheelStats{WheelID: wheelID}
	var count, sum int64
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT spin_count, multiplier_sum, last_spin_at FROM wheel_stats WHERE wheel_id = ?`, wheelID,
	).Scan(&count, &sum, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, wheel.Errorf(wheel.KindUninitialized, "wheel %q has no config", wheelID))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats.SpinCount = uint64(count)
	stats.MultiplierSum = uint64(sum)
	if last.Valid {
		t := last.Time.UTC()
		stats.LastSpinAt = &t
	}
	return &stats, nil
}

func (s *SQLiteDB) MaxAnchor(ctx context.Context) (uint64, bool, error) {
	var largest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, maxAnchorQuery).Scan(&largest); err != nil {
		return 0, false, fmt.Errorf("store.sqlite.MaxAnchor: %w", err)
	}
	if !largest.Valid {
		return 0, false, nil
	}
	return uint64(largest.Int64), true, nil
}
