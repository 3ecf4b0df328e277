package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ticks (
	run_id TEXT NOT NULL,
	episode INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	blue_action TEXT NOT NULL,
	blue_target TEXT NOT NULL DEFAULT '',
	blue_succeeded BOOLEAN NOT NULL,
	red_action TEXT NOT NULL,
	red_source TEXT NOT NULL DEFAULT '',
	red_target TEXT NOT NULL DEFAULT '',
	red_succeeded BOOLEAN NOT NULL,
	decoy_hit BOOLEAN NOT NULL,
	reward REAL NOT NULL,
	blue_immediate REAL NOT NULL,
	recurring REAL NOT NULL,
	red_base REAL NOT NULL,
	decoy_adjustment REAL NOT NULL,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, episode, tick)
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ticks (
	run_id TEXT NOT NULL,
	episode INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	seed BIGINT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	blue_action TEXT NOT NULL,
	blue_target TEXT NOT NULL DEFAULT '',
	blue_succeeded BOOLEAN NOT NULL,
	red_action TEXT NOT NULL,
	red_source TEXT NOT NULL DEFAULT '',
	red_target TEXT NOT NULL DEFAULT '',
	red_succeeded BOOLEAN NOT NULL,
	decoy_hit BOOLEAN NOT NULL,
	reward DOUBLE PRECISION NOT NULL,
	blue_immediate DOUBLE PRECISION NOT NULL,
	recurring DOUBLE PRECISION NOT NULL,
	red_base DOUBLE PRECISION NOT NULL,
	decoy_adjustment DOUBLE PRECISION NOT NULL,
	recorded_at BIGINT NOT NULL,
	PRIMARY KEY (run_id, episode, tick)
);`

const tickColumns = "run_id, episode, tick, seed, fingerprint, blue_action, blue_target, blue_succeeded, " +
	"red_action, red_source, red_target, red_succeeded, decoy_hit, reward, " +
	"blue_immediate, recurring, red_base, decoy_adjustment, recorded_at"

// SQLRecorder writes tick records to a ticks table. recorded_at is stored as
// Unix milliseconds so both dialects share one row shape.
type SQLRecorder struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLite wraps an open modernc.org/sqlite handle and creates the table.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLRecorder, error) {
	r := &SQLRecorder{db: db, dialect: dialectSQLite}
	if err := r.Migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// NewPostgres wraps an open lib/pq handle. Call Migrate to create the table.
func NewPostgres(db *sql.DB) *SQLRecorder {
	return &SQLRecorder{db: db, dialect: dialectPostgres}
}

func (r *SQLRecorder) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if r.dialect == dialectPostgres {
		schema = postgresSchema
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate ticks table: %w", err)
	}
	return nil
}

func (r *SQLRecorder) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if r.dialect == dialectPostgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

func (r *SQLRecorder) Record(ctx context.Context, rec TickRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	query := "INSERT INTO ticks (" + tickColumns + ") VALUES (" + r.placeholders(19) + ")"
	_, err := r.db.ExecContext(ctx, query,
		rec.RunID, rec.Episode, rec.Tick, rec.Seed, rec.Fingerprint,
		rec.BlueAction, rec.BlueTarget, rec.BlueSucceeded,
		rec.RedAction, rec.RedSource, rec.RedTarget, rec.RedSucceeded,
		rec.DecoyHit, rec.Reward,
		rec.Breakdown.BlueImmediate, rec.Breakdown.Recurring, rec.Breakdown.RedBase, rec.Breakdown.DecoyAdjustment,
		rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record tick %d of episode %d: %w", rec.Tick, rec.Episode, err)
	}
	return nil
}

// Ticks returns a run's records ordered by episode and tick.
func (r *SQLRecorder) Ticks(ctx context.Context, runID string) ([]TickRecord, error) {
	query := "SELECT " + tickColumns + " FROM ticks WHERE run_id = " + r.placeholders(1) + " ORDER BY episode, tick"
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TickRecord
	for rows.Next() {
		var rec TickRecord
		var millis int64
		if err := rows.Scan(
			&rec.RunID, &rec.Episode, &rec.Tick, &rec.Seed, &rec.Fingerprint,
			&rec.BlueAction, &rec.BlueTarget, &rec.BlueSucceeded,
			&rec.RedAction, &rec.RedSource, &rec.RedTarget, &rec.RedSucceeded,
			&rec.DecoyHit, &rec.Reward,
			&rec.Breakdown.BlueImmediate, &rec.Breakdown.Recurring, &rec.Breakdown.RedBase, &rec.Breakdown.DecoyAdjustment,
			&millis,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		rec.RecordedAt = time.UnixMilli(millis)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRecorder) Close() error {
	return r.db.Close()
}
