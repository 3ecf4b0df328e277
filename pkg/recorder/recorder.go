// Package recorder persists one row per completed tick so runs can be
// replayed, compared and audited after the fact.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/reward"
)

// TickRecord is everything observable about one completed tick.
type TickRecord struct {
	RunID         string           `json:"run_id"`
	Episode       int              `json:"episode"`
	Tick          int              `json:"tick"`
	Seed          int64            `json:"seed"`
	Fingerprint   string           `json:"fingerprint"`
	BlueAction    string           `json:"blue_action"`
	BlueTarget    string           `json:"blue_target"`
	BlueSucceeded bool             `json:"blue_succeeded"`
	RedAction     string           `json:"red_action"`
	RedSource     string           `json:"red_source"`
	RedTarget     string           `json:"red_target"`
	RedSucceeded  bool             `json:"red_succeeded"`
	DecoyHit      bool             `json:"decoy_hit"`
	Reward        float64          `json:"reward"`
	Breakdown     reward.Breakdown `json:"breakdown"`
	RecordedAt    time.Time        `json:"recorded_at"`
}

// Recorder stores tick records.
type Recorder interface {
	Record(ctx context.Context, rec TickRecord) error
	Close() error
}

// Memory keeps records in process. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records []TickRecord
}

func NewMemory() *Memory {
	return &Memory{records: make([]TickRecord, 0)}
}

func (m *Memory) Record(_ context.Context, rec TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []TickRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TickRecord(nil), m.records...)
}

func (m *Memory) Close() error { return nil }

// Open returns the recorder named by dsn:
//
//	""  or "memory:"          in-process
//	sqlite:<path>             SQLite file, or sqlite::memory:
//	postgres://, postgresql:// PostgreSQL
//	redis://, rediss://       Redis stream "decoyrange:ticks"
//
// SQL tables are created if missing.
func Open(ctx context.Context, dsn string) (Recorder, error) {
	switch {
	case dsn == "" || dsn == "memory:":
		return NewMemory(), nil

	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite recorder: %w", err)
		}
		if path == ":memory:" {
			// Every pooled connection would get its own empty database.
			db.SetMaxOpenConns(1)
		}
		rec, err := NewSQLite(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return rec, nil

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres recorder: %w", err)
		}
		rec := NewPostgres(db)
		if err := rec.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return rec, nil

	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, rangeerr.Invalid("recorder dsn: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis recorder unavailable: %w", err)
		}
		return NewRedis(client, DefaultStream), nil

	default:
		return nil, rangeerr.Invalid("unsupported recorder dsn %q", dsn)
	}
}
