// Package store persists validated frames, decoded signals, and mapped VSS
// samples to SQLite. Persistence is an observer of the pipeline: a failed
// write is counted and logged, never allowed to stall or kill frame flow.
package store

import (
	"context"
	"database/sql"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/vssmap"
	"github.com/c360/canbridge/wire"
)

const schema = `
	CREATE TABLE IF NOT EXISTS can_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier INTEGER NOT NULL,
		declared_length INTEGER NOT NULL,
		payload BLOB NOT NULL,
		wall_clock DOUBLE NOT NULL,
		sim_time DOUBLE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_can_messages_identifier ON can_messages(identifier);
	CREATE INDEX IF NOT EXISTS idx_can_messages_sim_time ON can_messages(sim_time);

	CREATE TABLE IF NOT EXISTS can_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value DOUBLE NOT NULL,
		unit TEXT,
		FOREIGN KEY(message_id) REFERENCES can_messages(id)
	);
	CREATE INDEX IF NOT EXISTS idx_can_signals_name ON can_signals(name);

	CREATE TABLE IF NOT EXISTS vss_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		data_type TEXT NOT NULL,
		value DOUBLE NOT NULL,
		unit TEXT,
		sim_time DOUBLE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vss_signals_path ON vss_signals(path);
	CREATE INDEX IF NOT EXISTS idx_vss_signals_sim_time ON vss_signals(sim_time);
`

// Store writes pipeline records to SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metric.Registry
}

// StoreDeps holds the store's dependencies. Path may be ":memory:" for an
// ephemeral database.
type StoreDeps struct {
	Path    string
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Open opens or creates the database and applies the schema.
func Open(deps StoreDeps) (*Store, error) {
	if deps.Path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "store.Store", "Open", "database path is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", deps.Path)
	if err != nil {
		return nil, errors.WrapFatal(err, "store.Store", "Open", "open "+deps.Path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "store.Store", "Open", "apply schema")
	}

	return &Store{
		db:      db,
		logger:  logger.With("component", "store.Store"),
		metrics: deps.Metrics,
	}, nil
}

// SaveFrame records a validated frame and its decoded signals in one
// transaction. Returns the message row id.
func (s *Store) SaveFrame(ctx context.Context, env *wire.Envelope, signals []signal.DecodedSignal) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.fail(err, "SaveFrame", "begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO can_messages (identifier, declared_length, payload, wall_clock, sim_time)
		 VALUES (?, ?, ?, ?, ?)`,
		env.Identifier, env.DeclaredLength, env.Payload,
		env.ProducedAtWallClock, env.ProducedAtSimTime)
	if err != nil {
		return 0, s.fail(err, "SaveFrame", "insert message")
	}

	messageID, err := res.LastInsertId()
	if err != nil {
		return 0, s.fail(err, "SaveFrame", "read message id")
	}

	for _, sig := range signals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO can_signals (message_id, name, value, unit) VALUES (?, ?, ?, ?)`,
			messageID, sig.Name, sig.Value, sig.Unit); err != nil {
			return 0, s.fail(err, "SaveFrame", "insert signal "+sig.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, s.fail(err, "SaveFrame", "commit")
	}
	return messageID, nil
}

// SaveSamples records mapped VSS samples.
func (s *Store) SaveSamples(ctx context.Context, samples []vssmap.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(err, "SaveSamples", "begin transaction")
	}
	defer tx.Rollback()

	for _, sample := range samples {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vss_signals (path, data_type, value, unit, sim_time) VALUES (?, ?, ?, ?, ?)`,
			sample.Path, sample.DataType, sample.Value, sample.Unit, sample.Timestamp); err != nil {
			return s.fail(err, "SaveSamples", "insert sample "+sample.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail(err, "SaveSamples", "commit")
	}
	return nil
}

// MessageCount reports how many frames are stored.
func (s *Store) MessageCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM can_messages`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "store.Store", "MessageCount", "count messages")
	}
	return n, nil
}

// LatestSamples returns the most recent stored value per VSS path.
func (s *Store) LatestSamples(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, value FROM vss_signals v1
		WHERE id = (SELECT MAX(id) FROM vss_signals v2 WHERE v2.path = v1.path)`)
	if err != nil {
		return nil, errors.Wrap(err, "store.Store", "LatestSamples", "query samples")
	}
	defer rows.Close()

	latest := make(map[string]float64)
	for rows.Next() {
		var path string
		var value float64
		if err := rows.Scan(&path, &value); err != nil {
			return nil, errors.Wrap(err, "store.Store", "LatestSamples", "scan row")
		}
		latest[path] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store.Store", "LatestSamples", "iterate rows")
	}
	return latest, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "store.Store", "Close", "close database")
	}
	return nil
}

// fail counts and logs a write failure. Store errors are transient by
// classification so callers keep the pipeline running.
func (s *Store) fail(err error, method, action string) error {
	if s.metrics != nil {
		s.metrics.Core.StoreErrors.Inc()
	}
	wrapped := errors.WrapTransient(err, "store.Store", method, action)
	s.logger.Warn("store write failed", "method", method, "error", err)
	return wrapped
}
