package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"casetrace/internal/common"
	"casetrace/internal/entity"
)

// SQLiteRepository is the default local store. Same semantics as the postgres
// adapter; timestamps are stored as RFC3339Nano text.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS case_extractions (
	case_id      TEXT PRIMARY KEY,
	summary      TEXT NOT NULL,
	timeline     TEXT NOT NULL,
	evidence     TEXT NOT NULL,
	persisted_at TEXT NOT NULL
)`

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, common.NewPersistenceError("creating data directory failed", err)
		}
		// WAL mode for concurrent readers alongside the single writer.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.NewPersistenceError("opening sqlite database failed", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, common.NewPersistenceError("ensuring schema failed", err)
	}

	logger.Info("sqlite store ready", "path", path)
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) GetByCaseID(ctx context.Context, caseID string) (*entity.ExtractionRecord, error) {
	var (
		rec         entity.ExtractionRecord
		timeline    string
		evidence    string
		persistedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT case_id, summary, timeline, evidence, persisted_at
		 FROM case_extractions WHERE case_id = ?`, caseID,
	).Scan(&rec.CaseID, &rec.Summary, &timeline, &evidence, &persistedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("case lookup failed", "case_id", caseID, "error", err)
		return nil, common.NewPersistenceError("case lookup failed", err)
	}
	if err := json.Unmarshal([]byte(timeline), &rec.Timeline); err != nil {
		return nil, common.NewPersistenceError("stored timeline is corrupt", err)
	}
	if err := json.Unmarshal([]byte(evidence), &rec.Evidence); err != nil {
		return nil, common.NewPersistenceError("stored evidence is corrupt", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, persistedAt)
	if err != nil {
		return nil, common.NewPersistenceError("stored timestamp is corrupt", err)
	}
	rec.PersistedAt = ts
	return &rec, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *entity.ExtractionRecord) (PutOutcome, error) {
	timeline, err := json.Marshal(rec.Timeline)
	if err != nil {
		return Created, common.NewPersistenceError("encoding timeline failed", err)
	}
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return Created, common.NewPersistenceError("encoding evidence failed", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO case_extractions (case_id, summary, timeline, evidence, persisted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.CaseID, rec.Summary, string(timeline), string(evidence),
		rec.PersistedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		r.logger.Error("case insert failed", "case_id", rec.CaseID, "error", err)
		return Created, common.NewPersistenceError("case insert failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Created, common.NewPersistenceError("case insert failed", err)
	}
	if n == 0 {
		r.logger.Info("case already persisted", "case_id", rec.CaseID)
		return AlreadyExists, nil
	}
	r.logger.Info("case persisted", "case_id", rec.CaseID)
	return Created, nil
}

// HealthCheck pings the underlying handle.
func (r *SQLiteRepository) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
