package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"casetrace/internal/common"
	"casetrace/internal/entity"
)

// PostgresConfig mirrors the pool knobs exposed through the environment.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresRepository stores records in a case_extractions table keyed by
// case_id. The primary-key constraint is what makes first-write-wins hold
// across concurrent writers.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS case_extractions (
	case_id      TEXT PRIMARY KEY,
	summary      TEXT NOT NULL,
	timeline     JSONB NOT NULL,
	evidence     JSONB NOT NULL,
	persisted_at TIMESTAMPTZ NOT NULL
)`

// OpenPostgres creates a pgx pool and ensures the schema exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", "postgres")

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.NewPersistenceError("invalid postgres dsn", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "casetrace"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewPersistenceError("connecting to postgres failed", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, common.NewPersistenceError("ensuring schema failed", err)
	}

	logger.Info("successfully connected to database")
	return &PostgresRepository{pool: pool, logger: logger}, nil
}

func (r *PostgresRepository) GetByCaseID(ctx context.Context, caseID string) (*entity.ExtractionRecord, error) {
	var (
		rec      entity.ExtractionRecord
		timeline []byte
		evidence []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT case_id, summary, timeline, evidence, persisted_at
		 FROM case_extractions WHERE case_id = $1`, caseID,
	).Scan(&rec.CaseID, &rec.Summary, &timeline, &evidence, &rec.PersistedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("case lookup failed", "case_id", caseID, "error", err)
		return nil, common.NewPersistenceError("case lookup failed", err)
	}
	if err := json.Unmarshal(timeline, &rec.Timeline); err != nil {
		return nil, common.NewPersistenceError("stored timeline is corrupt", err)
	}
	if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
		return nil, common.NewPersistenceError("stored evidence is corrupt", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Put(ctx context.Context, rec *entity.ExtractionRecord) (PutOutcome, error) {
	timeline, err := json.Marshal(rec.Timeline)
	if err != nil {
		return Created, common.NewPersistenceError("encoding timeline failed", err)
	}
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return Created, common.NewPersistenceError("encoding evidence failed", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO case_extractions (case_id, summary, timeline, evidence, persisted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (case_id) DO NOTHING`,
		rec.CaseID, rec.Summary, timeline, evidence, rec.PersistedAt,
	)
	if err != nil {
		r.logger.Error("case insert failed", "case_id", rec.CaseID, "error", err)
		return Created, common.NewPersistenceError("case insert failed", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("case already persisted", "case_id", rec.CaseID)
		return AlreadyExists, nil
	}
	r.logger.Info("case persisted", "case_id", rec.CaseID)
	return Created, nil
}

// HealthCheck pings the pool to catch DSN issues early.
func (r *PostgresRepository) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.logger.Info("closing database connections")
	r.pool.Close()
	return nil
}
