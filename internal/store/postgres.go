package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nmslite/hostgatherer/internal/config"
	"github.com/nmslite/hostgatherer/internal/gatherer"
)

// PostgresStore writes snapshots through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates the pool, verifies connectivity and runs migrations.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}

	pool := cfg.Database.Pool
	pool.ApplyDefaults()
	poolCfg.MaxConns = int32(pool.MaxConns)
	poolCfg.MinConns = int32(pool.MinConns)
	poolCfg.MaxConnLifetime = pool.MaxConnLifetime()
	poolCfg.MaxConnIdleTime = pool.MaxConnIdleTime()
	poolCfg.HealthCheckPeriod = pool.HealthCheckPeriod()

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(p)
	err = runMigrations(db, "postgres", "migrations/postgres")
	db.Close()
	if err != nil {
		p.Close()
		return nil, err
	}

	logger.Info("Snapshot store ready", "max_conns", poolCfg.MaxConns)
	return &PostgresStore{pool: p, logger: logger}, nil
}

// SaveRun writes the run, its node reports and hosts in one transaction. Hosts are
// loaded with the COPY protocol.
func (s *PostgresStore) SaveRun(ctx context.Context, result *gatherer.Result) error {
	run, nodes, hosts, err := rows(result)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO gather_runs (id, started_at, completed_at, host_count, node_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.id, run.startedAt, run.completedAt, run.hostCount, run.nodeCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(nodes) > 0 {
		batch := &pgx.Batch{}
		for _, n := range nodes {
			batch.Queue(
				`INSERT INTO gather_nodes (run_id, position, name, type, state, hosts, duration_ms, error)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				run.id, n.position, n.name, n.typ, n.state, n.hosts, n.durationMS, n.err,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert node reports: %w", err)
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"gather_hosts"},
		[]string{"run_id", "host_key", "type", "name", "host_identifier", "record"},
		pgx.CopyFromSlice(len(hosts), func(i int) ([]any, error) {
			h := hosts[i]
			return []any{run.id, h.key, h.typ, h.name, h.hostIdentifier, h.record}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("COPY operation failed: %w", err)
	}
	if copyCount != int64(len(hosts)) {
		return fmt.Errorf("COPY count mismatch: expected %d, got %d", len(hosts), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Snapshot saved", "run_id", run.id, "hosts", len(hosts), "nodes", len(nodes))
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
