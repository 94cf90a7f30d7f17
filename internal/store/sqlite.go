package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nmslite/hostgatherer/internal/gatherer"
)

// SQLiteStore writes snapshots to a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := runMigrations(db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Snapshot store ready", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// SaveRun writes the run, its node reports and hosts in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *gatherer.Result) error {
	run, nodes, hosts, err := rows(result)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gather_runs (id, started_at, completed_at, host_count, node_count) VALUES (?, ?, ?, ?, ?)`,
		run.id, run.startedAt.UTC().Format(time.RFC3339Nano), run.completedAt.UTC().Format(time.RFC3339Nano),
		run.hostCount, run.nodeCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gather_nodes (run_id, position, name, type, state, hosts, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	for _, n := range nodes {
		if _, err := nodeStmt.ExecContext(ctx, run.id, n.position, n.name, n.typ, n.state, n.hosts, n.durationMS, n.err); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", n.name, err)
		}
	}

	hostStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gather_hosts (run_id, host_key, type, name, host_identifier, record) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare host insert: %w", err)
	}
	defer hostStmt.Close()
	for _, h := range hosts {
		if _, err := hostStmt.ExecContext(ctx, run.id, h.key, h.typ, h.name, h.hostIdentifier, string(h.record)); err != nil {
			return fmt.Errorf("failed to insert host %s: %w", h.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Snapshot saved", "run_id", run.id, "hosts", len(hosts), "nodes", len(nodes))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
