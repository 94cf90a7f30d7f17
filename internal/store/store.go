// Package store persists gather runs as snapshots for later comparison.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmslite/hostgatherer/internal/config"
	"github.com/nmslite/hostgatherer/internal/gatherer"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Store saves the outcome of gather runs.
type Store interface {
	SaveRun(ctx context.Context, result *gatherer.Result) error
	Close() error
}

// Open connects to the store selected by cfg.Driver and applies pending migrations.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	logger = logger.With("component", "store", "driver", cfg.Driver)

	switch cfg.Driver {
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

type runRow struct {
	id          string
	startedAt   time.Time
	completedAt time.Time
	hostCount   int
	nodeCount   int
}

type nodeRow struct {
	position   int
	name       string
	typ        string
	state      string
	hosts      int
	durationMS int64
	err        string
}

type hostRow struct {
	key            string
	typ            string
	name           string
	hostIdentifier string
	record         []byte
}

// rows flattens a result into table rows. Host rows are ordered by key.
func rows(result *gatherer.Result) (runRow, []nodeRow, []hostRow, error) {
	run := runRow{
		id:          result.RunID.String(),
		startedAt:   result.StartedAt,
		completedAt: result.CompletedAt,
		hostCount:   len(result.Inventory),
		nodeCount:   len(result.Nodes),
	}

	nodes := make([]nodeRow, len(result.Nodes))
	for i, n := range result.Nodes {
		nodes[i] = nodeRow{
			position:   i,
			name:       n.Name,
			typ:        n.Type,
			state:      n.State,
			hosts:      n.Hosts,
			durationMS: n.Duration.Milliseconds(),
			err:        n.Error,
		}
	}

	hosts := make([]hostRow, 0, len(result.Inventory))
	for _, key := range sortedKeys(result.Inventory) {
		rec := result.Inventory[key]
		data, err := json.Marshal(rec)
		if err != nil {
			return run, nil, nil, fmt.Errorf("failed to marshal host %s: %w", key, err)
		}
		hosts = append(hosts, hostRow{
			key:            key,
			typ:            rec.Type,
			name:           rec.Name,
			hostIdentifier: rec.HostIdentifier,
			record:         data,
		})
	}
	return run, nodes, hosts, nil
}
