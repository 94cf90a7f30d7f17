package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/nmslite/hostgatherer/internal/gatherer"
	"github.com/nmslite/hostgatherer/internal/worker"
)

// MemoryStore keeps snapshots in memory. It backs dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []gatherer.Result
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveRun stores a copy of result.
func (m *MemoryStore) SaveRun(ctx context.Context, result *gatherer.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("nil result")
	}

	snapshot := *result
	snapshot.Inventory = maps.Clone(result.Inventory)
	snapshot.Nodes = slices.Clone(result.Nodes)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, snapshot)
	return nil
}

// Runs returns every saved run in save order.
func (m *MemoryStore) Runs() []gatherer.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.runs)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func sortedKeys(inv worker.Inventory) []string {
	return slices.Sorted(maps.Keys(inv))
}
