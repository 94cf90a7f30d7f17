// Package gatherer runs every configured node through its worker and merges the results
// into one inventory.
package gatherer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/nmslite/hostgatherer/internal/worker"
)

const (
	DefaultMaxWorkers  = 8
	DefaultNodeTimeout = 30 * time.Second
)

// WorkerSource creates workers by type name and reports their cached availability.
type WorkerSource interface {
	Create(typeName string) (worker.Worker, error)
	Available(typeName string) bool
}

// Config tunes a Gatherer. Zero values fall back to the defaults.
type Config struct {
	MaxWorkers  int
	NodeTimeout time.Duration
}

// Gatherer polls nodes concurrently on a bounded pool.
type Gatherer struct {
	workers     WorkerSource
	logger      *slog.Logger
	maxWorkers  int
	nodeTimeout time.Duration
}

// New creates a Gatherer.
func New(workers WorkerSource, cfg Config, logger *slog.Logger) *Gatherer {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	nodeTimeout := cfg.NodeTimeout
	if nodeTimeout <= 0 {
		nodeTimeout = DefaultNodeTimeout
	}

	return &Gatherer{
		workers:     workers,
		logger:      logger.With("component", "gatherer"),
		maxWorkers:  maxWorkers,
		nodeTimeout: nodeTimeout,
	}
}

// nodeRun is owned by exactly one goroutine at a time: the dispatcher, then the node's
// task, then the merge step after the pool has drained.
type nodeRun struct {
	spec      NodeSpec
	name      string
	lifecycle *fsm.FSM
	logger    *slog.Logger

	worker worker.Worker
	config worker.NodeConfig

	result   worker.RunResult
	err      error
	hosts    int
	duration time.Duration
}

// Gather runs one discovery pass over nodes and returns the merged inventory together with
// a per-node report. It never fails as a whole: broken nodes are reported and skipped.
//
// Nodes are merged in the order given. When two nodes report the same host key the later
// node wins; no deduplication across backends is attempted.
func (g *Gatherer) Gather(ctx context.Context, nodes []NodeSpec) *Result {
	result := &Result{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Inventory: worker.Inventory{},
	}
	logger := g.logger.With("run_id", result.RunID.String())

	logger.InfoContext(ctx, "Gather run starting",
		"nodes", len(nodes),
		"max_workers", g.maxWorkers,
		"node_timeout", g.nodeTimeout,
	)

	var group errgroup.Group
	group.SetLimit(g.maxWorkers)

	runs := make([]*nodeRun, len(nodes))
	for i, spec := range nodes {
		run := g.prepare(ctx, i, spec, logger)
		runs[i] = run
		if run.err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			run.skip(fmt.Errorf("gather cancelled before node started: %w", err))
			continue
		}
		group.Go(func() error {
			g.execute(ctx, run)
			return nil
		})
	}
	_ = group.Wait()

	owners := make(map[string]string)
	for _, run := range runs {
		g.merge(ctx, result.Inventory, owners, run)
	}

	result.Nodes = make([]NodeReport, len(runs))
	for i, run := range runs {
		result.Nodes[i] = run.report()
	}
	result.CompletedAt = time.Now()

	logger.InfoContext(ctx, "Gather run completed",
		"hosts", len(result.Inventory),
		"skipped", len(result.Problems()),
		"backend_failures", len(result.BackendFailures()),
		"duration", result.CompletedAt.Sub(result.StartedAt),
	)
	return result
}

// prepare resolves the worker and its configuration. Failures leave the node skipped.
func (g *Gatherer) prepare(ctx context.Context, index int, spec NodeSpec, logger *slog.Logger) *nodeRun {
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s#%d", spec.Type, index+1)
	}
	nodeLogger := logger.With("node", name, "type", spec.Type)

	run := &nodeRun{
		spec:      spec,
		name:      name,
		lifecycle: newLifecycle(nodeLogger),
		logger:    nodeLogger,
	}

	w, err := g.workers.Create(spec.Type)
	if err != nil {
		nodeLogger.WarnContext(ctx, "Skipping node with unknown worker type", "error", err)
		run.skip(err)
		return run
	}

	cfg, err := worker.Resolve(spec.Params, w.Parameters())
	if err != nil {
		nodeLogger.WarnContext(ctx, "Skipping node with invalid configuration", "error", err)
		run.skip(err)
		return run
	}

	// The cached probe rules out backends missing at start up, Valid catches ones lost since.
	reason := ""
	switch {
	case !g.workers.Available(spec.Type):
		reason = "runtime prerequisites not satisfied"
	case !w.Valid():
		reason = "runtime prerequisites no longer satisfied"
	}
	if reason != "" {
		err := &worker.UnavailableError{Type: spec.Type, Reason: reason}
		nodeLogger.WarnContext(ctx, "Skipping node with unavailable backend", "error", err)
		run.skip(err)
		return run
	}

	run.worker = w
	run.config = cfg
	run.event(eventValidate)
	return run
}

// execute configures and runs the worker under the per-node timeout.
func (g *Gatherer) execute(ctx context.Context, run *nodeRun) {
	if err := ctx.Err(); err != nil {
		run.skip(fmt.Errorf("gather cancelled before node started: %w", err))
		return
	}

	if aware, ok := run.worker.(worker.LoggerAware); ok {
		aware.SetLogger(run.logger)
	}

	if err := run.worker.SetNode(run.config); err != nil {
		run.logger.WarnContext(ctx, "Skipping node rejected by worker", "error", err)
		run.skip(err)
		return
	}

	nodeCtx, cancel := context.WithTimeout(ctx, g.nodeTimeout)
	defer cancel()

	start := time.Now()
	res := runBounded(nodeCtx, run.worker, run.spec.Type)
	run.duration = time.Since(start)

	if res.Err != nil && ctx.Err() != nil {
		run.logger.WarnContext(ctx, "Discarding node interrupted by cancellation", "error", res.Err)
		run.skip(fmt.Errorf("gather cancelled while node was running: %w", ctx.Err()))
		return
	}

	if res.Err != nil {
		run.logger.WarnContext(ctx, "Backend run failed",
			"error", res.Err,
			"partial_hosts", len(res.Hosts),
			"duration", run.duration,
		)
	} else {
		run.logger.InfoContext(ctx, "Backend run completed",
			"hosts", len(res.Hosts),
			"duration", run.duration,
		)
	}

	run.result = res
	run.err = res.Err
	run.event(eventExecute)
}

// merge copies an executed node's hosts into inv. It must only be called serially.
func (g *Gatherer) merge(ctx context.Context, inv worker.Inventory, owners map[string]string, run *nodeRun) {
	if run.lifecycle.Current() != StateExecuted {
		return
	}

	for key, record := range run.result.Hosts {
		if previous, ok := owners[key]; ok {
			run.logger.DebugContext(ctx, "Host key collision, later node wins",
				"host_key", key,
				"previous_node", previous,
			)
		}
		inv[key] = record
		owners[key] = run.name
	}
	run.hosts = len(run.result.Hosts)
	run.event(eventMerge)
}

// runBounded runs the worker and stops waiting once ctx is done, even if the worker does not
// honour the context. The worker is discarded afterwards so nothing else touches it.
func runBounded(ctx context.Context, w worker.Worker, workerType string) worker.RunResult {
	done := make(chan worker.RunResult, 1)
	go func() {
		done <- safeRun(ctx, w, workerType)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return worker.Failed(nil, worker.NewBackendError(workerType, "run", ctx.Err()))
	}
}

func safeRun(ctx context.Context, w worker.Worker, workerType string) (res worker.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			res = worker.Failed(nil, worker.NewBackendError(workerType, "run", fmt.Errorf("panic: %v", r)))
		}
	}()

	res = w.Run(ctx)
	if res.Hosts == nil {
		res.Hosts = worker.Inventory{}
	}
	var backendErr *worker.BackendError
	if res.Err != nil && !errors.As(res.Err, &backendErr) {
		res.Err = worker.NewBackendError(workerType, "run", res.Err)
	}
	return res
}

func (r *nodeRun) event(name string) {
	if err := r.lifecycle.Event(context.Background(), name); err != nil {
		r.logger.Error("Invalid node state transition",
			"event", name,
			"state", r.lifecycle.Current(),
			"error", err,
		)
	}
}

func (r *nodeRun) skip(err error) {
	r.err = err
	r.event(eventSkip)
}

func (r *nodeRun) report() NodeReport {
	report := NodeReport{
		Name:     r.name,
		Type:     r.spec.Type,
		State:    r.lifecycle.Current(),
		Hosts:    r.hosts,
		Duration: r.duration,
		Err:      r.err,
	}
	if r.err != nil {
		report.Error = r.err.Error()
	}
	return report
}
