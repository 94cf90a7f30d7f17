package gatherer

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// NodeSpec is one configured backend instance to poll.
type NodeSpec struct {
	Name   string
	Type   string
	Params map[string]any
}

// NodeReport is the per-node outcome of a run.
type NodeReport struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	State    string        `json:"state"`
	Hosts    int           `json:"hosts"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Result is the snapshot produced by one Gather call.
type Result struct {
	RunID       uuid.UUID        `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Inventory   worker.Inventory `json:"inventory"`
	Nodes       []NodeReport     `json:"nodes"`
}

// Problems returns the nodes that were skipped: unknown type, invalid configuration,
// unavailable backend or cancellation.
func (r *Result) Problems() []NodeReport {
	var problems []NodeReport
	for _, n := range r.Nodes {
		if n.State == StateSkipped {
			problems = append(problems, n)
		}
	}
	return problems
}

// BackendFailures returns merged nodes whose backend could not be fully enumerated.
func (r *Result) BackendFailures() []NodeReport {
	var failures []NodeReport
	for _, n := range r.Nodes {
		if n.State == StateMerged && n.Err != nil {
			failures = append(failures, n)
		}
	}
	return failures
}
