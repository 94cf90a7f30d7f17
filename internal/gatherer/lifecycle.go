package gatherer

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// Node lifecycle states. A node only moves forward through them within one run.
const (
	StateUnconfigured = "unconfigured"
	StateValidated    = "validated"
	StateExecuted     = "executed"
	StateMerged       = "merged"
	StateSkipped      = "skipped"
)

const (
	eventValidate = "validate"
	eventExecute  = "execute"
	eventMerge    = "merge"
	eventSkip     = "skip"
)

func newLifecycle(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateUnconfigured,
		fsm.Events{
			{Name: eventValidate, Src: []string{StateUnconfigured}, Dst: StateValidated},
			{Name: eventExecute, Src: []string{StateValidated}, Dst: StateExecuted},
			{Name: eventMerge, Src: []string{StateExecuted}, Dst: StateMerged},
			{Name: eventSkip, Src: []string{StateUnconfigured, StateValidated, StateExecuted}, Dst: StateSkipped},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				logger.DebugContext(ctx, "Node state changed",
					"event", e.Event,
					"from", e.Src,
					"to", e.Dst,
				)
			},
		},
	)
}
