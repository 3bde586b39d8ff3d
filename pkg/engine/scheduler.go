package engine

import (
	"context"
	"sort"
	"time"

	"github.com/netrun/flowengine/pkg/blockspec"
	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/models"
)

// pollInterval is how often the band loop re-checks the pause flag while a
// run is paused (spec §4.6 "paused runs do not busy-loop the CPU").
const pollInterval = 50 * time.Millisecond

// Scheduler drives a compiled DAG to completion band by band, applying the
// active-edge rule, the retry wrapper, and the configured error-handling
// mode. Grounded on the teacher's pkg/engine/dag_executor.go wave loop,
// generalized from its fixed executor set to the registry-driven handler
// dispatch and control-flow block semantics spec.md §4.4/§4.5 describe.
type Scheduler struct {
	evaluator  *expr.Engine
	dispatcher *Dispatcher
}

// NewScheduler builds a Scheduler.
func NewScheduler(evaluator *expr.Engine, dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{evaluator: evaluator, dispatcher: dispatcher}
}

// incoming is one edge feeding into a node, reduced to just what the
// active-edge rule needs.
type incoming struct {
	sourceID string
	handle   string
}

// Run executes the full run state machine's "running" phase (spec §4.6):
// compiling and validating have already happened by the time a DAG reaches
// here. It emits run_state_changed on entry/exit and a final complete
// event, and returns the terminal RunStatus.
func (s *Scheduler) Run(ctx context.Context, d *dag.DAG, wf *models.Workflow, execCtx *ExecutionContext, executionID string) models.RunStatus {
	sink := execCtx.Sink()
	now := time.Now()
	sink.Emit(Event{Kind: EventRunStateChanged, ExecutionID: executionID, Timestamp: now, OldStatus: models.RunStatusValidating, NewStatus: models.RunStatusRunning})

	status := s.runDAG(ctx, d, wf.Settings, execCtx, executionID)

	sink.Emit(Event{Kind: EventRunStateChanged, ExecutionID: executionID, Timestamp: time.Now(), OldStatus: models.RunStatusRunning, NewStatus: status})
	sink.Emit(Event{Kind: EventComplete, ExecutionID: executionID, Timestamp: time.Now()})
	return status
}

// runDAG runs one DAG (the top-level workflow, or a loop body) to
// completion band by band. Apart from the paused/running pair waitIfPaused
// emits around a pause, it emits no run_state_changed itself; the caller
// (Run, or runLoop for a nested body) is the one with the context to know
// whether this is the top-level run or an iteration.
func (s *Scheduler) runDAG(ctx context.Context, d *dag.DAG, settings models.Settings, execCtx *ExecutionContext, executionID string) models.RunStatus {
	sink := execCtx.Sink()
	incomingOf := buildIncoming(d)
	activeHandles := make(map[string]map[string]bool) // nodeID -> set of activated output handles
	failed := false

	for bandIdx, band := range d.ExecutionOrder {
		execCtx.SetProgress(bandIdx+1, len(d.ExecutionOrder))

		for s.waitIfPaused(execCtx, executionID) {
		}
		if execCtx.IsCancelled() {
			return models.RunStatusCancelled
		}

		runnable, skipped := classifyBand(band, d, incomingOf, activeHandles)
		for _, id := range skipped {
			execCtx.SetNodeStatus(id, models.NodeStatusSkipped)
			sink.Emit(Event{Kind: EventNodeSkipped, ExecutionID: executionID, Timestamp: time.Now(), NodeID: id, Reason: "no active incoming edge"})
		}

		results := s.runBand(ctx, runnable, d, settings, execCtx, executionID)

		bandFailed := false
		for _, id := range runnable {
			node := d.Nodes[id]
			result := results[id]
			if result == nil {
				continue
			}
			execCtx.RecordResult(result)
			if result.Success {
				execCtx.SetNodeStatus(id, models.NodeStatusCompleted)
				activeHandles[id] = activatedHandles(node, result)
				sink.Emit(Event{Kind: EventNodeComplete, ExecutionID: executionID, Timestamp: time.Now(), NodeID: id, Result: result})
			} else {
				execCtx.SetNodeStatus(id, models.NodeStatusFailed)
				if settings.ErrorHandling == models.ErrorHandlingContinue {
					// §4.4.4 "continue": downstream of the failed node still
					// runs, unlike skip-branch/stop which dead-end the branch.
					activeHandles[id] = activatedHandles(node, result)
				} else {
					activeHandles[id] = nil
				}
				bandFailed = true
				failed = true
				sink.Emit(Event{Kind: EventNodeError, ExecutionID: executionID, Timestamp: time.Now(), NodeID: id, Result: result, Error: result.Error})
			}
		}

		sink.Emit(progressEvent(executionID, execCtx, d))

		if execCtx.IsCancelled() {
			return models.RunStatusCancelled
		}
		if bandFailed && settings.ErrorHandling == models.ErrorHandlingStop {
			for _, rest := range d.ExecutionOrder[bandIdx+1:] {
				for _, id := range rest {
					execCtx.SetNodeStatus(id, models.NodeStatusSkipped)
					sink.Emit(Event{Kind: EventNodeSkipped, ExecutionID: executionID, Timestamp: time.Now(), NodeID: id, Reason: "run stopped after a node failure"})
				}
			}
			return models.RunStatusFailed
		}
	}

	if failed && settings.ErrorHandling == models.ErrorHandlingContinue {
		return models.RunStatusFailed
	}
	if failed && settings.ErrorHandling == models.ErrorHandlingSkipBranch {
		if anyExitSucceeded(d, execCtx) {
			return models.RunStatusCompleted
		}
		return models.RunStatusFailed
	}
	if failed {
		return models.RunStatusFailed
	}
	return models.RunStatusCompleted
}

// waitIfPaused blocks while the run is paused, until it is resumed or
// cancelled, and always returns false, so the caller's for loop calls it
// once per band. It emits run_state_changed exactly once per pause/resume
// edge.
func (s *Scheduler) waitIfPaused(execCtx *ExecutionContext, executionID string) bool {
	if !execCtx.IsPaused() {
		return false
	}
	sink := execCtx.Sink()
	sink.Emit(Event{Kind: EventRunStateChanged, ExecutionID: executionID, Timestamp: time.Now(), OldStatus: models.RunStatusRunning, NewStatus: models.RunStatusPaused})
	for execCtx.IsPaused() && !execCtx.IsCancelled() {
		time.Sleep(pollInterval)
	}
	sink.Emit(Event{Kind: EventRunStateChanged, ExecutionID: executionID, Timestamp: time.Now(), OldStatus: models.RunStatusPaused, NewStatus: models.RunStatusRunning})
	return false
}

// buildIncoming inverts DAG.Nodes[*].Outputs into a per-target list of
// (source, handle) pairs, what the active-edge rule needs to decide
// whether a node runs or is skipped.
func buildIncoming(d *dag.DAG) map[string][]incoming {
	out := make(map[string][]incoming)
	for id, node := range d.Nodes {
		for handle, targets := range node.Outputs {
			for _, t := range targets {
				out[t] = append(out[t], incoming{sourceID: id, handle: handle})
			}
		}
	}
	return out
}

// classifyBand splits a band into nodes that should run (entry points, or
// nodes with at least one active incoming edge) and nodes that should be
// skipped (every incoming edge inactive).
func classifyBand(band []string, d *dag.DAG, incomingOf map[string][]incoming, activeHandles map[string]map[string]bool) (runnable, skipped []string) {
	for _, id := range band {
		ins := incomingOf[id]
		if len(ins) == 0 {
			runnable = append(runnable, id)
			continue
		}
		active := false
		for _, in := range ins {
			if handles, ok := activeHandles[in.sourceID]; ok && handles[in.handle] {
				active = true
				break
			}
		}
		if active {
			runnable = append(runnable, id)
		} else {
			skipped = append(skipped, id)
		}
	}
	return runnable, skipped
}

// activatedHandles returns which of a node's declared output handles are
// "live" after a successful result, per the active-edge rule (§4.4.2):
// control.condition and control.loop select exactly one via NextHandle;
// every other block type (including control.parallel) activates all of its
// wired output handles at once.
func activatedHandles(node *dag.ExecutableNode, result *models.NodeResult) map[string]bool {
	out := make(map[string]bool)
	switch node.Type {
	case blockspec.TypeCondition, blockspec.TypeLoop:
		if result.NextHandle != "" {
			out[result.NextHandle] = true
		}
	default:
		for handle := range node.Outputs {
			out[handle] = true
		}
	}
	return out
}

// defaultNodePriority is the priority assigned to a node whose metadata
// carries none, matching the teacher's engine.DefaultNodePriority.
const defaultNodePriority = 0

// nodePriority extracts a node's dispatch priority from its declared
// metadata, defaulting when absent or of an unrecognized type. Grounded on
// the teacher's pkg/engine/helpers.go#GetNodePriority.
func nodePriority(node *dag.ExecutableNode) int {
	if node.Metadata == nil {
		return defaultNodePriority
	}
	switch p := node.Metadata["priority"].(type) {
	case int:
		return p
	case int64:
		return int(p)
	case float64:
		return int(p)
	default:
		return defaultNodePriority
	}
}

// sortByPriority stably reorders a band's runnable node ids by descending
// metadata priority, ties kept in their incoming (id-ascending) order. This
// only changes the order nodes are handed to the parallel_limit-bounded
// pool, never which nodes run. Grounded on the teacher's
// pkg/engine/dag_utils.go#SortNodesByPriority insertion sort.
func sortByPriority(ids []string, d *dag.DAG) []string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		keyPriority := nodePriority(d.Nodes[key])
		j := i - 1
		for j >= 0 && nodePriority(d.Nodes[sorted[j]]) < keyPriority {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}
	return sorted
}

// runBand dispatches every runnable node in a band, bounded by the
// workflow's parallel_limit, and returns each node's result keyed by id.
func (s *Scheduler) runBand(ctx context.Context, ids []string, d *dag.DAG, settings models.Settings, execCtx *ExecutionContext, executionID string) map[string]*models.NodeResult {
	results := make(map[string]*models.NodeResult, len(ids))
	if len(ids) == 0 {
		return results
	}
	ids = sortByPriority(ids, d)

	limit := settings.ParallelLimit
	if limit <= 0 {
		limit = len(ids)
	}
	sem := make(chan struct{}, limit)
	type outcome struct {
		id     string
		result *models.NodeResult
	}
	ch := make(chan outcome, len(ids))

	for _, id := range ids {
		node := d.Nodes[id]
		sem <- struct{}{}
		go func(node *dag.ExecutableNode) {
			defer func() { <-sem }()
			result := s.runNode(ctx, node, settings, execCtx, executionID)
			ch <- outcome{id: node.ID, result: result}
		}(node)
	}
	for range ids {
		o := <-ch
		results[o.id] = o.result
	}
	return results
}

// runNode dispatches a single node: control-flow types are interpreted
// in-process (control.go); everything else goes through the Dispatcher
// wrapped in the retry policy.
func (s *Scheduler) runNode(ctx context.Context, node *dag.ExecutableNode, settings models.Settings, execCtx *ExecutionContext, executionID string) *models.NodeResult {
	sink := execCtx.Sink()
	execCtx.SetNodeStatus(node.ID, models.NodeStatusRunning)
	sink.Emit(Event{Kind: EventNodeStart, ExecutionID: executionID, Timestamp: time.Now(), NodeID: node.ID})

	if blockspec.IsControlFlow(node.Type) {
		result, err := s.runControl(ctx, node, settings, execCtx, executionID)
		if err != nil {
			return failResult(node.ID, err)
		}
		return result
	}

	rc := effectiveRetry(node, settings)
	result, err := dispatchWithRetry(ctx, s.dispatcher, execCtx, node, rc, sink, executionID)
	if err != nil {
		return failResult(node.ID, err)
	}
	return result
}

// progressEvent summarizes node status counts across the whole run (not
// just the current band), per spec §4.7's running-total progress shape.
func progressEvent(executionID string, execCtx *ExecutionContext, d *dag.DAG) Event {
	statuses := execCtx.NodeStatuses()
	var completed, failedN, skippedN int
	for _, st := range statuses {
		switch st {
		case models.NodeStatusCompleted:
			completed++
		case models.NodeStatusFailed:
			failedN++
		case models.NodeStatusSkipped:
			skippedN++
		}
	}
	total := len(d.Nodes)
	pct := 0.0
	if total > 0 {
		pct = float64(completed+failedN+skippedN) / float64(total) * 100
	}
	current, _ := execCtx.Progress()
	return Event{
		Kind: EventProgress, ExecutionID: executionID, Timestamp: time.Now(),
		Completed: completed, Total: total, Failed: failedN, Skipped: skippedN,
		Percentage: pct, Attempt: current,
	}
}

func anyExitSucceeded(d *dag.DAG, execCtx *ExecutionContext) bool {
	exits := d.ExitPoints
	if len(exits) == 0 {
		return false
	}
	for _, id := range exits {
		if r, ok := execCtx.GetResult(id); ok && r.Success {
			return true
		}
	}
	return false
}

// sortedKeys returns m's keys in ascending order. Nothing in this package
// calls it.
func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
