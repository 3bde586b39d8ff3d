// Package registry implements the Execution Registry (spec.md §4.8): the
// process-wide map of in-flight and recently-finished runs, and the
// start/get/list/send_control surface the control layer calls into.
// Grounded on the teacher's internal/application/engine/execution_manager.go
// (load workflow, build state, drive the executor, persist the result) but
// restructured from its synchronous request/response shape into the
// fire-and-poll-or-subscribe shape spec.md §4.8 requires: Start returns as
// soon as the run is registered, and the Scheduler drives it on its own
// goroutine.
package registry

import (
	"sync"
	"time"

	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/engine"
	"github.com/netrun/flowengine/pkg/models"
)

// run is one registry entry: the workflow, its compiled DAG, and the live
// ExecutionContext the Scheduler mutates on its own goroutine.
type run struct {
	mu sync.RWMutex

	id         string
	workflowID string
	workflow   *models.Workflow
	compiled   *dag.DAG
	execCtx    *engine.ExecutionContext

	status      models.RunStatus
	startedAt   time.Time
	completedAt *time.Time
	errs        []string
}

func (r *run) setStatus(status models.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	if status.IsTerminal() {
		now := time.Now()
		r.completedAt = &now
	}
}

func (r *run) addError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

// snapshot builds the persisted/reported Execution view of a run (spec
// §4.8's status shape), reading the live ExecutionContext for node-level
// detail.
func (r *run) snapshot() *models.Execution {
	r.mu.RLock()
	status := r.status
	startedAt := r.startedAt
	completedAt := r.completedAt
	errs := append([]string(nil), r.errs...)
	r.mu.RUnlock()

	if r.execCtx == nil {
		// A workflow that never compiled (spec §7 taxonomy 1/7): there is
		// no node-level detail to report, only the terminal failure.
		return &models.Execution{
			ID:          r.id,
			WorkflowID:  r.workflowID,
			Status:      status,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Errors:      errs,
		}
	}

	current, total := r.execCtx.Progress()
	results := r.execCtx.Results()
	statuses := r.execCtx.NodeStatuses()

	progress := 0.0
	if len(statuses) > 0 && r.compiled != nil && len(r.compiled.Nodes) > 0 {
		done := 0
		for _, st := range statuses {
			if st.IsTerminal() {
				done++
			}
		}
		progress = float64(done) / float64(len(r.compiled.Nodes)) * 100
	}

	return &models.Execution{
		ID:           r.id,
		WorkflowID:   r.workflowID,
		Status:       status,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		CurrentLevel: current,
		TotalLevels:  total,
		Progress:     progress,
		NodeStatuses: statuses,
		NodeResults:  results,
		Errors:       errs,
		Variables:    r.execCtx.Variables(),
	}
}
