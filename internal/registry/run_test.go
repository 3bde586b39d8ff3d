package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/engine"
	"github.com/netrun/flowengine/pkg/models"
)

func TestRun_SetStatus_StampsCompletedAtOnTerminal(t *testing.T) {
	r := &run{id: "r1", status: models.RunStatusRunning}

	r.setStatus(models.RunStatusRunning)
	assert.Nil(t, r.completedAt)

	r.setStatus(models.RunStatusCompleted)
	require.NotNil(t, r.completedAt)
}

func TestRun_AddError_Accumulates(t *testing.T) {
	r := &run{id: "r1"}
	r.addError("first")
	r.addError("second")
	assert.Equal(t, []string{"first", "second"}, r.errs)
}

func TestRun_Snapshot_NilExecCtxReportsBareFailure(t *testing.T) {
	r := &run{id: "r1", workflowID: "wf-1", status: models.RunStatusFailed}
	r.addError("compile failed: cycle detected")

	snap := r.snapshot()
	assert.Equal(t, "r1", snap.ID)
	assert.Equal(t, models.RunStatusFailed, snap.Status)
	assert.Equal(t, []string{"compile failed: cycle detected"}, snap.Errors)
	assert.Empty(t, snap.NodeResults)
	assert.Empty(t, snap.NodeStatuses)
}

func TestRun_Snapshot_ComputesProgressFromTerminalNodeStatuses(t *testing.T) {
	execCtx := engine.NewExecutionContext(nil, nil, nil, nil)
	execCtx.SetNodeStatus("start", models.NodeStatusCompleted)
	execCtx.SetNodeStatus("ping", models.NodeStatusCompleted)
	execCtx.SetNodeStatus("end", models.NodeStatusRunning)

	r := &run{
		id:         "r1",
		workflowID: "wf-1",
		status:     models.RunStatusRunning,
		execCtx:    execCtx,
		compiled: &dag.DAG{Nodes: map[string]*dag.ExecutableNode{
			"start": {}, "ping": {}, "end": {},
		}},
	}

	snap := r.snapshot()
	assert.InDelta(t, 66.66, snap.Progress, 0.5)
	assert.Equal(t, models.NodeStatusCompleted, snap.NodeStatuses["ping"])
}

func TestRun_Snapshot_EmptyCompiledDAGYieldsZeroProgress(t *testing.T) {
	execCtx := engine.NewExecutionContext(nil, nil, nil, nil)
	execCtx.SetNodeStatus("start", models.NodeStatusCompleted)
	r := &run{id: "r1", status: models.RunStatusRunning, execCtx: execCtx, compiled: &dag.DAG{}}

	snap := r.snapshot()
	assert.Zero(t, snap.Progress, "a run with no compiled nodes must not divide by zero")
}
