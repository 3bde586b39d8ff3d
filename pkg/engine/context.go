// Package engine implements the Execution Context, Block Dispatcher, and
// Scheduler (spec.md §3-§4.4): the single-writer per-run state, the
// per-node invoke-with-timeout wrapper, and the wave-based scheduler that
// drives a compiled DAG to completion. Grounded on the teacher's
// pkg/engine/execution_state.go (mutex-guarded per-node maps) and
// pkg/engine/dag_executor.go (wave loop, active-edge routing).
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/netrun/flowengine/pkg/models"
)

// ExecutionContext is the per-run mutable state the Scheduler exclusively
// owns (spec §3 "Ownership"). Handlers and the Evaluator only ever see a
// read-only view through the Context interface in pkg/expr.
type ExecutionContext struct {
	mu sync.RWMutex

	env         map[string]interface{}
	credentials map[string]interface{}
	workflow    map[string]interface{}

	previousResults map[string]*models.NodeResult
	completionOrder []string
	currentNodeID   string

	loopFrame map[string]interface{}
	loopStack []map[string]interface{}

	nodeStatus map[string]models.NodeStatus

	currentLevel int
	totalLevels  int

	cancelFlag atomic.Bool
	pauseFlag  atomic.Bool
	cancelCh   chan struct{}
	cancelOnce sync.Once

	sink EventSink
}

// NewExecutionContext seeds a fresh context for a run: env and credentials
// come from the global scope (read-only after init), variables seed the
// mutable workflow scope (document defaults merged with caller overrides).
func NewExecutionContext(env, credentials, variables map[string]interface{}, sink EventSink) *ExecutionContext {
	ws := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		ws[k] = v
	}
	if env == nil {
		env = map[string]interface{}{}
	}
	if credentials == nil {
		credentials = map[string]interface{}{}
	}
	return &ExecutionContext{
		env:             env,
		credentials:     credentials,
		workflow:        ws,
		previousResults: make(map[string]*models.NodeResult),
		nodeStatus:      make(map[string]models.NodeStatus),
		cancelCh:        make(chan struct{}),
		sink:            sink,
	}
}

// --- pkg/expr.Context implementation ---

func (c *ExecutionContext) CurrentNodeID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentNodeID
}

func (c *ExecutionContext) PreviousResult(nodeID string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.previousResults[nodeID]
	if !ok {
		return nil, false
	}
	return r.Output, true
}

// PreviousResultByOffset walks back n completions from the current node's
// position in completion order (spec §4.1 "$prev with integer index n").
func (c *ExecutionContext) PreviousResultByOffset(n int) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n == 0 {
		r, ok := c.previousResults[c.currentNodeID]
		if !ok {
			return nil, false
		}
		return r.Output, true
	}
	pos := -1
	for i, id := range c.completionOrder {
		if id == c.currentNodeID {
			pos = i
			break
		}
	}
	if pos < 0 {
		pos = len(c.completionOrder)
	}
	idx := pos - n
	if idx < 0 || idx >= len(c.completionOrder) {
		return nil, false
	}
	r, ok := c.previousResults[c.completionOrder[idx]]
	if !ok {
		return nil, false
	}
	return r.Output, true
}

func (c *ExecutionContext) WorkflowScope() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workflow
}

func (c *ExecutionContext) Env() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.env
}

func (c *ExecutionContext) Credentials() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials
}

func (c *ExecutionContext) LoopFrame() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loopFrame
}

// --- Scheduler-facing mutation API ---

// SetCurrentNode records which node's parameters are about to be resolved.
func (c *ExecutionContext) SetCurrentNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentNodeID = nodeID
}

// RecordResult stores a node's result, overwriting any prior result for the
// same id (spec §3: "overwritten on re-execution in loops") and appending
// to completion order.
func (c *ExecutionContext) RecordResult(result *models.NodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previousResults[result.NodeID] = result
	c.completionOrder = append(c.completionOrder, result.NodeID)
}

// GetResult returns a node's last recorded result.
func (c *ExecutionContext) GetResult(nodeID string) (*models.NodeResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.previousResults[nodeID]
	return r, ok
}

// SetVariable writes workflow_scope[name] = value. Per spec §5 this is the
// only mutation path besides control.start's seeding, and concurrent
// writers (two variable_set blocks in the same band) race with an
// unspecified-but-atomic-per-assignment outcome, which this lock provides.
func (c *ExecutionContext) SetVariable(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workflow[name] = value
}

// GetVariable reads workflow_scope[name].
func (c *ExecutionContext) GetVariable(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.workflow[name]
	return v, ok
}

// PushLoopFrame enters a (possibly nested) loop body, saving the
// enclosing frame to be restored by PopLoopFrame (spec §4.5 "nested loops
// ... loop frames are restored on inner completion").
func (c *ExecutionContext) PushLoopFrame(frame map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopStack = append(c.loopStack, c.loopFrame)
	c.loopFrame = frame
}

// PopLoopFrame restores the enclosing loop frame (or nil at the outermost
// level) after a loop finishes.
func (c *ExecutionContext) PopLoopFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loopStack) == 0 {
		c.loopFrame = nil
		return
	}
	n := len(c.loopStack) - 1
	c.loopFrame = c.loopStack[n]
	c.loopStack = c.loopStack[:n]
}

// SetNodeStatus records a node's lifecycle status transition.
func (c *ExecutionContext) SetNodeStatus(nodeID string, status models.NodeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeStatus[nodeID] = status
}

// NodeStatus returns a node's last recorded status.
func (c *ExecutionContext) NodeStatus(nodeID string) models.NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodeStatus[nodeID]
}

// NodeStatuses returns a snapshot copy of every recorded node status.
func (c *ExecutionContext) NodeStatuses() map[string]models.NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.NodeStatus, len(c.nodeStatus))
	for k, v := range c.nodeStatus {
		out[k] = v
	}
	return out
}

// SetProgress records the current/total level band for progress events.
func (c *ExecutionContext) SetProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentLevel = current
	c.totalLevels = total
}

// Progress returns the current/total level band.
func (c *ExecutionContext) Progress() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLevel, c.totalLevels
}

// Variables returns a snapshot copy of the workflow scope, for the
// persisted execution snapshot (spec §4.8).
func (c *ExecutionContext) Variables() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.workflow))
	for k, v := range c.workflow {
		out[k] = v
	}
	return out
}

// Results returns a snapshot copy of every recorded node result.
func (c *ExecutionContext) Results() map[string]*models.NodeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*models.NodeResult, len(c.previousResults))
	for k, v := range c.previousResults {
		out[k] = v
	}
	return out
}

// --- cancellation / pause ---

// Cancel sets the cancel flag and closes the cancellation channel exactly
// once, so it is safe to call Cancel twice (spec §8 "double cancel is
// idempotent").
func (c *ExecutionContext) Cancel() {
	c.cancelFlag.Store(true)
	c.cancelOnce.Do(func() { close(c.cancelCh) })
}

// IsCancelled reports whether Cancel has been called.
func (c *ExecutionContext) IsCancelled() bool {
	return c.cancelFlag.Load()
}

// CancelChan is closed the moment Cancel is called; handlers select on it
// as their cooperative abort signal (spec §4.3).
func (c *ExecutionContext) CancelChan() <-chan struct{} {
	return c.cancelCh
}

// Pause sets the pause flag; the Scheduler spin-waits on it between bands.
func (c *ExecutionContext) Pause() {
	c.pauseFlag.Store(true)
}

// Resume clears the pause flag.
func (c *ExecutionContext) Resume() {
	c.pauseFlag.Store(false)
}

// IsPaused reports the current pause flag value.
func (c *ExecutionContext) IsPaused() bool {
	return c.pauseFlag.Load()
}

// Sink returns the event sink events are emitted to, or a no-op sink if
// none was configured.
func (c *ExecutionContext) Sink() EventSink {
	if c.sink == nil {
		return noopSink{}
	}
	return c.sink
}

type noopSink struct{}

func (noopSink) Emit(Event) {}

// sleepInterruptible sleeps for d or returns early if cancelCh closes,
// reporting whether it was interrupted. Used by control.delay and the
// retry backoff (spec §4.4.3, §4.4.5).
func sleepInterruptible(d time.Duration, cancelCh <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-cancelCh:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-cancelCh:
		return true
	}
}
