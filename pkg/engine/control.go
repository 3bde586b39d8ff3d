package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/netrun/flowengine/pkg/blockspec"
	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/models"
)

// runControl interprets one of the eight built-in control-flow block types
// directly, rather than dispatching to a registered BlockHandler (spec
// §4.4.5). Grounded on the teacher's condition_cache.go for the
// condition-evaluation shape and dag_executor.go's loop-iteration driver,
// generalized to the registry-driven handler model the rest of this engine
// uses.
func (s *Scheduler) runControl(ctx context.Context, node *dag.ExecutableNode, settings models.Settings, execCtx *ExecutionContext, executionID string) (*models.NodeResult, error) {
	started := time.Now()
	resolved, err := s.dispatcher.ResolveConfig(node.Config, execCtx)
	if err != nil {
		return nil, err
	}

	switch node.Type {
	case blockspec.TypeStart:
		return okResult(node.ID, started, nil, blockspec.HandleOut), nil

	case blockspec.TypeEnd:
		return okResult(node.ID, started, nil, ""), nil

	case blockspec.TypeDelay:
		seconds, _ := toFloat(resolved["seconds"])
		wait := time.Duration(seconds * float64(time.Second))
		if sleepInterruptible(wait, execCtx.CancelChan()) {
			r := okResult(node.ID, started, nil, "")
			r.Success = false
			r.Error = models.ErrCancelled.Error()
			return r, nil
		}
		return okResult(node.ID, started, nil, blockspec.HandleOut), nil

	case blockspec.TypeCondition:
		return s.runCondition(node, resolved, started)

	case blockspec.TypeLoop:
		return s.runLoop(ctx, node, resolved, settings, execCtx, executionID, started)

	case blockspec.TypeParallel:
		return okResult(node.ID, started, nil, ""), nil

	case blockspec.TypeVariableSet:
		name, _ := resolved["name"].(string)
		if name == "" {
			return failResult(node.ID, fmt.Errorf("control.variable_set: missing name")), nil
		}
		execCtx.SetVariable(name, resolved["value"])
		return okResult(node.ID, started, resolved["value"], blockspec.HandleOut), nil

	case blockspec.TypeVariableGet:
		name, _ := resolved["name"].(string)
		if name == "" {
			return failResult(node.ID, fmt.Errorf("control.variable_get: missing name")), nil
		}
		value, ok := execCtx.GetVariable(name)
		if !ok {
			return failResult(node.ID, fmt.Errorf("control.variable_get: variable %q is not set", name)), nil
		}
		return okResult(node.ID, started, value, blockspec.HandleOut), nil

	default:
		return failResult(node.ID, fmt.Errorf("unrecognized control-flow type: %s", node.Type)), nil
	}
}

// runCondition takes the truthiness of the node's resolved "expression"
// template and routes to the "true" or "false" handle. pkg/expr compiles
// that template with expr-lang and does not limit it to comparisons and
// booleans: arithmetic, builtin function calls and anything else expr-lang
// accepts are evaluated as well.
func (s *Scheduler) runCondition(node *dag.ExecutableNode, resolved map[string]interface{}, started time.Time) (*models.NodeResult, error) {
	value, ok := resolved["result"]
	if !ok {
		value = resolved["expression"]
	}
	truthy := isTruthy(value)
	handle := blockspec.HandleFalse
	if truthy {
		handle = blockspec.HandleTrue
	}
	return okResult(node.ID, started, truthy, handle), nil
}

func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return v != nil
	}
}

// runLoop drives a control.loop node's nested body DAG once per item of
// config.array (mode "array") or range(0, config.count) (mode "count"),
// pushing a full loop_frame per iteration so $loop resolves inside the body
// (spec §4.5). The iteration handle never appears at this graph level: the
// Compiler already extracted every node reachable from it into
// node.LoopBody, so this function is the only place that graph ever runs.
func (s *Scheduler) runLoop(ctx context.Context, node *dag.ExecutableNode, resolved map[string]interface{}, settings models.Settings, execCtx *ExecutionContext, executionID string, started time.Time) (*models.NodeResult, error) {
	items, err := loopItems(resolved)
	if err != nil {
		return failResult(node.ID, err), nil
	}

	variableName := "item"
	if v, ok := resolved["variable_name"].(string); ok && v != "" {
		variableName = v
	}

	if node.LoopBody == nil {
		return okResult(node.ID, started, items, blockspec.HandleComplete), nil
	}

	last := len(items) - 1
	for i, item := range items {
		if execCtx.IsCancelled() {
			break
		}
		execCtx.PushLoopFrame(map[string]interface{}{
			"index":     i,
			"iteration": i + 1,
			"first":     i == 0,
			"last":      i == last,
			"item":      item,
			"array":     items,
		})
		execCtx.SetVariable(variableName, item)
		status := s.runDAG(ctx, node.LoopBody, settings, execCtx, executionID)
		execCtx.PopLoopFrame()

		if status == models.RunStatusCancelled {
			break
		}
		if status == models.RunStatusFailed && settings.ErrorHandling == models.ErrorHandlingStop {
			r := okResult(node.ID, started, nil, blockspec.HandleComplete)
			r.Success = false
			r.Error = fmt.Sprintf("loop iteration %d failed", i)
			return r, nil
		}
	}

	return okResult(node.ID, started, map[string]interface{}{"iterations": len(items)}, blockspec.HandleComplete), nil
}

// loopItems resolves a loop node's iteration source per config.mode:
// "count" treats config.count as range(0, count); anything else evaluates
// config.array to a list (spec §4.5: "items ← config.mode == 'count' ?
// range(0, config.count) : evaluate(config.array)").
func loopItems(resolved map[string]interface{}) ([]interface{}, error) {
	mode, _ := resolved["mode"].(string)

	if mode == "count" {
		n, ok := toInt(resolved["count"])
		if !ok || n < 0 {
			return nil, fmt.Errorf("control.loop: count did not resolve to a non-negative integer")
		}
		items := make([]interface{}, n)
		for i := range items {
			items[i] = i
		}
		return items, nil
	}

	raw, ok := resolved["array"]
	if !ok {
		return nil, fmt.Errorf("control.loop: requires an array field (or mode: \"count\" with a count field)")
	}
	switch v := raw.(type) {
	case []interface{}:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("control.loop: array did not resolve to a list")
	}
}

func okResult(nodeID string, started time.Time, output interface{}, nextHandle string) *models.NodeResult {
	now := time.Now()
	return &models.NodeResult{
		NodeID:      nodeID,
		Success:     true,
		Output:      output,
		StartedAt:   started,
		CompletedAt: now,
		DurationMs:  now.Sub(started).Milliseconds(),
		NextHandle:  nextHandle,
	}
}
