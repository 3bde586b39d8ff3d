package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/models"
	"github.com/netrun/flowengine/pkg/ports"
)

// Dispatcher resolves a node's parameters and invokes its handler (spec
// §4.3). It has no per-run state of its own; everything mutable lives on
// the ExecutionContext passed to Dispatch. Grounded on the teacher's
// pkg/engine/node_executor.go (resolve-then-invoke-then-wrap-timing shape).
type Dispatcher struct {
	evaluator   *expr.Engine
	handlers    ports.HandlerRegistry
	credentials ports.CredentialResolver
}

// NewDispatcher builds a Dispatcher. credentials may be nil if no node in
// the workflow uses credential_id (a nil resolver is only exercised when a
// node actually requests one, at which point Dispatch fails with
// ErrCredentialResolution).
func NewDispatcher(evaluator *expr.Engine, handlers ports.HandlerRegistry, credentials ports.CredentialResolver) *Dispatcher {
	return &Dispatcher{evaluator: evaluator, handlers: handlers, credentials: credentials}
}

// Dispatch resolves node.Config against execCtx, resolves any
// credential_id, looks up and invokes the node's handler, and returns a
// populated NodeResult. It never returns a non-nil error for a handler
// failure (that is HandlerResult.Success == false, folded into the
// NodeResult); the returned error is reserved for a run that was already
// cancelled before dispatch. Config resolution, credential resolution and
// unknown-block-type failures come back as a failed NodeResult with a nil
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, execCtx *ExecutionContext, node *dag.ExecutableNode, timeout time.Duration) (*models.NodeResult, error) {
	select {
	case <-execCtx.CancelChan():
		return nil, models.ErrCancelled
	default:
	}

	execCtx.SetCurrentNode(node.ID)

	resolved, err := d.ResolveConfig(node.Config, execCtx)
	if err != nil {
		return failResult(node.ID, err), nil
	}

	if err := d.resolveCredential(ctx, resolved); err != nil {
		return failResult(node.ID, err), nil
	}

	handler, ok := d.handlers.Lookup(node.Type)
	if !ok {
		return failResult(node.ID, fmt.Errorf("%w: %s", models.ErrUnknownBlockType, node.Type)), nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	hres, invokeErr := handler.Invoke(runCtx, resolved, execCtx.CancelChan())
	completed := time.Now()

	result := &models.NodeResult{
		NodeID:      node.ID,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}

	switch {
	case invokeErr != nil:
		result.Success = false
		if runCtx.Err() == context.DeadlineExceeded {
			result.Error = models.ErrNodeTimeout.Error()
		} else {
			result.Error = invokeErr.Error()
		}
	default:
		result.Success = hres.Success
		result.Output = hres.Output
		result.Error = hres.Error
		result.NextHandle = hres.NextHandle
		if !hres.Success && result.Error == "" {
			result.Error = models.ErrHandlerFailed.Error()
		}
	}
	return result, nil
}

// ResolveConfig evaluates every string-valued config field as a template;
// non-string values pass through unchanged (spec §4.3 step 1). Exported so
// the Scheduler's control-flow dispatch (control.go) can resolve a node's
// config the same way before interpreting it directly.
func (d *Dispatcher) ResolveConfig(config map[string]interface{}, execCtx *ExecutionContext) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(config))
	for k, v := range config {
		s, ok := v.(string)
		if !ok {
			resolved[k] = v
			continue
		}
		val, err := d.evaluator.Evaluate(s, execCtx)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", k, err)
		}
		resolved[k] = val
	}
	return resolved, nil
}

// resolveCredential fills username/password/private_key from the resolved
// credential_id, without overwriting fields the node config set inline
// (spec §4.3 step 2: "inline fields take precedence").
func (d *Dispatcher) resolveCredential(ctx context.Context, resolved map[string]interface{}) error {
	idVal, ok := resolved["credential_id"]
	if !ok {
		return nil
	}
	id, ok := idVal.(string)
	if !ok || id == "" {
		return nil
	}
	if d.credentials == nil {
		return models.ErrCredentialResolution
	}
	cred, err := d.credentials.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrCredentialResolution, err)
	}
	if _, has := resolved["username"]; !has && cred.Username != "" {
		resolved["username"] = cred.Username
	}
	if _, has := resolved["password"]; !has && cred.Password != "" {
		resolved["password"] = cred.Password
	}
	if _, has := resolved["private_key"]; !has && cred.PrivateKey != "" {
		resolved["private_key"] = cred.PrivateKey
	}
	return nil
}

func failResult(nodeID string, err error) *models.NodeResult {
	now := time.Now()
	return &models.NodeResult{
		NodeID:      nodeID,
		Success:     false,
		Error:       err.Error(),
		StartedAt:   now,
		CompletedAt: now,
	}
}
