package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netrun/flowengine/internal/observer"
	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/engine"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/models"
	"github.com/netrun/flowengine/pkg/ports"
)

// Registry is the Execution Registry (spec.md §4.8): the process-wide map
// of in-flight and recently-finished runs, and the start/get/list/
// send_control surface the control layer (cmd/server) calls into. Grounded
// on the teacher's internal/application/engine.ExecutionManager, whose
// Execute method this splits into a synchronous Start (compile, register,
// launch) and an asynchronous completion (the goroutine Start launches,
// mirroring ExecutionManager's own notify-observer-then-persist tail but
// run off the request path so Start can return immediately).
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*run

	store       ports.DocumentStore
	credentials ports.CredentialResolver
	handlers    ports.HandlerRegistry
	hub         *observer.Hub
	evaluator   *expr.Engine
	env         map[string]interface{}
	log         *slog.Logger
}

// New builds a Registry wired to its collaborators. evaluator is shared
// across every run's Compiler/Dispatcher, the same way the teacher shares
// one template engine instance across requests.
func New(store ports.DocumentStore, credentials ports.CredentialResolver, handlers ports.HandlerRegistry, hub *observer.Hub, evaluator *expr.Engine, env map[string]interface{}, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		runs:        make(map[string]*run),
		store:       store,
		credentials: credentials,
		handlers:    handlers,
		hub:         hub,
		evaluator:   evaluator,
		env:         env,
		log:         log,
	}
}

// StartOverrides is the POST start request body's overrides object (spec
// §6: "{workflow_id, overrides: {variables?, error_handling?, dry_run?}}").
type StartOverrides struct {
	Variables     map[string]interface{}
	ErrorHandling models.ErrorHandlingMode
	DryRun        bool
}

// Start compiles workflowID and launches it on its own goroutine, returning
// as soon as the run is registered and its initial snapshot is available
// (spec §4.8 "start returns an execution id immediately; the run itself
// proceeds in the background"). A document-store failure or a compile
// error never returns a Go error to the caller: per spec §7 taxonomy
// entries 1 and 7, both surface as a registered run with terminal status
// failed and no node events, so List/Get see it the same as any other run.
func (reg *Registry) Start(ctx context.Context, workflowID string, overrides StartOverrides) (*models.Execution, error) {
	executionID := uuid.NewString()
	now := time.Now()

	wf, err := reg.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return reg.registerFailed(executionID, workflowID, now, []string{err.Error()}), nil
	}

	compiler := dag.NewCompiler(reg.evaluator, reg.handlers)
	compileResult := compiler.Compile(wf)
	if !compileResult.IsValid {
		msgs := make([]string, 0, len(compileResult.Errors))
		for _, e := range compileResult.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
		}
		return reg.registerFailed(executionID, workflowID, now, msgs), nil
	}

	if overrides.ErrorHandling != "" {
		wf.Settings.ErrorHandling = overrides.ErrorHandling
	}
	merged := mergeVariables(wf.Variables, overrides.Variables)

	sink := reg.hub.SinkFor(executionID)
	creds := reg.resolveCredentialsScope(ctx, wf, executionID)
	execCtx := engine.NewExecutionContext(reg.env, creds, merged, sink)

	r := &run{
		id:         executionID,
		workflowID: workflowID,
		workflow:   wf,
		compiled:   compileResult.DAG,
		execCtx:    execCtx,
		status:     models.RunStatusRunning,
		startedAt:  now,
	}

	reg.mu.Lock()
	reg.runs[executionID] = r
	reg.mu.Unlock()

	if overrides.DryRun {
		r.setStatus(models.RunStatusCompleted)
		snapshot := r.snapshot()
		if err := reg.store.PutExecution(ctx, snapshot); err != nil {
			reg.log.Error("failed to persist dry-run snapshot", "execution_id", executionID, "error", err)
		}
		return snapshot, nil
	}

	dispatcher := engine.NewDispatcher(reg.evaluator, reg.handlers, reg.credentials)
	scheduler := engine.NewScheduler(reg.evaluator, dispatcher)

	go reg.drive(r, scheduler, wf)

	return r.snapshot(), nil
}

// registerFailed records a terminal failed run with no compiled DAG, for a
// workflow that could not be loaded or compiled. It still occupies a slot
// in the run map so Get/List see it like any other run.
func (reg *Registry) registerFailed(executionID, workflowID string, startedAt time.Time, errs []string) *models.Execution {
	completedAt := time.Now()
	r := &run{
		id:          executionID,
		workflowID:  workflowID,
		status:      models.RunStatusFailed,
		startedAt:   startedAt,
		completedAt: &completedAt,
		errs:        errs,
	}
	reg.mu.Lock()
	reg.runs[executionID] = r
	reg.mu.Unlock()

	exec := r.snapshot()
	if err := reg.store.PutExecution(context.Background(), exec); err != nil {
		reg.log.Error("failed to persist failed execution snapshot", "execution_id", executionID, "error", err)
	}
	return exec
}

// drive runs the scheduler to completion and persists the terminal
// snapshot, the background half of Start.
func (reg *Registry) drive(r *run, scheduler *engine.Scheduler, wf *models.Workflow) {
	status := scheduler.Run(context.Background(), r.compiled, wf, r.execCtx, r.id)
	r.setStatus(status)

	snapshot := r.snapshot()
	if err := reg.store.PutExecution(context.Background(), snapshot); err != nil {
		reg.log.Error("failed to persist execution snapshot", "execution_id", r.id, "error", err)
	}
}

// Get returns a run's current snapshot, falling back to the document store
// for runs this process instance no longer holds in memory (evicted by
// retention, or started by a peer behind a shared store).
func (reg *Registry) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	reg.mu.RLock()
	r, ok := reg.runs[executionID]
	reg.mu.RUnlock()
	if ok {
		return r.snapshot(), nil
	}
	return reg.store.GetExecution(ctx, executionID)
}

// List returns every run this process instance currently tracks in memory,
// most recently started first.
func (reg *Registry) List() []*models.Execution {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*models.Execution, 0, len(reg.runs))
	for _, r := range reg.runs {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// SendControl implements internal/observer.Controller and the POST control
// endpoint (spec §4.6/§6): pause, resume, and cancel all act on the live
// ExecutionContext directly, independent of which goroutine is driving it.
func (reg *Registry) SendControl(executionID, command string) error {
	reg.mu.RLock()
	r, ok := reg.runs[executionID]
	reg.mu.RUnlock()
	if !ok {
		return models.ErrRunNotFound
	}

	r.mu.RLock()
	status := r.status
	r.mu.RUnlock()
	if status.IsTerminal() {
		return models.ErrNotRunning
	}

	switch command {
	case "pause":
		r.execCtx.Pause()
	case "resume":
		r.execCtx.Resume()
	case "cancel":
		r.execCtx.Cancel()
	default:
		return fmt.Errorf("unknown control command %q", command)
	}
	return nil
}

// resolveCredentialsScope pre-resolves every credential_id a workflow's
// nodes declare into global_scope.credentials, the source the $creds root
// reads from (spec §4.1: "$creds → global_scope.credentials", a root
// distinct from the Dispatcher's own per-field inline credential_id
// substitution). A credential that fails to resolve is logged and left out
// of the scope rather than failing the run: $creds.<id> then resolves to
// null the same way any other missing segment does (spec §4.1 "a missing
// segment yields null, not an error").
func (reg *Registry) resolveCredentialsScope(ctx context.Context, wf *models.Workflow, executionID string) map[string]interface{} {
	ids := credentialIDsIn(wf)
	if len(ids) == 0 || reg.credentials == nil {
		return nil
	}

	out := make(map[string]interface{}, len(ids))
	for _, id := range ids {
		cred, err := reg.credentials.Resolve(ctx, id)
		if err != nil {
			reg.log.Warn("credential resolution failed, $creds for this id will be null", "execution_id", executionID, "credential_id", id, "error", err)
			continue
		}
		out[id] = map[string]interface{}{
			"username":    cred.Username,
			"password":    cred.Password,
			"private_key": cred.PrivateKey,
		}
	}
	return out
}

// credentialIDsIn collects every distinct literal credential_id a
// workflow's nodes declare, sorted for deterministic resolution order.
// Template-valued credential_id fields (resolved per-node at dispatch
// time) aren't known until a node actually runs, so they aren't
// pre-populated into $creds.
func credentialIDsIn(wf *models.Workflow) []string {
	seen := make(map[string]bool)
	for _, n := range wf.Nodes {
		id, ok := n.Config["credential_id"].(string)
		if !ok || id == "" {
			continue
		}
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mergeVariables layers caller-supplied overrides over the workflow
// document's own defaults, the same precedence as the teacher's
// ExecutionManager.mergeVariables.
func mergeVariables(defaults, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
