// Package blocktest provides minimal fake BlockHandlers standing in for the
// real SSH/scan/traffic plugins that spec.md places out of scope (§1). They
// exist purely so pkg/engine and internal/registry have something concrete
// to dispatch to in tests, the way the teacher's pkg/executor/builtin
// package supplies HTTP/LLM/transform executors for its own tests — kept
// deliberately trivial since real network handlers are external
// collaborators here, not something this module implements.
package blocktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/netrun/flowengine/pkg/ports"
)

// ScriptedHandler is a BlockHandler whose Invoke behavior is supplied by
// the caller as a plain function, letting tests script success/failure
// sequences (used for the retry scenario, §8 S4) without a real handler.
type ScriptedHandler struct {
	TypeName   string
	Inputs     []string
	Outputs    []string
	Schema     map[string]interface{}
	InvokeFunc func(ctx context.Context, resolved map[string]interface{}) (ports.HandlerResult, error)

	mu    sync.Mutex
	calls int
}

func (h *ScriptedHandler) Name() string                        { return h.TypeName }
func (h *ScriptedHandler) InputHandles() []string               { return h.Inputs }
func (h *ScriptedHandler) OutputHandles() []string              { return h.Outputs }
func (h *ScriptedHandler) Parameters() []ports.ParamSpec         { return nil }
func (h *ScriptedHandler) OutputSchema() map[string]interface{} { return h.Schema }

// CallCount returns how many times Invoke has run so far.
func (h *ScriptedHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *ScriptedHandler) Invoke(ctx context.Context, resolved map[string]interface{}, cancel <-chan struct{}) (ports.HandlerResult, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	select {
	case <-cancel:
		return ports.HandlerResult{Success: false, Error: "cancelled"}, nil
	default:
	}
	if h.InvokeFunc == nil {
		return ports.HandlerResult{Success: true}, nil
	}
	return h.InvokeFunc(ctx, resolved)
}

// NewPingHandler returns a fake "traffic.ping" handler that echoes a
// reachable/latency output for whatever host it's given, the way S1 in
// spec.md §8 expects.
func NewPingHandler() *ScriptedHandler {
	return &ScriptedHandler{
		TypeName: "traffic.ping",
		Inputs:   []string{"in"},
		Outputs:  []string{"out"},
		InvokeFunc: func(_ context.Context, resolved map[string]interface{}) (ports.HandlerResult, error) {
			host, _ := resolved["host"].(string)
			return ports.HandlerResult{
				Success: true,
				Output: map[string]interface{}{
					"host":      host,
					"reachable": true,
					"latency":   12,
				},
			}, nil
		},
	}
}

// NewFailNTimesHandler returns a handler that fails its first n invocations
// and succeeds thereafter, for exercising the retry wrapper (§8 S4).
func NewFailNTimesHandler(typeName string, n int) *ScriptedHandler {
	h := &ScriptedHandler{TypeName: typeName, Inputs: []string{"in"}, Outputs: []string{"out"}}
	h.InvokeFunc = func(_ context.Context, resolved map[string]interface{}) (ports.HandlerResult, error) {
		h.mu.Lock()
		attempt := h.calls
		h.mu.Unlock()
		if attempt <= n {
			return ports.HandlerResult{Success: false, Error: fmt.Sprintf("transient failure (attempt %d)", attempt)}, nil
		}
		return ports.HandlerResult{Success: true, Output: resolved}, nil
	}
	return h
}

// NewAlwaysFailHandler returns a handler that always reports failure.
func NewAlwaysFailHandler(typeName string) *ScriptedHandler {
	return &ScriptedHandler{
		TypeName: typeName,
		Inputs:   []string{"in"},
		Outputs:  []string{"out"},
		InvokeFunc: func(_ context.Context, _ map[string]interface{}) (ports.HandlerResult, error) {
			return ports.HandlerResult{Success: false, Error: "simulated failure"}, nil
		},
	}
}

// NewEchoHandler returns a handler that reports success and echoes its
// resolved parameters back as output, useful for generic "block did
// something" fixtures (SSH exec, scan, capture stand-ins).
func NewEchoHandler(typeName string) *ScriptedHandler {
	return &ScriptedHandler{
		TypeName: typeName,
		Inputs:   []string{"in"},
		Outputs:  []string{"out"},
		InvokeFunc: func(_ context.Context, resolved map[string]interface{}) (ports.HandlerResult, error) {
			return ports.HandlerResult{Success: true, Output: resolved}, nil
		},
	}
}

// NewRegistry builds a ports.HandlerRegistry pre-seeded with the named
// handlers, for tests that need a registry without pulling in
// pkg/executor.Registry's mutation API.
func NewRegistry(handlers ...ports.BlockHandler) *staticRegistry {
	r := &staticRegistry{m: make(map[string]ports.BlockHandler, len(handlers))}
	for _, h := range handlers {
		r.m[h.Name()] = h
	}
	return r
}

type staticRegistry struct{ m map[string]ports.BlockHandler }

func (r *staticRegistry) Lookup(blockType string) (ports.BlockHandler, bool) {
	h, ok := r.m[blockType]
	return h, ok
}
