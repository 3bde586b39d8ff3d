package dag

import (
	"fmt"
	"sort"

	"github.com/netrun/flowengine/pkg/blockspec"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/models"
	"github.com/netrun/flowengine/pkg/ports"
)

// Compiler turns a workflow document into an executable DAG (spec §4.2).
// It is deterministic: the same document compiles to a bit-equal result,
// since bands and diagnostics are sorted by node/edge id and successor
// lists keep the document's edge order.
type Compiler struct {
	evaluator *expr.Engine
	handlers  ports.HandlerRegistry
}

// NewCompiler creates a Compiler. handlers may be nil, in which case
// handle-compatibility checks are skipped for any block type the static
// blockspec table doesn't know about (useful for compiling fixtures that
// exercise only control-flow blocks).
func NewCompiler(evaluator *expr.Engine, handlers ports.HandlerRegistry) *Compiler {
	return &Compiler{evaluator: evaluator, handlers: handlers}
}

// Compile implements the Compiler steps of spec §4.2.
func (c *Compiler) Compile(wf *models.Workflow) *CompileResult {
	result := &CompileResult{}

	if err := wf.Validate(); err != nil {
		result.Errors = append(result.Errors, toValidationError(err))
		return result
	}

	nodesByID := make(map[string]*models.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodesByID[n.ID] = n
	}

	// Step 2: template syntax pre-validation.
	for _, n := range wf.Nodes {
		for key, val := range n.Config {
			if s, ok := val.(string); ok {
				if err := c.evaluator.ValidateSyntax(s); err != nil {
					result.Errors = append(result.Errors, models.ValidationError{
						Field:   fmt.Sprintf("nodes.%s.config.%s", n.ID, key),
						Message: err.Error(),
					})
				}
			}
		}
	}

	// Step 3: handle-compatibility validation.
	for _, e := range wf.Edges {
		src := nodesByID[e.Source]
		tgt := nodesByID[e.Target]
		if src == nil || tgt == nil {
			continue // already reported by wf.Validate as a dangling edge
		}
		if !c.handleSpec(src.Type).HasOutput(e.SourceHandle) {
			result.Errors = append(result.Errors, models.ValidationError{
				Field:   fmt.Sprintf("edges.%s.source_handle", e.ID),
				Message: fmt.Sprintf("block type %s has no output handle %q", src.Type, e.SourceHandle),
			})
		}
		if !c.handleSpec(tgt.Type).HasInput(e.TargetHandle) {
			result.Errors = append(result.Errors, models.ValidationError{
				Field:   fmt.Sprintf("edges.%s.target_handle", e.ID),
				Message: fmt.Sprintf("block type %s has no input handle %q", tgt.Type, e.TargetHandle),
			})
		}
	}

	if len(result.Errors) > 0 {
		return result
	}

	compiled, warnings, err := c.compileGraph(wf.Nodes, wf.Edges)
	if err != nil {
		result.Errors = append(result.Errors, toValidationError(err))
		return result
	}

	result.DAG = compiled
	result.Warnings = warnings
	result.IsValid = true
	return result
}

// handleSpec resolves a block type's declared handles, preferring the
// static control-flow table and falling back to a registered handler.
func (c *Compiler) handleSpec(blockType string) blockspec.Spec {
	if s, ok := blockspec.Lookup(blockType); ok {
		return s
	}
	if c.handlers != nil {
		if h, ok := c.handlers.Lookup(blockType); ok {
			return blockspec.FromHandler(blockType, h.InputHandles(), h.OutputHandles())
		}
	}
	// Unknown type: permissive spec so compilation can still proceed;
	// the Dispatcher will fail the node at runtime with UnknownBlockType.
	return blockspec.Spec{Type: blockType}
}

// compileGraph desugars loop back-edges, checks for illegal cycles,
// computes level bands, and identifies entry/exit points. It is called
// recursively to compile a loop body subgraph with the same rules.
func (c *Compiler) compileGraph(nodes []*models.Node, edges []*models.Edge) (*DAG, []models.ValidationError, error) {
	nodesByID := make(map[string]*models.Node, len(nodes))
	for _, n := range nodes {
		nodesByID[n.ID] = n
	}

	loopBodies := make(map[string]*DAG)     // loop node id -> compiled body
	loopClosing := make(map[string][]string) // loop node id -> body node ids that edge back into it
	bodyNodeIDs := make(map[string]bool)     // union of all body node ids, excluded from the outer graph
	var warnings []models.ValidationError

	for _, n := range nodes {
		if n.Type != blockspec.TypeLoop {
			continue
		}
		entryIDs := successorsByHandle(edges, n.ID, blockspec.HandleIteration)
		if len(entryIDs) == 0 {
			continue
		}
		body, closing := extractLoopBody(n.ID, entryIDs, nodesByID, edges)
		bodyNodes := make([]*models.Node, 0, len(body))
		bodyEdges := make([]*models.Edge, 0)
		for _, id := range body {
			bodyNodeIDs[id] = true
			bodyNodes = append(bodyNodes, nodesByID[id])
		}
		bodySet := toSet(body)
		for _, e := range edges {
			if bodySet[e.Source] && bodySet[e.Target] {
				bodyEdges = append(bodyEdges, e)
			}
		}
		bodyDAG, bodyWarnings, err := c.compileGraph(bodyNodes, bodyEdges)
		if err != nil {
			return nil, nil, fmt.Errorf("loop %s body: %w", n.ID, err)
		}
		loopBodies[n.ID] = bodyDAG
		loopClosing[n.ID] = closing
		warnings = append(warnings, bodyWarnings...)
	}

	// Outer graph: every node not absorbed into a loop body.
	outerNodes := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		if !bodyNodeIDs[n.ID] {
			outerNodes = append(outerNodes, n)
		}
	}

	outerEdges := make([]*models.Edge, 0, len(edges))
	for _, e := range edges {
		if bodyNodeIDs[e.Source] || bodyNodeIDs[e.Target] {
			continue // absorbed into a loop body, or a closing back-edge
		}
		outerEdges = append(outerEdges, e)
	}

	adjacency := make(map[string]map[string][]string) // node -> handle -> successor ids
	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	dependencies := make(map[string]map[string]bool)
	for _, n := range outerNodes {
		adjacency[n.ID] = make(map[string][]string)
		inDegree[n.ID] = 0
		outDegree[n.ID] = 0
		dependencies[n.ID] = make(map[string]bool)
	}
	for _, e := range outerEdges {
		adjacency[e.Source][e.SourceHandle] = append(adjacency[e.Source][e.SourceHandle], e.Target)
		inDegree[e.Target]++
		outDegree[e.Source]++
		dependencies[e.Target][e.Source] = true
	}

	if err := checkAcyclic(outerNodes, inDegree, adjacency); err != nil {
		return nil, nil, err
	}

	levels := computeLevels(outerNodes, dependencies)

	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}
	bands := make([][]string, maxLevel+1)
	for _, n := range outerNodes {
		lvl := levels[n.ID]
		bands[lvl] = append(bands[lvl], n.ID)
	}
	for _, band := range bands {
		sort.Strings(band)
	}

	result := &DAG{Nodes: make(map[string]*ExecutableNode, len(outerNodes)), ExecutionOrder: bands}
	for _, n := range outerNodes {
		deps := make(map[string]bool)
		for d := range dependencies[n.ID] {
			deps[d] = true
		}
		en := &ExecutableNode{
			ID:           n.ID,
			Type:         n.Type,
			Config:       n.Config,
			Metadata:     n.Metadata,
			Dependencies: deps,
			Outputs:      adjacency[n.ID],
			Level:        levels[n.ID],
		}
		if body, ok := loopBodies[n.ID]; ok {
			en.LoopBody = body
			en.LoopClosingNodeIDs = loopClosing[n.ID]
		}
		result.Nodes[n.ID] = en
		if inDegree[n.ID] == 0 {
			result.EntryPoints = append(result.EntryPoints, n.ID)
		}
		if outDegree[n.ID] == 0 {
			result.ExitPoints = append(result.ExitPoints, n.ID)
		}
	}
	sort.Strings(result.EntryPoints)
	sort.Strings(result.ExitPoints)

	warnings = append(warnings, detectWarnings(outerNodes, result)...)
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Field < warnings[j].Field })

	return result, warnings, nil
}

// successorsByHandle returns, in id order, the targets of edges leaving
// nodeID on the given source handle.
func successorsByHandle(edges []*models.Edge, nodeID, handle string) []string {
	var out []string
	for _, e := range edges {
		if e.Source == nodeID && e.SourceHandle == handle {
			out = append(out, e.Target)
		}
	}
	sort.Strings(out)
	return out
}

// extractLoopBody does a forward BFS from entryIDs, collecting every node
// reached until an edge targets loopNodeID (that edge closes the cycle and
// is excluded from the body; its source is recorded as a closing node).
func extractLoopBody(loopNodeID string, entryIDs []string, nodesByID map[string]*models.Node, edges []*models.Edge) ([]string, []string) {
	outgoing := make(map[string][]*models.Edge)
	for _, e := range edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	visited := make(map[string]bool)
	var order []string
	var closing []string
	queue := append([]string{}, entryIDs...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] || id == loopNodeID {
			continue
		}
		if _, ok := nodesByID[id]; !ok {
			continue
		}
		visited[id] = true
		order = append(order, id)
		for _, e := range outgoing[id] {
			if e.Target == loopNodeID {
				closing = append(closing, id)
				continue
			}
			if !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}
	sort.Strings(order)
	sort.Strings(closing)
	return order, closing
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// checkAcyclic runs Kahn's algorithm (spec §4.2 step 4): while a node with
// in-degree zero exists, remove it and decrement neighbors. Any node left
// over is part of an illegal cycle.
func checkAcyclic(nodes []*models.Node, inDegree map[string]int, adjacency map[string]map[string][]string) error {
	working := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		working[k] = v
	}
	remaining := len(working)
	for remaining > 0 {
		progressed := false
		var zero []string
		for id, d := range working {
			if d == 0 {
				zero = append(zero, id)
			}
		}
		if len(zero) == 0 {
			break
		}
		sort.Strings(zero)
		for _, id := range zero {
			delete(working, id)
			remaining--
			progressed = true
			for _, succs := range adjacency[id] {
				for _, s := range succs {
					if _, ok := working[s]; ok {
						working[s]--
					}
				}
			}
		}
		if !progressed {
			break
		}
	}
	if remaining > 0 {
		var stuck []string
		for id := range working {
			stuck = append(stuck, id)
		}
		sort.Strings(stuck)
		return fmt.Errorf("%w: nodes involved: %v", models.ErrCycleDetected, stuck)
	}
	return nil
}

// computeLevels implements level(n) = 0 if dependencies(n) = ∅, else
// 1 + max(level(d)) via memoized DFS (spec §3).
func computeLevels(nodes []*models.Node, dependencies map[string]map[string]bool) map[string]int {
	memo := make(map[string]int, len(nodes))
	var visit func(id string) int
	visit = func(id string) int {
		if lvl, ok := memo[id]; ok {
			return lvl
		}
		deps := dependencies[id]
		if len(deps) == 0 {
			memo[id] = 0
			return 0
		}
		max := 0
		for d := range deps {
			if lvl := visit(d); lvl+1 > max {
				max = lvl + 1
			}
		}
		memo[id] = max
		return max
	}
	for _, n := range nodes {
		visit(n.ID)
	}
	return memo
}

// detectWarnings implements spec §4.2 step 8: unreachable nodes and
// unconnected required input handles.
func detectWarnings(nodes []*models.Node, compiled *DAG) []models.ValidationError {
	var warnings []models.ValidationError

	reachable := make(map[string]bool)
	queue := append([]string{}, compiled.EntryPoints...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		en := compiled.Nodes[id]
		if en == nil {
			continue
		}
		for _, succs := range en.Outputs {
			queue = append(queue, succs...)
		}
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !reachable[id] {
			warnings = append(warnings, models.ValidationError{
				Field:   fmt.Sprintf("nodes.%s", id),
				Message: "node is unreachable from any entry point",
			})
		}
	}

	for _, id := range ids {
		en := compiled.Nodes[id]
		if en == nil || len(en.Dependencies) > 0 {
			continue
		}
		if blockspec.IsControlFlow(en.Type) && en.Type == blockspec.TypeStart {
			continue
		}
		warnings = append(warnings, models.ValidationError{
			Field:   fmt.Sprintf("nodes.%s", id),
			Message: "node has no incoming edge and is not a control.start block",
		})
	}

	return warnings
}

func toValidationError(err error) models.ValidationError {
	if ve, ok := err.(*models.ValidationError); ok {
		return *ve
	}
	return models.ValidationError{Field: "workflow", Message: err.Error()}
}
