// Package dag implements the DAG Compiler & Validator (spec.md §4.2): it
// turns a workflow document into an executable DAG, detects cycles,
// desugars control.loop back-edges into a nested body subgraph, computes
// level bands, and validates handle compatibility. Grounded on the
// teacher's pkg/engine/dag_utils.go (DAG, DAGIndex, BuildDAG,
// TopologicalSort wave-based Kahn's algorithm).
package dag

import "github.com/netrun/flowengine/pkg/models"

// ExecutableNode is the Compiler's output form of a single workflow node
// (spec §3): dependencies, fanned-out successor handles, and its band.
type ExecutableNode struct {
	ID           string
	Type         string
	Config       map[string]interface{}
	Metadata     map[string]interface{}
	Dependencies map[string]bool
	// Outputs maps a source handle to the node ids it fans out to.
	Outputs map[string][]string
	Level   int
	// LoopBody is non-nil only for control.loop nodes: the compiled body
	// subgraph reachable from this node's "iteration" handle, desugared
	// out of the outer DAG per §4.5's recommended strategy (the loop node
	// is a single compound node at the outer level).
	LoopBody *DAG
	// LoopClosingNodeIDs records what the Compiler found while walking the
	// edge set; the loop's variable name and mode are not copied here and
	// are read from Config at run time.
	LoopClosingNodeIDs []string // body node ids whose outgoing edge targets this loop node
}

// DAG is the compiled, executable form of a workflow (or of a loop body
// subgraph, recursively).
type DAG struct {
	Nodes          map[string]*ExecutableNode
	ExecutionOrder [][]string // band index -> node ids, ascending within a band
	EntryPoints    []string
	ExitPoints     []string
}

// CompileResult is the Compiler's output (spec §4.2).
type CompileResult struct {
	IsValid  bool
	Errors   []models.ValidationError
	Warnings []models.ValidationError
	DAG      *DAG
}
