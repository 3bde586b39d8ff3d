package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrun/flowengine/pkg/blockspec"
	"github.com/netrun/flowengine/pkg/expr"
	"github.com/netrun/flowengine/pkg/models"
)

func newCompiler() *Compiler {
	return NewCompiler(expr.NewEngine(64), nil)
}

func node(id, typ string) *models.Node {
	return &models.Node{ID: id, Type: typ, Config: map[string]interface{}{}}
}

func edge(id, src, srcHandle, tgt, tgtHandle string) *models.Edge {
	return &models.Edge{ID: id, Source: src, SourceHandle: srcHandle, Target: tgt, TargetHandle: tgtHandle}
}

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		Name: "linear",
		Nodes: []*models.Node{
			node("start", blockspec.TypeStart),
			node("mid", blockspec.TypeDelay),
			node("end", blockspec.TypeEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "start", blockspec.HandleOut, "mid", blockspec.HandleIn),
			edge("e2", "mid", blockspec.HandleOut, "end", blockspec.HandleIn),
		},
		Settings: models.DefaultSettings(),
	}
}

func TestCompile_LinearWorkflow(t *testing.T) {
	result := newCompiler().Compile(linearWorkflow())
	require.True(t, result.IsValid, "errors: %v", result.Errors)
	require.NotNil(t, result.DAG)

	assert.Equal(t, []string{"start"}, result.DAG.EntryPoints)
	assert.Equal(t, []string{"end"}, result.DAG.ExitPoints)
	assert.Equal(t, [][]string{{"start"}, {"mid"}, {"end"}}, result.DAG.ExecutionOrder)
	assert.Equal(t, 0, result.DAG.Nodes["start"].Level)
	assert.Equal(t, 2, result.DAG.Nodes["end"].Level)
}

func TestCompile_DetectsCycle(t *testing.T) {
	wf := &models.Workflow{
		Name: "cyclic",
		Nodes: []*models.Node{
			node("a", blockspec.TypeDelay),
			node("b", blockspec.TypeDelay),
		},
		Edges: []*models.Edge{
			edge("e1", "a", blockspec.HandleOut, "b", blockspec.HandleIn),
			edge("e2", "b", blockspec.HandleOut, "a", blockspec.HandleIn),
		},
		Settings: models.DefaultSettings(),
	}

	result := newCompiler().Compile(wf)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "cycle")
}

func TestCompile_RejectsIncompatibleHandle(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges[0].SourceHandle = "nonexistent"

	result := newCompiler().Compile(wf)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "no output handle")
}

func TestCompile_WarnsOnUnreachableNode(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, node("orphan", blockspec.TypeDelay))
	wf.Edges = append(wf.Edges, edge("e3", "orphan", blockspec.HandleOut, "end", blockspec.HandleIn))

	result := newCompiler().Compile(wf)
	require.True(t, result.IsValid, "errors: %v", result.Errors)

	var found bool
	for _, w := range result.Warnings {
		if w.Field == "nodes.orphan" {
			found = true
		}
	}
	assert.True(t, found, "expected a warning on the orphan node, got %v", result.Warnings)
}

func TestCompile_DesugarsLoopBody(t *testing.T) {
	wf := &models.Workflow{
		Name: "looping",
		Nodes: []*models.Node{
			node("start", blockspec.TypeStart),
			node("loop", blockspec.TypeLoop),
			node("body", blockspec.TypeDelay),
			node("end", blockspec.TypeEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "start", blockspec.HandleOut, "loop", blockspec.HandleIn),
			edge("e2", "loop", blockspec.HandleIteration, "body", blockspec.HandleIn),
			edge("e3", "body", blockspec.HandleOut, "loop", blockspec.HandleIn),
			edge("e4", "loop", blockspec.HandleComplete, "end", blockspec.HandleIn),
		},
		Settings: models.DefaultSettings(),
	}

	result := newCompiler().Compile(wf)
	require.True(t, result.IsValid, "errors: %v", result.Errors)

	loopNode := result.DAG.Nodes["loop"]
	require.NotNil(t, loopNode)
	require.NotNil(t, loopNode.LoopBody)
	assert.Contains(t, loopNode.LoopBody.Nodes, "body")
	assert.Equal(t, []string{"body"}, loopNode.LoopClosingNodeIDs)
	_, bodyAbsorbed := result.DAG.Nodes["body"]
	assert.False(t, bodyAbsorbed, "loop body node must not appear in the outer DAG")
}

func TestCompile_DesugarsNestedLoopBody(t *testing.T) {
	wf := &models.Workflow{
		Name: "nested-looping",
		Nodes: []*models.Node{
			node("start", blockspec.TypeStart),
			node("outer", blockspec.TypeLoop),
			node("inner", blockspec.TypeLoop),
			node("leaf", blockspec.TypeDelay),
			node("end", blockspec.TypeEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "start", blockspec.HandleOut, "outer", blockspec.HandleIn),
			edge("e2", "outer", blockspec.HandleIteration, "inner", blockspec.HandleIn),
			edge("e3", "inner", blockspec.HandleIteration, "leaf", blockspec.HandleIn),
			edge("e4", "leaf", blockspec.HandleOut, "inner", blockspec.HandleIn),
			edge("e5", "inner", blockspec.HandleComplete, "outer", blockspec.HandleIn),
			edge("e6", "outer", blockspec.HandleComplete, "end", blockspec.HandleIn),
		},
		Settings: models.DefaultSettings(),
	}

	result := newCompiler().Compile(wf)
	require.True(t, result.IsValid, "errors: %v", result.Errors)

	outerNode := result.DAG.Nodes["outer"]
	require.NotNil(t, outerNode)
	require.NotNil(t, outerNode.LoopBody)
	assert.Contains(t, outerNode.LoopBody.Nodes, "inner")
	_, innerAbsorbedOutside := result.DAG.Nodes["inner"]
	assert.False(t, innerAbsorbedOutside, "inner loop node must be absorbed into the outer loop's body")

	innerNode := outerNode.LoopBody.Nodes["inner"]
	require.NotNil(t, innerNode)
	require.NotNil(t, innerNode.LoopBody, "the inner loop's own body must desugar recursively")
	assert.Contains(t, innerNode.LoopBody.Nodes, "leaf")
	_, leafAbsorbedInOuter := outerNode.LoopBody.Nodes["leaf"]
	assert.False(t, leafAbsorbedInOuter, "leaf must be absorbed into the inner loop's body, not the outer one")
}

func TestCompile_ParallelFanOutActivatesEveryOutputEdge(t *testing.T) {
	wf := &models.Workflow{
		Name: "fanout",
		Nodes: []*models.Node{
			node("start", blockspec.TypeStart),
			node("branch_a", blockspec.TypeDelay),
			node("branch_b", blockspec.TypeDelay),
			node("end", blockspec.TypeEnd),
		},
		Edges: []*models.Edge{
			edge("e1", "start", blockspec.HandleOut, "branch_a", blockspec.HandleIn),
			edge("e2", "start", blockspec.HandleOut, "branch_b", blockspec.HandleIn),
			edge("e3", "branch_a", blockspec.HandleOut, "end", blockspec.HandleIn),
			edge("e4", "branch_b", blockspec.HandleOut, "end", blockspec.HandleIn),
		},
		Settings: models.DefaultSettings(),
	}

	result := newCompiler().Compile(wf)
	require.True(t, result.IsValid, "errors: %v", result.Errors)

	startNode := result.DAG.Nodes["start"]
	require.NotNil(t, startNode)
	assert.ElementsMatch(t, []string{"branch_a", "branch_b"}, startNode.Outputs[blockspec.HandleOut],
		"a single handle fans out to every wired target, since only control.condition/control.loop pick one")
}

func TestCompile_RejectsInvalidWorkflowDocument(t *testing.T) {
	wf := &models.Workflow{Name: "empty"}
	result := newCompiler().Compile(wf)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "nodes", result.Errors[0].Field)
}

func TestCompile_RejectsBadTemplateSyntax(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].Config["target"] = "{{ foo.bar && }}"

	result := newCompiler().Compile(wf)
	assert.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Field, "config.target")
}
