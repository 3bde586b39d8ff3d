package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext is a minimal Context for exercising the evaluator without
// pulling in pkg/engine's ExecutionContext (which would be an import cycle).
type fakeContext struct {
	nodeID string
	prev   map[string]interface{}
	order  []string
	vars   map[string]interface{}
	env    map[string]interface{}
	creds  map[string]interface{}
	loop   map[string]interface{}
}

func (c *fakeContext) CurrentNodeID() string { return c.nodeID }

func (c *fakeContext) PreviousResult(nodeID string) (interface{}, bool) {
	v, ok := c.prev[nodeID]
	return v, ok
}

func (c *fakeContext) PreviousResultByOffset(n int) (interface{}, bool) {
	if n < 0 || n >= len(c.order) {
		return nil, false
	}
	id := c.order[len(c.order)-1-n]
	v, ok := c.prev[id]
	return v, ok
}

func (c *fakeContext) WorkflowScope() map[string]interface{} { return c.vars }
func (c *fakeContext) Env() map[string]interface{}           { return c.env }
func (c *fakeContext) Credentials() map[string]interface{}   { return c.creds }
func (c *fakeContext) LoopFrame() map[string]interface{}     { return c.loop }

func newFakeContext() *fakeContext {
	return &fakeContext{
		prev:  map[string]interface{}{},
		vars:  map[string]interface{}{},
		env:   map[string]interface{}{},
		creds: map[string]interface{}{},
	}
}

func TestEvaluate_NoTemplateReturnsLiteral(t *testing.T) {
	e := NewEngine(0)
	out, err := e.Evaluate("plain string", newFakeContext())
	require.NoError(t, err)
	assert.Equal(t, "plain string", out)
}

func TestEvaluate_WholeExpressionReturnsNativeValue(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["port"] = 22

	out, err := e.Evaluate("{{ $vars.port }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 22, out)
}

func TestEvaluate_InterpolatesIntoSurroundingText(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["host"] = "10.0.0.1"

	out, err := e.Evaluate("ssh to {{ $vars.host }} now", ctx)
	require.NoError(t, err)
	assert.Equal(t, "ssh to 10.0.0.1 now", out)
}

func TestEvaluate_PreviousResultByOffset(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.prev["ping"] = map[string]interface{}{"reachable": true}
	ctx.order = []string{"ping"}

	out, err := e.Evaluate("{{ $prev.reachable }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEvaluate_PreviousResultByNodeID(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.prev["scan"] = map[string]interface{}{"port": 443}

	out, err := e.Evaluate("{{ $prev.scan.port }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 443, out)
}

func TestEvaluate_MissingPathYieldsNilNotError(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()

	out, err := e.Evaluate("{{ $vars.nonexistent }}", ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEvaluate_FilterPipeline(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["name"] = "  Router  "

	out, err := e.Evaluate("{{ $vars.name | trim | lower }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "router", out)
}

func TestEvaluate_DefaultFilterAppliesOnEmptyValue(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()

	out, err := e.Evaluate(`{{ $vars.missing | default("fallback") }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestEvaluate_UnknownFilterPassesValueThrough(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["name"] = "router"

	out, err := e.Evaluate("{{ $vars.name | reticulate }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "router", out)
}

func TestEvaluate_ComparisonExpression(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.prev["ping"] = map[string]interface{}{"latency": 12}
	ctx.order = []string{"ping"}

	out, err := e.Evaluate("{{ $prev.latency > 10 }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEvaluate_LogicalExpression(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.prev["ping"] = map[string]interface{}{"reachable": true, "latency": 5}
	ctx.order = []string{"ping"}

	out, err := e.Evaluate("{{ $prev.reachable && $prev.latency < 100 }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEvaluate_LoopFrame(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.loop = map[string]interface{}{"index": 2, "item": "10.0.0.3"}

	out, err := e.Evaluate("{{ $loop.item }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", out)
}

func TestEvaluate_EnvRoot(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.env["region"] = "us-east"

	out, err := e.Evaluate("{{ $env.region }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "us-east", out)
}

func TestEvaluate_CredsRoot(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.creds["username"] = "admin"

	out, err := e.Evaluate("{{ $creds.username }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", out)
}

func TestEvaluate_InputRoot(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["input"] = map[string]interface{}{"trigger": "webhook"}

	out, err := e.Evaluate("{{ $input.trigger }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "webhook", out)
}

func TestEvaluate_InputRootMissingYieldsNil(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()

	out, err := e.Evaluate("{{ $input.trigger }}", ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEvaluate_BareIdentifierFallsBackToWorkflowScopeThenEnv(t *testing.T) {
	e := NewEngine(0)
	ctx := newFakeContext()
	ctx.vars["target"] = "10.0.0.1"
	ctx.env["region"] = "us-east"

	out, err := e.Evaluate("{{ target }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", out)

	out, err = e.Evaluate("{{ region }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "us-east", out)
}

func TestValidateSyntax_ValidTemplatePasses(t *testing.T) {
	e := NewEngine(0)
	assert.NoError(t, e.ValidateSyntax("{{ $vars.target }}"))
	assert.NoError(t, e.ValidateSyntax("plain text, no templates"))
}

func TestValidateSyntax_UnclosedBraceIsNotASyntaxError(t *testing.T) {
	e := NewEngine(0)
	assert.NoError(t, e.ValidateSyntax("{{ unterminated"))
}

func TestValidateSyntax_MalformedExpressionFails(t *testing.T) {
	e := NewEngine(0)
	err := e.ValidateSyntax("{{ $vars.target && }}")
	assert.Error(t, err)
}

func TestHasTemplates(t *testing.T) {
	assert.True(t, HasTemplates("{{ $vars.target }}"))
	assert.False(t, HasTemplates("no templates here"))
}

func TestEvaluate_CacheReusesCompiledProgramAcrossCalls(t *testing.T) {
	e := NewEngine(4)
	ctx := newFakeContext()
	ctx.prev["ping"] = map[string]interface{}{"latency": 5}
	ctx.order = []string{"ping"}

	for i := 0; i < 3; i++ {
		out, err := e.Evaluate("{{ $prev.latency > 10 }}", ctx)
		require.NoError(t, err)
		assert.Equal(t, false, out)
	}
}
