package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netrun/flowengine/pkg/dag"
	"github.com/netrun/flowengine/pkg/models"
)

func TestEffectiveRetry_FallsBackToWorkflowSettings(t *testing.T) {
	settings := models.Settings{RetryCount: 2, RetryDelayMs: 500, TimeoutS: 10}
	node := &dag.ExecutableNode{Config: map[string]interface{}{}}

	rc := effectiveRetry(node, settings)
	assert.Equal(t, 2, rc.count)
	assert.Equal(t, 500_000_000, int(rc.delay))
	assert.Equal(t, int64(10_000_000_000), int64(rc.timeout))
}

func TestEffectiveRetry_NodeConfigOverridesWorkflowSettings(t *testing.T) {
	settings := models.Settings{RetryCount: 2, RetryDelayMs: 500, TimeoutS: 10}
	node := &dag.ExecutableNode{Config: map[string]interface{}{
		"retry_count":    float64(5),
		"retry_delay_ms": float64(100),
		"timeout":        float64(30),
	}}

	rc := effectiveRetry(node, settings)
	assert.Equal(t, 5, rc.count)
	assert.Equal(t, int64(100_000_000), int64(rc.delay))
	assert.Equal(t, int64(30_000_000_000), int64(rc.timeout))
}

func TestEffectiveRetry_ZeroNodeTimeoutDoesNotOverride(t *testing.T) {
	settings := models.Settings{TimeoutS: 10}
	node := &dag.ExecutableNode{Config: map[string]interface{}{"timeout": float64(0)}}

	rc := effectiveRetry(node, settings)
	assert.Equal(t, int64(10_000_000_000), int64(rc.timeout), "a zero node-level timeout must not override the workflow setting")
}

func TestEffectiveRetry_NonNumericOverrideIgnored(t *testing.T) {
	settings := models.Settings{RetryCount: 2}
	node := &dag.ExecutableNode{Config: map[string]interface{}{"retry_count": "not-a-number"}}

	rc := effectiveRetry(node, settings)
	assert.Equal(t, 2, rc.count)
}

func TestToInt(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{int(5), 5, true},
		{int64(6), 6, true},
		{float64(7), 7, true},
		{"nope", 0, false},
	}
	for _, c := range cases {
		got, ok := toInt(c.in)
		assert.Equal(t, c.ok, ok)
		if c.ok {
			assert.Equal(t, c.want, got)
		}
	}
}
