package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b[0]", "c"}, splitSegments("a.b[0].c"))
	assert.Equal(t, []string{"a"}, splitSegments("a"))
	assert.Nil(t, splitSegments(""))
}

func TestSplitFieldAndIndices(t *testing.T) {
	name, indices := splitFieldAndIndices("items[0][1]")
	assert.Equal(t, "items", name)
	assert.Equal(t, []int{0, 1}, indices)

	name, indices = splitFieldAndIndices("[0]")
	assert.Equal(t, "", name)
	assert.Equal(t, []int{0}, indices)

	name, indices = splitFieldAndIndices("plain")
	assert.Equal(t, "plain", name)
	assert.Nil(t, indices)
}

func TestResolvePath_MapTraversal(t *testing.T) {
	root := map[string]interface{}{
		"a": map[string]interface{}{
			"b": "value",
		},
	}
	assert.Equal(t, "value", resolvePath(root, []string{"a", "b"}))
}

func TestResolvePath_IndexTraversal(t *testing.T) {
	root := map[string]interface{}{
		"items": []interface{}{"x", "y", "z"},
	}
	assert.Equal(t, "y", resolvePath(root, []string{"items[1]"}))
}

func TestResolvePath_MissingSegmentYieldsNil(t *testing.T) {
	root := map[string]interface{}{"a": "value"}
	assert.Nil(t, resolvePath(root, []string{"b", "c"}))
}

func TestResolvePath_IndexOutOfRangeYieldsNil(t *testing.T) {
	root := map[string]interface{}{"items": []interface{}{"x"}}
	assert.Nil(t, resolvePath(root, []string{"items[5]"}))
}

func TestResolvePath_StructFallsBackToJSONRoundTrip(t *testing.T) {
	type inner struct {
		Host string `json:"host"`
	}
	assert.Equal(t, "10.0.0.1", resolvePath(inner{Host: "10.0.0.1"}, []string{"host"}))
}

func TestIsRootToken(t *testing.T) {
	assert.True(t, isRootToken("$prev"))
	assert.True(t, isRootToken("$vars"))
	assert.True(t, isRootToken("target"))
	assert.False(t, isRootToken(""))
}
