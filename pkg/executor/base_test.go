package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseHandler_Accessors(t *testing.T) {
	b := &BaseHandler{
		TypeName:        "ssh.exec",
		InputHandleSet:  []string{"in"},
		OutputHandleSet: []string{"out", "error"},
	}

	assert.Equal(t, "ssh.exec", b.Name())
	assert.Equal(t, []string{"in"}, b.InputHandles())
	assert.Equal(t, []string{"out", "error"}, b.OutputHandles())
}

func TestBaseHandler_ValidateRequired(t *testing.T) {
	b := &BaseHandler{}
	resolved := map[string]interface{}{"host": "10.0.0.1"}

	assert.NoError(t, b.ValidateRequired(resolved, "host"))
	assert.Error(t, b.ValidateRequired(resolved, "host", "port"))
}

func TestGetString(t *testing.T) {
	resolved := map[string]interface{}{"host": "10.0.0.1", "count": 3}

	v, err := GetString(resolved, "host")
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.1", v)

	_, err = GetString(resolved, "missing")
	assert.Error(t, err)

	_, err = GetString(resolved, "count")
	assert.Error(t, err)
}

func TestGetStringDefault(t *testing.T) {
	resolved := map[string]interface{}{"host": "10.0.0.1", "count": 3}

	assert.Equal(t, "10.0.0.1", GetStringDefault(resolved, "host", "fallback"))
	assert.Equal(t, "fallback", GetStringDefault(resolved, "missing", "fallback"))
	assert.Equal(t, "fallback", GetStringDefault(resolved, "count", "fallback"))
}

func TestGetInt(t *testing.T) {
	resolved := map[string]interface{}{"port": float64(22), "literal": 443, "host": "x"}

	v, err := GetInt(resolved, "port")
	assert.NoError(t, err)
	assert.Equal(t, 22, v)

	v, err = GetInt(resolved, "literal")
	assert.NoError(t, err)
	assert.Equal(t, 443, v)

	_, err = GetInt(resolved, "host")
	assert.Error(t, err)

	_, err = GetInt(resolved, "missing")
	assert.Error(t, err)
}

func TestGetIntDefault(t *testing.T) {
	resolved := map[string]interface{}{"port": float64(22)}

	assert.Equal(t, 22, GetIntDefault(resolved, "port", 99))
	assert.Equal(t, 99, GetIntDefault(resolved, "missing", 99))
}

func TestGetBoolDefault(t *testing.T) {
	resolved := map[string]interface{}{"verbose": true, "host": "x"}

	assert.Equal(t, true, GetBoolDefault(resolved, "verbose", false))
	assert.Equal(t, false, GetBoolDefault(resolved, "missing", false))
	assert.Equal(t, true, GetBoolDefault(resolved, "host", true))
}
