package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrun/flowengine/pkg/blocktest"
	"github.com/netrun/flowengine/pkg/models"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	h := blocktest.NewPingHandler()

	require.NoError(t, r.Register(h.Name(), h))

	got, ok := r.Lookup("traffic.ping")
	require.True(t, ok)
	assert.Same(t, h, got)
}

func TestRegistry_LookupUnknownType(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("does.not.exist")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejectsEmptyType(t *testing.T) {
	r := NewRegistry()
	err := r.Register("", blocktest.NewPingHandler())
	assert.ErrorIs(t, err, models.ErrUnknownBlockType)
}

func TestRegistry_RegisterRejectsNilHandler(t *testing.T) {
	r := NewRegistry()
	err := r.Register("traffic.ping", nil)
	assert.ErrorIs(t, err, models.ErrUnknownBlockType)
}

func TestRegistry_RegisterOverwritesExisting(t *testing.T) {
	r := NewRegistry()
	first := blocktest.NewPingHandler()
	second := blocktest.NewEchoHandler("traffic.ping")

	require.NoError(t, r.Register("traffic.ping", first))
	require.NoError(t, r.Register("traffic.ping", second))

	got, ok := r.Lookup("traffic.ping")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	h := blocktest.NewPingHandler()
	require.NoError(t, r.Register(h.Name(), h))

	require.NoError(t, r.Unregister("traffic.ping"))

	_, ok := r.Lookup("traffic.ping")
	assert.False(t, ok)
}

func TestRegistry_UnregisterUnknownType(t *testing.T) {
	r := NewRegistry()
	err := r.Unregister("does.not.exist")
	assert.ErrorIs(t, err, models.ErrUnknownBlockType)
}

func TestRegistry_ListReturnsAllRegisteredTypes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("traffic.ping", blocktest.NewPingHandler()))
	require.NoError(t, r.Register("ssh.exec", blocktest.NewEchoHandler("ssh.exec")))

	types := r.List()
	assert.ElementsMatch(t, []string{"traffic.ping", "ssh.exec"}, types)
}

func TestRegistry_ListEmpty(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.List())
}
