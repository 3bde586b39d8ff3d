package registry

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netrun/flowengine/pkg/models"
)

func completedAt(ago time.Duration) *time.Time {
	t := time.Now().Add(-ago)
	return &t
}

func TestSweep_EvictsTerminalRunsOlderThanTTL(t *testing.T) {
	reg := &Registry{
		log: slog.Default(),
		runs: map[string]*run{
			"old-completed":   {id: "old-completed", status: models.RunStatusCompleted, completedAt: completedAt(2 * time.Hour)},
			"recent-completed": {id: "recent-completed", status: models.RunStatusCompleted, completedAt: completedAt(time.Minute)},
			"still-running":   {id: "still-running", status: models.RunStatusRunning},
		},
	}

	reg.sweep(time.Hour)

	_, oldStillThere := reg.runs["old-completed"]
	_, recentStillThere := reg.runs["recent-completed"]
	_, runningStillThere := reg.runs["still-running"]

	assert.False(t, oldStillThere, "a terminal run past the TTL must be evicted")
	assert.True(t, recentStillThere, "a terminal run within the TTL must be kept")
	assert.True(t, runningStillThere, "a non-terminal run has no completedAt and must never be evicted")
}

func TestSweep_NoEvictionsWhenNothingIsStale(t *testing.T) {
	reg := &Registry{
		log: slog.Default(),
		runs: map[string]*run{
			"recent": {id: "recent", status: models.RunStatusCompleted, completedAt: completedAt(time.Second)},
		},
	}

	reg.sweep(time.Hour)

	assert.Len(t, reg.runs, 1)
}

func TestSweep_EmptyRegistryIsNoOp(t *testing.T) {
	reg := &Registry{log: slog.Default(), runs: map[string]*run{}}
	reg.sweep(time.Hour)
	assert.Empty(t, reg.runs)
}
