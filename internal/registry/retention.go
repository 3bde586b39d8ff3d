package registry

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// StartRetentionSweep schedules a periodic job that evicts terminal runs
// older than ttl from the in-memory run map (spec §4.8 "bookkeeping is
// bounded by a retention TTL"; the durable record lives on in the document
// store regardless). Returns the running cron.Cron so the caller can Stop
// it on shutdown.
func (reg *Registry) StartRetentionSweep(ttl time.Duration, interval time.Duration) (*cron.Cron, error) {
	spec := fmt.Sprintf("@every %s", interval)
	c := cron.New()
	_, err := c.AddFunc(spec, func() { reg.sweep(ttl) })
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// sweep removes every terminal run whose completion is older than ttl.
func (reg *Registry) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	evicted := 0
	for id, r := range reg.runs {
		r.mu.RLock()
		completedAt := r.completedAt
		r.mu.RUnlock()
		if completedAt != nil && completedAt.Before(cutoff) {
			delete(reg.runs, id)
			evicted++
		}
	}
	if evicted > 0 {
		reg.log.Info("retention sweep evicted runs", "count", evicted)
	}
}
