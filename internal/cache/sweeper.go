package cache

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fugue-ai/rhema/internal/logging"
)

// Sweeper drives MultiTier.Sweep on a fixed cadence via robfig/cron. The
// spec's "fixed cadence" is a cron expression rather than a raw
// time.Ticker so operators can tune it the same way they tune the rest of
// the daemon's scheduled work (the kernel's heartbeat scan).
type Sweeper struct {
	cron  *cron.Cron
	cache *MultiTier
	log   *logging.Logger
}

// NewSweeper schedules cache.Sweep to run at the given cron spec (e.g.
// "@every 30s"). It does not start the schedule; call Start.
func NewSweeper(c *MultiTier, spec string, log *logging.Logger) (*Sweeper, error) {
	s := &Sweeper{cron: cron.New(), cache: c, log: log}
	_, err := s.cron.AddFunc(spec, s.runSweep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) runSweep() {
	s.cache.Sweep(time.Now())
	if s.log != nil {
		m := s.cache.Metrics()
		s.log.WithFields(map[string]any{
			"hit_rate":   m.HitRate,
			"miss_rate":  m.MissRate,
			"total_reqs": m.TotalRequests,
		}).Debug("cache sweep complete")
	}
}

// Start begins the cron schedule in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }
