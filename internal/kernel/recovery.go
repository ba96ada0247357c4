package kernel

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fugue-ai/rhema/internal/logging"
)

// CrashScanner drives Kernel.RecoverCrashedAgents on a fixed cadence, the
// kernel's half of the "network partition: same as crash after timeout"
// contract in §4.B — the daemon itself never blocks waiting on a client,
// it just periodically notices the silence.
type CrashScanner struct {
	cron   *cron.Cron
	kernel *Kernel
	log    *logging.Logger
}

// NewCrashScanner schedules a heartbeat scan at the given cron spec (e.g.
// "@every 5s" — should run at least as often as HeartbeatTimeout/2).
func NewCrashScanner(k *Kernel, spec string, log *logging.Logger) (*CrashScanner, error) {
	s := &CrashScanner{cron: cron.New(), kernel: k, log: log}
	if _, err := s.cron.AddFunc(spec, s.scan); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CrashScanner) scan() {
	crashed, err := s.kernel.RecoverCrashedAgents(time.Now())
	if err != nil && s.log != nil {
		s.log.WithError(err).Error("safety validator failed after crash recovery")
	}
	if len(crashed) > 0 && s.log != nil {
		s.log.WithFields(map[string]any{"count": len(crashed)}).Info("recovered crashed agents")
	}
}

// Start begins the cron schedule in the background.
func (s *CrashScanner) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight scan to finish.
func (s *CrashScanner) Stop() { <-s.cron.Stop().Done() }
