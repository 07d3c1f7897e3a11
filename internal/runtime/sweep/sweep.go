// Package sweep periodically removes stale idle agents from the Agent
// Runtime's registry, cron-scheduled rather than a bare ticker.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/swarmrun/swarmrun/internal/observability"
	"github.com/swarmrun/swarmrun/internal/runtime"
)

// Config governs the sweeper's schedule and staleness threshold.
type Config struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string
	// StaleAfter is how long an idle agent may sit unreferenced before a
	// sweep removes it.
	StaleAfter time.Duration
}

// DefaultConfig sweeps every minute, evicting agents idle for over an hour.
func DefaultConfig() Config {
	return Config{Schedule: "0 * * * * *", StaleAfter: time.Hour}
}

// Sweeper wraps a cron schedule around Runtime.SweepStale.
type Sweeper struct {
	cron   *cron.Cron
	rt     *runtime.Runtime
	config Config
	logger *observability.Logger
}

// New returns a Sweeper that has not yet started.
func New(rt *runtime.Runtime, config Config, logger *observability.Logger) *Sweeper {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Sweeper{
		cron:   cron.New(cron.WithSeconds()),
		rt:     rt,
		config: config,
		logger: logger,
	}
}

// Start schedules the sweep job and begins running it in the background.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, s.sweepOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweepOnce() {
	removed := s.rt.SweepStale(s.config.StaleAfter)
	if len(removed) > 0 && s.logger != nil {
		s.logger.Info(context.Background(), "runtime: swept stale agents", "count", len(removed))
	}
}
