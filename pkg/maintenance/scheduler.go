// Package maintenance runs periodic background jobs against a
// kvstore.Store, scheduled with github.com/robfig/cron/v3.
package maintenance

import (
	"github.com/robfig/cron/v3"

	"github.com/emberkv/emberkv/pkg/kvstore"
	"github.com/emberkv/emberkv/pkg/logging"
)

// StatsProvider is implemented by kvstore.Store[string].
type StatsProvider interface {
	Stats() kvstore.StoreStats
}

// Scheduler runs cron-triggered maintenance jobs. The only job it can
// register is periodic occupancy logging, via ScheduleOccupancyLog.
type Scheduler struct {
	cron  *cron.Cron
	log   *logging.Logger
	store StatsProvider
}

// New returns a Scheduler over store. It does not start running jobs
// until Start is called.
func New(store StatsProvider) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		log:   logging.Default().Named("maintenance"),
		store: store,
	}
}

// ScheduleOccupancyLog registers a job that logs store occupancy stats on
// the given cron schedule (e.g. "@every 1m" or "0 * * * *").
func (s *Scheduler) ScheduleOccupancyLog(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		stats := s.store.Stats()
		s.log.Infof("keyspaces=%d active_txns=%d recently_committed=%d",
			stats.KeySpaceCount, stats.ActiveTxnCount, stats.RecentlyCommittedCount)
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
