package application

import (
	"context"
	"fmt"
	"time"

	"colorgame/domain/services"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Second

// Scheduler owns the periodic maintenance jobs
type Scheduler struct {
	cron       *cron.Cron
	catalog    *services.RoomCatalog
	stats      *services.StatsService
	supervisor *Supervisor
}

// NewScheduler registers the catalog refresh on catalogSpec and an hourly
// history reseed
func NewScheduler(catalogSpec string, catalog *services.RoomCatalog, stats *services.StatsService, supervisor *Supervisor) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		catalog:    catalog,
		stats:      stats,
		supervisor: supervisor,
	}

	if _, err := s.cron.AddFunc(catalogSpec, s.RefreshCatalog); err != nil {
		return nil, fmt.Errorf("invalid catalog refresh schedule %q: %w", catalogSpec, err)
	}
	if _, err := s.cron.AddFunc("@hourly", s.ReseedHistory); err != nil {
		return nil, fmt.Errorf("failed to schedule history reseed: %w", err)
	}
	return s, nil
}

// Start runs the jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RefreshCatalog reloads room templates and starts machines for new rooms
func (s *Scheduler) RefreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.catalog.Refresh(ctx); err != nil {
		return
	}
	if s.supervisor != nil {
		s.supervisor.Sync()
	}
}

// ReseedHistory rebuilds the outcome history from stored rounds
func (s *Scheduler) ReseedHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.stats.Seed(ctx); err != nil {
		log.WithError(err).Warn("History reseed failed")
	}
}
