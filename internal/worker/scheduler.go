package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/live"
	"github.com/repaart/support-desk/internal/observability"
)

// Scheduler runs the periodic support desk jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger: logger,
	}
}

// Add schedules job under spec (standard cron or @every descriptors).
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		job(context.Background())
		s.logger.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len is the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// SLASweeper refreshes the SLA gauges from the recent ticket window.
type SLASweeper struct {
	loader     live.TicketLoader
	metrics    *observability.Metrics
	thresholds domain.SLAThresholds
	now        func() time.Time
	logger     *zap.Logger
}

// NewSLASweeper constructs a sweeper.
func NewSLASweeper(loader live.TicketLoader, metrics *observability.Metrics, thresholds domain.SLAThresholds, logger *zap.Logger) *SLASweeper {
	return &SLASweeper{loader: loader, metrics: metrics, thresholds: thresholds, now: time.Now, logger: logger}
}

// Run computes the SLA distribution once.
func (s *SLASweeper) Run(ctx context.Context) {
	tickets, err := s.loader.ListRecent(ctx)
	if err != nil {
		s.logger.Warn("sla sweep failed", zap.Error(err))
		return
	}
	m := aggregator.ComputeMetrics(tickets, s.now(), s.thresholds)
	s.metrics.SetSLA(m.BySLA)
	if m.BySLA[domain.SLACritical] > 0 {
		s.logger.Info("tickets past critical SLA", zap.Int("count", m.BySLA[domain.SLACritical]))
	}
}

// DeskReaper returns a job closing idle desks.
func DeskReaper(registry *desk.Registry) func(ctx context.Context) {
	return func(context.Context) {
		registry.Reap(time.Now())
	}
}
