package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/config"
	"github.com/mamadbah2/mouldtrack/internal/service/reporting"
)

const (
	refreshTimeout = time.Minute
	reportTimeout  = 2 * time.Minute
)

// Refresher reloads the listed collections.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Exporter writes the shift report to its external destination.
type Exporter interface {
	ExportToSheet(ctx context.Context) (int, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	listing  Refresher
	exporter Exporter
	cfg      config.SchedulerConfig
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance running in the configured
// timezone. A nil exporter skips the shift report job.
func NewScheduler(cfg config.SchedulerConfig, listing Refresher, exporter Exporter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load scheduler timezone: %w", err)
		}
		loc = l
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		listing:  listing,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.cfg.ListingRefresh != "" {
		if _, err := s.cron.AddFunc(s.cfg.ListingRefresh, s.refreshListings); err != nil {
			return fmt.Errorf("schedule listing refresh %q: %w", s.cfg.ListingRefresh, err)
		}
	}

	if s.exporter != nil && s.cfg.ShiftReport != "" {
		if _, err := s.cron.AddFunc(s.cfg.ShiftReport, s.exportShiftReport); err != nil {
			return fmt.Errorf("schedule shift report %q: %w", s.cfg.ShiftReport, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) refreshListings() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.listing.Refresh(ctx); err != nil {
		s.logger.Warn("scheduled listing refresh failed", zap.Error(err))
		return
	}
	s.logger.Debug("listings refreshed")
}

func (s *Scheduler) exportShiftReport() {
	s.logger.Info("exporting shift report")
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	n, err := s.exporter.ExportToSheet(ctx)
	switch {
	case errors.Is(err, reporting.ErrExportDisabled):
		s.logger.Debug("shift report export disabled")
	case err != nil:
		s.logger.Error("failed to export shift report", zap.Error(err))
	default:
		s.logger.Info("shift report exported successfully", zap.Int("rows", n))
	}
}
