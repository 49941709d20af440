package prune

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/threadline/threadline/internal/config"
)

// Purger hard deletes records soft deleted before cutoff and returns how
// many it removed.
type Purger interface {
	Name() string
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs registered purgers on a cron schedule, clearing soft-deleted
// threads, messages, bots and actions past the retention window.
type Service struct {
	cfg     config.PruneConfig
	purgers []Purger
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewService creates a prune service.
func NewService(log *slog.Logger, cfg config.PruneConfig, purgers ...Purger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		purgers: purgers,
		logger:  log.With(slog.String("service", "prune")),
	}
}

// Start schedules the purge job. Disabled configurations are a no-op.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("prune disabled")
		return nil
	}
	spec := s.cfg.Spec
	if spec == "" {
		spec = config.DefaultPruneSpec
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("prune schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("prune scheduled", slog.String("spec", spec), slog.Int("retain_days", s.retainDays()))
	return nil
}

// Stop halts the schedule, waiting for a running purge to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce purges immediately. Used by the scheduler and by tests.
func (s *Service) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retainDays())
	for _, purger := range s.purgers {
		removed, err := purger.Purge(ctx, cutoff)
		if err != nil {
			s.logger.Error("purge failed",
				slog.String("purger", purger.Name()),
				slog.Any("error", err),
			)
			continue
		}
		if removed > 0 {
			s.logger.Info("purged soft-deleted records",
				slog.String("purger", purger.Name()),
				slog.Int64("removed", removed),
			)
		}
	}
}

func (s *Service) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.RunOnce(ctx)
}

func (s *Service) retainDays() int {
	if s.cfg.RetainDays <= 0 {
		return config.DefaultRetainDays
	}
	return s.cfg.RetainDays
}
