package sync

import (
	"context"
	"time"

	"pipeline-crm/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs imports for every active connector on a cron schedule.
// It stays idle when no schedule is configured.
type Scheduler struct {
	service  SyncService
	settings SettingRepository
	logger   *zap.Logger
	spec     string

	cron *cron.Cron
}

func NewScheduler(cfg *config.Config, service SyncService, settings SettingRepository, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		settings: settings,
		logger:   logger,
		spec:     cfg.SyncSchedule,
	}
}

func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("scheduled sync disabled, no schedule configured")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.runActiveImports); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduled sync enabled", zap.String("schedule", s.spec))
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *Scheduler) runActiveImports() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	settings, err := s.settings.ListActive(ctx)
	if err != nil {
		s.logger.Error("scheduled sync could not load active connectors", zap.Error(err))
		return
	}

	for _, setting := range settings {
		result, err := s.service.Import(ctx, setting.Provider)
		if err != nil {
			s.logger.Error("scheduled import failed",
				zap.String("provider", setting.Provider),
				zap.Error(err))
			continue
		}
		s.logger.Info("scheduled import finished",
			zap.String("provider", setting.Provider),
			zap.String("status", result.Status),
			zap.Int("processed", result.RecordsProcessed))
	}
}
