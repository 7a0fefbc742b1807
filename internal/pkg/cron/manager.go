package cron

import (
	"Homestead/internal/api/config"
	"Homestead/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine       *cron.Cron
	cfg          config.CronConfig
	resyncJob    *job.SnapshotResyncJob
	retentionJob *job.NotificationRetentionJob
}

func NewCronManager(cfg config.CronConfig, resyncJob *job.SnapshotResyncJob, retentionJob *job.NotificationRetentionJob) *Manager {
	return &Manager{
		engine: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		cfg:          cfg,
		resyncJob:    resyncJob,
		retentionJob: retentionJob,
	}
}

// RegisterJobs 注册定时任务，表达式为空表示不启用该任务
func (s *Manager) RegisterJobs() error {
	if s.cfg.Resync != "" {
		if _, err := s.engine.AddJob(s.cfg.Resync, s.resyncJob); err != nil {
			return err
		}
	}
	if s.cfg.Retention != "" {
		if _, err := s.engine.AddJob(s.cfg.Retention, s.retentionJob); err != nil {
			return err
		}
	}
	return nil
}

// Entries 已注册的任务数
func (s *Manager) Entries() int {
	return len(s.engine.Entries())
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "jobs", s.Entries())
	s.engine.Start()
}

// Stop 停止调度并等待运行中的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
