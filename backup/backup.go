package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Service struct {
	dumper  Dumper
	copiers []Copier
	dir     string
	log     *zap.Logger
	now     func() time.Time
}

func NewService(dumper Dumper, dir string, log *zap.Logger, copiers ...Copier) *Service {
	return &Service{dumper: dumper, copiers: copiers, dir: dir, log: log, now: time.Now}
}

// Run dumps the database into the backup directory, then hands the dump to
// every copier. A failed copy fails the run but the local dump is kept.
func (s *Service) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(s.dir, "aloes-"+s.now().Format("20060102-150405")+s.dumper.Ext())

	start := time.Now()
	if err := s.dumper.Dump(ctx, path); err != nil {
		return "", err
	}
	s.log.Info("database dumped", zap.String("path", path), zap.Duration("took", time.Since(start)))

	for _, c := range s.copiers {
		if err := c.Copy(ctx, path); err != nil {
			return path, fmt.Errorf("copy backup: %w", err)
		}
	}
	return path, nil
}

// ParseAt reads a daily time written HH:MM.
func ParseAt(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid backup time %q: %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Job is extra daily housekeeping run after the backup.
type Job func(ctx context.Context) error

type Scheduler struct {
	svc  *Service
	spec string
	jobs []Job
	log  *zap.Logger
}

func NewScheduler(svc *Service, at string, log *zap.Logger, jobs ...Job) (*Scheduler, error) {
	hour, minute, err := ParseAt(at)
	if err != nil {
		return nil, err
	}
	return &Scheduler{svc: svc, spec: fmt.Sprintf("%d %d * * *", minute, hour), jobs: jobs, log: log}, nil
}

// Start blocks, running the backup every day until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.Local),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}
	c.Start()
	s.log.Info("daily backup scheduled", zap.String("schedule", s.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if path, err := s.svc.Run(ctx); err != nil {
		s.log.Error("scheduled backup failed", zap.String("path", path), zap.Error(err))
	}
	for _, job := range s.jobs {
		if err := job(ctx); err != nil {
			s.log.Error("daily job failed", zap.Error(err))
		}
	}
}
