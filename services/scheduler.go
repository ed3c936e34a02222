package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"danceportal_go/services/billing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	logArchiveCron = "30 2 * * *"
	logArchiveDays = 30
	jobTimeout     = 30 * time.Minute
)

// SchedulerConfig holds the cron expressions of the background jobs.
// An empty expression disables that job.
type SchedulerConfig struct {
	AutopayCron    string
	LogFlushCron   string
	LogArchiveCron string
}

type scheduledJob struct {
	name string
	spec string
	run  func(context.Context) error
}

// Scheduler runs autopay drafting and activity-log maintenance on cron.
type Scheduler struct {
	cron     *cron.Cron
	billing  *billing.Service
	archiver *LogArchiveService
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler registers the jobs. archiver may be nil.
func NewScheduler(cfg SchedulerConfig, b *billing.Service, archiver *LogArchiveService) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		billing:  b,
		archiver: archiver,
		ctx:      ctx,
		cancel:   cancel,
	}

	jobs := []scheduledJob{{"autopay-draft", cfg.AutopayCron, s.RunAutopay}}
	if archiver != nil {
		archiveSpec := cfg.LogArchiveCron
		if archiveSpec == "" {
			archiveSpec = logArchiveCron
		}
		jobs = append(jobs,
			scheduledJob{"log-flush", cfg.LogFlushCron, s.FlushLogs},
			scheduledJob{"log-archive", archiveSpec, s.ArchiveLogs},
		)
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		job := j
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid cron %q for %s: %w", job.spec, job.name, err)
		}
		logrus.WithFields(logrus.Fields{"job": job.name, "spec": job.spec}).Info("Scheduled job")
	}
	return s, nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	start := time.Now()
	if err := run(ctx); err != nil {
		logrus.WithError(err).WithField("job", name).Error("Scheduled job failed")
		return
	}
	logrus.WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()}).Debug("Scheduled job finished")
}

// RunAutopay drafts every family due today.
func (s *Scheduler) RunAutopay(ctx context.Context) error {
	_, err := s.billing.RunAutopayDraft(ctx, s.billing.Now())
	return err
}

// FlushLogs moves queued activity logs into the database.
func (s *Scheduler) FlushLogs(ctx context.Context) error {
	_, err := s.archiver.FlushCachedLogsToDatabase(ctx)
	return err
}

// ArchiveLogs archives activity logs older than 30 days.
func (s *Scheduler) ArchiveLogs(ctx context.Context) error {
	_, err := s.archiver.ArchiveOldLogs(ctx, logArchiveDays)
	if errors.Is(err, ErrArchiveNotConfigured) {
		return nil
	}
	return err
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
