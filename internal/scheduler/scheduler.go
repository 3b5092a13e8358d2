// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
}

func New(log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	adapter := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		log: log,
		ctx: context.Background(),
	}
}

// Add registers job under name using a standard five field spec or a
// descriptor such as "@hourly".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.runJob(name, job) })
	return err
}

func (s *Scheduler) runJob(name string, job Job) {
	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.log.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Run starts the schedule and blocks until ctx is done. Jobs see ctx and
// running jobs are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// Purger drops expired token revocations.
type Purger interface {
	PurgeRevoked(ctx context.Context) (int, error)
}

// PurgeRevokedJob wraps p as a job that logs how much it removed.
func PurgeRevokedJob(p Purger, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := p.PurgeRevoked(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("purged revoked tokens", zap.Int("count", n))
		}
		return nil
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
