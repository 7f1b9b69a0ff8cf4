package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

const (
	DefaultPollInterval = 30 * time.Second
	// Intervals above a minute can step over the trigger minute entirely.
	maxReliableInterval = time.Minute
)

// Runner polls a Scheduler on a fixed interval.
type Runner struct {
	cron      *cron.Cron
	scheduler *Scheduler
	interval  time.Duration
	log       *logger.Logger
	cancel    context.CancelFunc
}

func NewRunner(s *Scheduler, interval time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	if interval < time.Second {
		interval = DefaultPollInterval
	}
	if interval > maxReliableInterval {
		log.Warnf("Scheduler poll interval %s exceeds one minute; the trigger minute may be missed", interval)
	}

	return &Runner{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log)))),
		scheduler: s,
		interval:  interval,
		log:       log,
	}
}

func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Start begins polling. Jobs receive a context cancelled by Stop.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Schedule(cron.Every(r.interval), cron.FuncJob(func() {
		r.scheduler.Poll(ctx)
	}))
	r.cron.Start()
	r.log.Debugf("Scheduler polling every %s", r.interval)
}

// Stop halts polling and waits for an in-flight poll to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.cron.Stop().Done()
}
