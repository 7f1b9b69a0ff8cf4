package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

// ErrNoTargetDatabase rejects arming without a database to back up.
var ErrNoTargetDatabase = errors.New("scheduler: target database is required")

// TriggerFunc starts the scheduled job. It must not block on the job itself.
type TriggerFunc func(ctx context.Context, cfg Config) error

// Scheduler decides, once per poll, whether the daily job is due. It fires
// at most once per calendar day.
type Scheduler struct {
	mu      sync.Mutex
	state   State
	trigger TriggerFunc
	now     func() time.Time
	log     *logger.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

func New(trigger TriggerFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		trigger: trigger,
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm moves the scheduler to ArmedWaiting with cfg.
func (s *Scheduler) Arm(cfg Config) error {
	if cfg.TargetDatabase == "" {
		return ErrNoTargetDatabase
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{Config: cfg, Phase: ArmedWaiting}
	s.log.Infof("Scheduler armed for %s at %s on %s", cfg.TargetDatabase, cfg.At, cfg.Weekdays)
	return nil
}

// Disarm stops the scheduler and forgets when it last fired.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Armed() {
		s.log.Info("Scheduler disarmed")
	}
	s.state.Phase = Disarmed
	s.state.LastTriggered = time.Time{}
}

// State returns a copy of the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Poll checks the clock once and fires the trigger when the configured
// minute has arrived on an active weekday that has not fired yet. It
// reports whether the trigger was invoked.
func (s *Scheduler) Poll(ctx context.Context) bool {
	s.mu.Lock()
	if s.state.Phase != ArmedWaiting {
		s.mu.Unlock()
		return false
	}

	now := s.now()
	cfg := s.state.Config
	if !cfg.Weekdays.Has(now.Weekday()) ||
		(!s.state.LastTriggered.IsZero() && sameDay(s.state.LastTriggered, now)) ||
		now.Hour() != cfg.At.Hour || now.Minute() != cfg.At.Minute {
		s.mu.Unlock()
		return false
	}

	s.state.Phase = ArmedTriggeredToday
	s.state.LastTriggered = calendarDay(now)
	s.mu.Unlock()

	s.log.Infof("Scheduled backup of %s is due (%s)", cfg.TargetDatabase, now.Format("2006-01-02 15:04"))
	if s.trigger != nil {
		if err := s.trigger(ctx, cfg); err != nil {
			s.log.Errorf("Scheduled backup of %s could not start: %v", cfg.TargetDatabase, err)
		}
	}

	s.mu.Lock()
	if s.state.Phase == ArmedTriggeredToday {
		s.state.Phase = ArmedWaiting
	}
	s.mu.Unlock()
	return true
}

// NextFire is advisory: the next instant the job would fire, or false when
// no weekday is active.
func (s *Scheduler) NextFire(now time.Time) (time.Time, bool) {
	s.mu.Lock()
	cfg := s.state.Config
	s.mu.Unlock()
	return NextFire(cfg, now)
}

// NextFire computes the next fire time for cfg relative to now.
func NextFire(cfg Config, now time.Time) (time.Time, bool) {
	today := cfg.At.On(now)
	if cfg.Weekdays.Has(now.Weekday()) && now.Before(today) {
		return today, true
	}
	for offset := 1; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		if cfg.Weekdays.Has(day.Weekday()) {
			return cfg.At.On(day), true
		}
	}
	return time.Time{}, false
}
