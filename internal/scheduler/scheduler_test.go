package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type triggerRecorder struct {
	mu    sync.Mutex
	calls []Config
	err   error
}

func (r *triggerRecorder) trigger(_ context.Context, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cfg)
	return r.err
}

func (r *triggerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// 2024-01-15 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.Local)
}

func newTestScheduler(clock *fakeClock, rec *triggerRecorder) *Scheduler {
	return New(rec.trigger, WithClock(clock.Now))
}

func TestPollFiresOncePerDay(t *testing.T) {
	clock := &fakeClock{}
	rec := &triggerRecorder{}
	s := newTestScheduler(clock, rec)
	require.NoError(t, s.Arm(Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: WorkWeek()}))

	clock.Set(at(15, 8, 59))
	assert.False(t, s.Poll(context.Background()))

	clock.Set(at(15, 9, 0))
	assert.True(t, s.Poll(context.Background()))

	clock.Set(time.Date(2024, time.January, 15, 9, 0, 30, 0, time.Local))
	assert.False(t, s.Poll(context.Background()), "second poll in the same minute must not fire")

	clock.Set(at(15, 9, 1))
	assert.False(t, s.Poll(context.Background()))

	clock.Set(at(16, 9, 0))
	assert.True(t, s.Poll(context.Background()), "fires again on the next active day")

	assert.Equal(t, 2, rec.count())
	assert.Equal(t, "SalesDB", rec.calls[0].TargetDatabase)

	state := s.State()
	assert.Equal(t, ArmedWaiting, state.Phase)
	assert.Equal(t, at(16, 0, 0), state.LastTriggered)
}

func TestPollSkipsInactiveWeekdays(t *testing.T) {
	clock := &fakeClock{}
	rec := &triggerRecorder{}
	s := newTestScheduler(clock, rec)
	require.NoError(t, s.Arm(Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: WorkWeek()}))

	clock.Set(at(20, 9, 0)) // Saturday
	assert.False(t, s.Poll(context.Background()))
	clock.Set(at(21, 9, 0)) // Sunday
	assert.False(t, s.Poll(context.Background()))
	clock.Set(at(22, 9, 0))
	assert.True(t, s.Poll(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestPollWhileDisarmedDoesNothing(t *testing.T) {
	clock := &fakeClock{now: at(15, 9, 0)}
	rec := &triggerRecorder{}
	s := newTestScheduler(clock, rec)

	assert.False(t, s.Poll(context.Background()))

	require.NoError(t, s.Arm(Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: EveryDay()}))
	s.Disarm()
	assert.False(t, s.Poll(context.Background()))
	assert.Zero(t, rec.count())
	assert.Equal(t, Disarmed, s.State().Phase)
}

func TestRearmClearsLastTriggered(t *testing.T) {
	clock := &fakeClock{now: at(15, 9, 0)}
	rec := &triggerRecorder{}
	s := newTestScheduler(clock, rec)
	cfg := Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: EveryDay()}

	require.NoError(t, s.Arm(cfg))
	require.True(t, s.Poll(context.Background()))

	require.NoError(t, s.Arm(cfg))
	assert.True(t, s.State().LastTriggered.IsZero())
	assert.True(t, s.Poll(context.Background()), "re-arming in the trigger minute fires again")
	assert.Equal(t, 2, rec.count())
}

func TestTriggerErrorStillCountsAsFired(t *testing.T) {
	clock := &fakeClock{now: at(15, 9, 0)}
	rec := &triggerRecorder{err: errors.New("a backup is already running")}
	s := newTestScheduler(clock, rec)
	require.NoError(t, s.Arm(Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: EveryDay()}))

	assert.True(t, s.Poll(context.Background()))
	assert.False(t, s.Poll(context.Background()))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, ArmedWaiting, s.State().Phase)
}

func TestArmRequiresTargetDatabase(t *testing.T) {
	s := New(nil)
	err := s.Arm(Config{At: TimeOfDay{9, 0}, Weekdays: EveryDay()})
	assert.ErrorIs(t, err, ErrNoTargetDatabase)
	assert.Equal(t, Disarmed, s.State().Phase)
}

func TestNoWeekdaysNeverFires(t *testing.T) {
	clock := &fakeClock{now: at(15, 9, 0)}
	rec := &triggerRecorder{}
	s := newTestScheduler(clock, rec)
	require.NoError(t, s.Arm(Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}}))

	for day := 15; day < 22; day++ {
		clock.Set(at(day, 9, 0))
		assert.False(t, s.Poll(context.Background()))
	}
	_, ok := s.NextFire(at(15, 8, 0))
	assert.False(t, ok)
}

func TestNextFire(t *testing.T) {
	cfg := Config{TargetDatabase: "SalesDB", At: TimeOfDay{9, 0}, Weekdays: WorkWeek()}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's slot", at(15, 8, 0), at(15, 9, 0)},
		{"after today's slot", at(15, 9, 1), at(16, 9, 0)},
		{"friday evening skips weekend", at(19, 18, 0), at(22, 9, 0)},
		{"saturday", at(20, 9, 0), at(22, 9, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextFire(cfg, tt.now)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{9, 5}, tod)
	assert.Equal(t, "09:05", tod.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"mon,Wed", "friday"})
	require.NoError(t, err)
	assert.Equal(t, "Mon,Wed,Fri", days.String())

	days, err = ParseWeekdays([]string{"weekdays"})
	require.NoError(t, err)
	assert.Equal(t, WorkWeek(), days)

	days, err = ParseWeekdays([]string{"daily"})
	require.NoError(t, err)
	assert.Equal(t, EveryDay(), days)

	_, err = ParseWeekdays([]string{"funday"})
	assert.Error(t, err)
}

func TestRunnerPollsScheduler(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	fired := make(chan struct{}, 1)
	s := New(func(context.Context, Config) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, WithClock(clock.Now))

	now := clock.Now()
	require.NoError(t, s.Arm(Config{
		TargetDatabase: "SalesDB",
		At:             TimeOfDay{now.Hour(), now.Minute()},
		Weekdays:       EveryDay(),
	}))

	runner := NewRunner(s, time.Second, nil)
	runner.Start(context.Background())
	defer runner.Stop()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("runner never polled the scheduler")
	}
}

func TestRunnerDefaultsShortInterval(t *testing.T) {
	runner := NewRunner(New(nil), 0, nil)
	assert.Equal(t, DefaultPollInterval, runner.Interval())
}
