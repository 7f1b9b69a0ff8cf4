package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
	"github.com/kadirbelkuyu/SQLBM/internal/pipeline"
)

type fakeConnector struct {
	mu         sync.Mutex
	connectErr error
	failOn     map[string]error
	block      chan struct{}
	executed   []string
	closed     int
}

func (f *fakeConnector) Connect(context.Context) (database.Session, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeSession{parent: f}, nil
}

func (f *fakeConnector) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

type fakeSession struct {
	parent *fakeConnector
}

func (s *fakeSession) Execute(ctx context.Context, stmt string) error {
	if s.parent.block != nil {
		select {
		case <-s.parent.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.executed = append(s.parent.executed, stmt)
	return s.parent.failOn[stmt]
}

func (s *fakeSession) Close() error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.closed++
	return nil
}

func collect(t *testing.T, events <-chan pipeline.Event) ([]pipeline.Event, pipeline.Outcome) {
	t.Helper()

	var progress []pipeline.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("channel closed without a final event")
			}
			if evt.Final() {
				_, open := <-events
				require.False(t, open, "channel must close after the final event")
				return progress, *evt.Outcome
			}
			progress = append(progress, evt)
		case <-timeout:
			t.Fatal("timed out waiting for pipeline events")
		}
	}
}

func TestRunSuccessClosesSession(t *testing.T) {
	connector := &fakeConnector{}
	seq := backup.NewSequence("Bulk backup", "SELECT 1", "SELECT 2")

	events, err := pipeline.New(nil).Start(context.Background(), seq, connector)
	require.NoError(t, err)

	progress, outcome := collect(t, events)
	require.Len(t, progress, 2)
	assert.Equal(t, 0, progress[0].Index)
	assert.Equal(t, 2, progress[1].Total)
	assert.Equal(t, "SELECT 2", progress[1].Preview)

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.FailedAtIndex)
	assert.Equal(t, "Operation 'Bulk backup' completed successfully", outcome.Message)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, connector.Executed())
	assert.Equal(t, 1, connector.closed)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	connector := &fakeConnector{failOn: map[string]error{
		"stmt-2": errors.New("Exclusive access could not be obtained because the database is in use."),
	}}
	seq := backup.NewSequence("three", "stmt-1", "stmt-2", "stmt-3")

	events, err := pipeline.New(nil).Start(context.Background(), seq, connector)
	require.NoError(t, err)

	progress, outcome := collect(t, events)
	assert.Len(t, progress, 2, "statement 3 must never be announced")
	assert.False(t, outcome.Succeeded)
	require.NotNil(t, outcome.FailedAtIndex)
	assert.Equal(t, 1, *outcome.FailedAtIndex)
	assert.Contains(t, outcome.Message, "Exclusive access could not be obtained")
	assert.Equal(t, apperrors.KindStatement, apperrors.KindOf(outcome.Err))
	assert.Equal(t, []string{"stmt-1", "stmt-2"}, connector.Executed())
}

func TestRunConnectionFailure(t *testing.T) {
	connErr := apperrors.Wrap(apperrors.KindConnection, "connect", errors.New("server not found"))
	connector := &fakeConnector{connectErr: connErr}

	outcome, err := pipeline.New(nil).Run(context.Background(), backup.NewSequence("x", "SELECT 1"), connector, nil)
	require.NoError(t, err)

	assert.False(t, outcome.Succeeded)
	assert.Nil(t, outcome.FailedAtIndex)
	assert.Contains(t, outcome.Message, "server not found")
	assert.Equal(t, apperrors.KindConnection, apperrors.KindOf(outcome.Err))
	assert.Empty(t, connector.Executed())
}

func TestRestoreFailureFlagsSingleUserRisk(t *testing.T) {
	seq := backup.BuildRestoreSequence("SalesDB", `D:\x.bak`, backup.RestoreOptions{ForceSingleUser: true, OverwriteExisting: true})
	connector := &fakeConnector{failOn: map[string]error{seq.At(1): errors.New("The media family on device is incorrectly formed.")}}

	outcome, err := pipeline.New(nil).Run(context.Background(), seq, connector, nil)
	require.NoError(t, err)

	assert.False(t, outcome.Succeeded)
	assert.True(t, outcome.SingleUserRisk)
	assert.Len(t, connector.Executed(), 2, "MULTI_USER is not attempted after the restore fails")
}

func TestSecondRunIsRejectedWhileBusy(t *testing.T) {
	connector := &fakeConnector{block: make(chan struct{})}
	p := pipeline.New(nil)

	events, err := p.Start(context.Background(), backup.NewSequence("slow", "WAITFOR DELAY '00:10'"), connector)
	require.NoError(t, err)
	assert.True(t, p.Busy())

	_, err = p.Start(context.Background(), backup.NewSequence("other", "SELECT 1"), connector)
	assert.ErrorIs(t, err, apperrors.ErrBusy)

	_, err = p.Run(context.Background(), backup.NewSequence("other", "SELECT 1"), connector, nil)
	assert.ErrorIs(t, err, apperrors.ErrBusy)

	close(connector.block)
	_, outcome := collect(t, events)
	assert.True(t, outcome.Succeeded)
	assert.False(t, p.Busy())

	_, err = p.Run(context.Background(), backup.NewSequence("after", "SELECT 1"), connector, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"WAITFOR DELAY '00:10'", "SELECT 1"}, connector.Executed())
}

func TestRunObserverSeesFinalEvent(t *testing.T) {
	var seen []pipeline.Event
	outcome, err := pipeline.New(nil).Run(context.Background(), backup.NewSequence("x", "a", "b"), &fakeConnector{}, func(evt pipeline.Event) {
		seen = append(seen, evt)
	})
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.True(t, seen[2].Final())
	assert.Equal(t, outcome.RunID, seen[0].RunID)
}

func TestPreview(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, pipeline.Preview(short))

	long := "BACKUP DATABASE [SalesDB] TO DISK = 'D:\\Backups\\SRV1_SalesDB_20240115_083000.bak' WITH INIT"
	preview := pipeline.Preview(long)
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.Equal(t, long[:60], strings.TrimSuffix(preview, "..."))
}

func TestCallerCancellationDoesNotAbortRun(t *testing.T) {
	connector := &fakeConnector{block: make(chan struct{})}
	seq := backup.NewSequence("Backup SalesDB", "BACKUP DATABASE [SalesDB] TO DISK = 'x.bak' WITH INIT")

	ctx, cancel := context.WithCancel(context.Background())
	events, err := pipeline.New(nil).Start(ctx, seq, connector)
	require.NoError(t, err)

	first := <-events
	require.False(t, first.Final())
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(connector.block)

	_, outcome := collect(t, events)
	assert.True(t, outcome.Succeeded, outcome.Message)
	assert.Len(t, connector.Executed(), 1)
}
