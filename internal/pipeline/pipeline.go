package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

const previewLength = 60

// Outcome is the terminal result of one run.
type Outcome struct {
	RunID     string
	Label     string
	Database  string
	Succeeded bool
	Message   string
	// FailedAtIndex is the 0-based position of the failing statement. It is
	// nil on success and on connection failures.
	FailedAtIndex *int
	// SingleUserRisk is set when a restore failed after the database had
	// already been switched to SINGLE_USER. The database stays that way
	// until an operator runs SET MULTI_USER.
	SingleUserRisk bool
	Err            error
	Duration       time.Duration
}

// Event is emitted once per statement before it is dispatched, and once
// more with Outcome set when the run ends.
type Event struct {
	RunID   string
	Index   int
	Total   int
	Preview string
	Outcome *Outcome
}

func (e Event) Final() bool {
	return e.Outcome != nil
}

// Pipeline runs statement sequences one at a time. A second run requested
// while one is active is rejected with errors.ErrBusy, never queued.
type Pipeline struct {
	log  *logger.Logger
	busy atomic.Bool
}

func New(log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{log: log}
}

// Busy reports whether a run is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Start runs the sequence on a worker goroutine. The returned channel
// receives every progress event followed by the final one, then closes.
func (p *Pipeline) Start(ctx context.Context, seq backup.StatementSequence, connector database.Connector) (<-chan Event, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, apperrors.ErrBusy
	}

	events := make(chan Event, seq.Len()+1)
	go func() {
		defer close(events)

		outcome := p.execute(ctx, seq, connector, func(evt Event) {
			events <- evt
		})
		// Released before the final event so whoever observes the outcome
		// can start the next run right away.
		p.busy.Store(false)
		events <- Event{RunID: outcome.RunID, Index: seq.Len(), Total: seq.Len(), Outcome: &outcome}
	}()

	return events, nil
}

// Run is the blocking form of Start. observe may be nil.
func (p *Pipeline) Run(ctx context.Context, seq backup.StatementSequence, connector database.Connector, observe func(Event)) (Outcome, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Outcome{}, apperrors.ErrBusy
	}
	defer p.busy.Store(false)

	if observe == nil {
		observe = func(Event) {}
	}
	outcome := p.execute(ctx, seq, connector, observe)
	observe(Event{RunID: outcome.RunID, Index: seq.Len(), Total: seq.Len(), Outcome: &outcome})
	return outcome, nil
}

func (p *Pipeline) execute(ctx context.Context, seq backup.StatementSequence, connector database.Connector, emit func(Event)) Outcome {
	started := time.Now()
	outcome := Outcome{RunID: uuid.NewString(), Label: seq.Label(), Database: seq.Database()}
	log := p.log.WithField("run", outcome.RunID)

	finish := func() Outcome {
		outcome.Duration = time.Since(started)
		return outcome
	}

	log.Infof("Starting %q (%d statements)", seq.Label(), seq.Len())

	// Started sequences run to completion or first failure regardless of
	// the caller's context.
	ctx = context.WithoutCancel(ctx)

	session, err := connector.Connect(ctx)
	if err != nil {
		log.Errorf("Connection failed: %v", err)
		outcome.Message = err.Error()
		outcome.Err = err
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			outcome.Err = apperrors.Wrap(apperrors.KindConnection, seq.Label(), err)
		}
		return finish()
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warnf("Failed to close session: %v", err)
		}
	}()

	for i := 0; i < seq.Len(); i++ {
		stmt := seq.At(i)
		preview := Preview(stmt)
		emit(Event{RunID: outcome.RunID, Index: i, Total: seq.Len(), Preview: preview})
		log.Debugf("Executing [%d/%d] %s", i+1, seq.Len(), stmt)

		if err := session.Execute(ctx, stmt); err != nil {
			index := i
			outcome.Message = err.Error()
			outcome.FailedAtIndex = &index
			outcome.Err = apperrors.Statement(seq.Label(), i, err)
			outcome.SingleUserRisk = seq.LeavesSingleUserOnFailure() && i > 0
			log.Errorf("Statement %d failed: %v", i+1, err)
			if outcome.SingleUserRisk {
				log.Warnf("Database %s may be left in SINGLE_USER mode; run ALTER DATABASE [%s] SET MULTI_USER once resolved", seq.Database(), seq.Database())
			}
			return finish()
		}
	}

	outcome.Succeeded = true
	outcome.Message = fmt.Sprintf("Operation '%s' completed successfully", seq.Label())
	log.Infof("%s in %s", outcome.Message, time.Since(started).Round(time.Millisecond))
	return finish()
}

// Preview truncates a statement to its first 60 characters for display.
func Preview(statement string) string {
	runes := []rune(statement)
	if len(runes) <= previewLength {
		return statement
	}
	return string(runes[:previewLength]) + "..."
}
