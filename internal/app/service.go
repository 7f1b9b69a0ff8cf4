package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/catalog"
	"github.com/kadirbelkuyu/SQLBM/internal/config"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
	"github.com/kadirbelkuyu/SQLBM/internal/pipeline"
	"github.com/kadirbelkuyu/SQLBM/internal/profiles"
	"github.com/kadirbelkuyu/SQLBM/internal/scheduler"
	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
)

// ServerConnector is an open connection to one server.
type ServerConnector interface {
	database.Connector
	ListDatabases(ctx context.Context) ([]database.DatabaseInfo, error)
	Close() error
}

// Dialer opens and verifies a connection for profile.
type Dialer func(ctx context.Context, profile config.ConnectionProfile) (ServerConnector, error)

func dialSQLServer(ctx context.Context, profile config.ConnectionProfile) (ServerConnector, error) {
	return database.NewConnection(ctx, profile)
}

// SessionState is the active connection. There is at most one.
type SessionState struct {
	Profile     config.ConnectionProfile
	Connector   ServerConnector
	ConnectedAt time.Time
}

// BackupRequest asks for one BACKUP DATABASE per listed database.
type BackupRequest struct {
	Databases []string
	// Directory defaults to the configured backup path.
	Directory string
	Options   backup.BackupOptions
}

type RestoreRequest struct {
	Database   string
	SourceFile string
	Options    backup.RestoreOptions
}

// ScheduleStatus is what `schedule status` reports.
type ScheduleStatus struct {
	State    scheduler.State
	NextFire time.Time
	HasNext  bool
}

// Service composes the builder, pipeline, scheduler and catalog behind the
// operations the CLI and the interactive menu call.
type Service struct {
	settings  *config.Settings
	log       *logger.Logger
	profiles  *profiles.Manager
	builder   *backup.Builder
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	runner    *scheduler.Runner
	catalog   *catalog.Catalog
	lister    catalog.Lister
	dial      Dialer
	now       func() time.Time
	onOutcome func(pipeline.Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	session *SessionState
}

type Option func(*Service)

func WithDialer(dial Dialer) Option {
	return func(s *Service) {
		if dial != nil {
			s.dial = dial
		}
	}
}

func WithLister(lister catalog.Lister) Option {
	return func(s *Service) {
		s.lister = lister
	}
}

// WithClock drives both file name timestamps and the scheduler.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithProfiles(manager *profiles.Manager) Option {
	return func(s *Service) {
		if manager != nil {
			s.profiles = manager
		}
	}
}

// WithScheduledOutcome registers a callback for the result of every
// scheduled run.
func WithScheduledOutcome(fn func(pipeline.Outcome)) Option {
	return func(s *Service) {
		s.onOutcome = fn
	}
}

func NewService(settings *config.Settings, opts ...Option) *Service {
	if settings == nil {
		settings = &config.Settings{}
	}

	s := &Service{
		settings: settings,
		log:      logger.Discard(),
		dial:     dialSQLServer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.profiles == nil {
		s.profiles = profiles.NewManager(settings.HistoryFile)
	}
	s.catalog = catalog.New(s.lister, s.log)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.builder = backup.NewBuilder().WithClock(s.now)
	s.pipeline = pipeline.New(s.log)
	s.scheduler = scheduler.New(s.runScheduled, scheduler.WithClock(s.now), scheduler.WithLogger(s.log))
	return s
}

// Connect verifies profile against the server and makes it the active
// session. Profiles with a display name are saved to the history.
func (s *Service) Connect(ctx context.Context, profile config.ConnectionProfile) ([]database.DatabaseInfo, error) {
	if err := profile.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "connect", err)
	}

	connector, err := s.dial(ctx, profile)
	if err != nil {
		return nil, err
	}

	databases, err := connector.ListDatabases(ctx)
	if err != nil {
		connector.Close()
		return nil, apperrors.Wrap(apperrors.KindConnection, "connect", err)
	}

	s.mu.Lock()
	previous := s.session
	s.session = &SessionState{Profile: profile, Connector: connector, ConnectedAt: s.now()}
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Connector.Close(); err != nil {
			s.log.Warnf("Failed to close previous connection: %v", err)
		}
	}

	s.log.Infof("Connected to %s as %s (%d databases)", profile.ServerLabel(), profile.User, len(databases))

	if profile.DisplayName != "" {
		if err := s.profiles.Save(profile); err != nil {
			s.log.Warnf("Failed to save connection history: %v", err)
		}
	}
	return databases, nil
}

// Session returns the active session, if any.
func (s *Service) Session() (SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return SessionState{}, false
	}
	return *s.session, true
}

// ListDatabases re-reads the online user databases of the active session.
func (s *Service) ListDatabases(ctx context.Context) ([]database.DatabaseInfo, error) {
	session, err := s.requireSession("list databases")
	if err != nil {
		return nil, err
	}
	return session.Connector.ListDatabases(ctx)
}

// StartBackup builds the backup sequence and starts it on the pipeline.
func (s *Service) StartBackup(ctx context.Context, req BackupRequest) (<-chan pipeline.Event, error) {
	session, err := s.requireSession("backup")
	if err != nil {
		return nil, err
	}

	databases := trimAll(req.Databases)
	if len(databases) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "backup", "select at least one database")
	}
	dir := strings.TrimSpace(req.Directory)
	if dir == "" {
		dir = s.settings.BackupPath
	}
	if dir == "" {
		return nil, apperrors.New(apperrors.KindValidation, "backup", "backup directory is required")
	}

	seq := s.builder.BuildBackupSequence(databases, dir, req.Options, session.Profile.Host)
	return s.pipeline.Start(ctx, seq, session.Connector)
}

// StartRestore builds the restore sequence and starts it on the pipeline.
func (s *Service) StartRestore(ctx context.Context, req RestoreRequest) (<-chan pipeline.Event, error) {
	session, err := s.requireSession("restore")
	if err != nil {
		return nil, err
	}

	db := strings.TrimSpace(req.Database)
	source := strings.TrimSpace(req.SourceFile)
	switch {
	case db == "":
		return nil, apperrors.New(apperrors.KindValidation, "restore", "target database is required")
	case source == "":
		return nil, apperrors.New(apperrors.KindValidation, "restore", "backup file is required")
	}

	seq := backup.BuildRestoreSequence(db, source, req.Options)
	return s.pipeline.Start(ctx, seq, session.Connector)
}

// Busy reports whether a backup or restore is running.
func (s *Service) Busy() bool {
	return s.pipeline.Busy()
}

// RestoreRisk is the operator notice for a restore that left the database
// in SINGLE_USER mode, or "" when there is nothing to report.
func RestoreRisk(outcome pipeline.Outcome) string {
	if !outcome.SingleUserRisk {
		return ""
	}
	return fmt.Sprintf("Database %s may still be in SINGLE_USER mode. Run `ALTER DATABASE [%s] SET MULTI_USER` once the cause is fixed.", outcome.Database, outcome.Database)
}

// ArmSchedule arms the daily backup and starts polling.
func (s *Service) ArmSchedule(cfg scheduler.Config) error {
	cfg.TargetDatabase = strings.TrimSpace(cfg.TargetDatabase)
	if err := s.scheduler.Arm(cfg); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "schedule", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		s.runner = scheduler.NewRunner(s.scheduler, s.settings.CheckInterval(), s.log)
		s.runner.Start(s.ctx)
	}
	return nil
}

func (s *Service) DisarmSchedule() {
	s.scheduler.Disarm()
	s.stopRunner()
}

func (s *Service) ScheduleStatus() ScheduleStatus {
	status := ScheduleStatus{State: s.scheduler.State()}
	if status.State.Armed() {
		status.NextFire, status.HasNext = s.scheduler.NextFire(s.now())
	}
	return status
}

// PollSchedule runs one scheduler check immediately.
func (s *Service) PollSchedule(ctx context.Context) bool {
	return s.scheduler.Poll(ctx)
}

// ScheduleFromSettings turns the schedule section of the settings into a
// scheduler config. target overrides the configured database when set.
func ScheduleFromSettings(settings config.ScheduleSettings, target string) (scheduler.Config, error) {
	if strings.TrimSpace(target) == "" {
		target = settings.Database
	}
	at, err := scheduler.ParseTimeOfDay(settings.Time)
	if err != nil {
		return scheduler.Config{}, apperrors.Wrap(apperrors.KindValidation, "schedule", err)
	}
	days, err := scheduler.ParseWeekdays(settings.Weekdays)
	if err != nil {
		return scheduler.Config{}, apperrors.Wrap(apperrors.KindValidation, "schedule", err)
	}
	return scheduler.Config{TargetDatabase: strings.TrimSpace(target), At: at, Weekdays: days}, nil
}

// runScheduled is the scheduler trigger. It only starts the run; the
// outcome is logged from a separate goroutine.
func (s *Service) runScheduled(ctx context.Context, cfg scheduler.Config) error {
	session, err := s.requireSession("scheduled backup")
	if err != nil {
		return err
	}

	opts := backup.BackupOptions{
		Compress:       s.settings.Schedule.Compress,
		CopyOnly:       s.settings.Schedule.CopyOnly,
		VerifyChecksum: s.settings.Schedule.Checksum,
		Differential:   s.settings.Schedule.Differential,
	}
	seq := s.builder.BuildScheduledBackup(cfg.TargetDatabase, s.settings.BackupPath, opts, session.Profile.Host)

	events, err := s.pipeline.Start(ctx, seq, session.Connector)
	if err != nil {
		return err
	}

	go func() {
		for evt := range events {
			if !evt.Final() {
				continue
			}
			if evt.Outcome.Succeeded {
				s.log.Info(evt.Outcome.Message)
			} else {
				s.log.Errorf("Scheduled backup of %s failed: %s", cfg.TargetDatabase, evt.Outcome.Message)
			}
			if s.onOutcome != nil {
				s.onOutcome(*evt.Outcome)
			}
		}
	}()
	return nil
}

// RefreshCatalog rescans dir, or the configured catalog directory when dir
// is empty.
func (s *Service) RefreshCatalog(dir string) ([]catalog.Record, catalog.Summary, error) {
	if strings.TrimSpace(dir) == "" {
		dir = s.settings.CatalogDir
	}
	records, err := s.catalog.Refresh(dir)
	return records, s.catalog.Summary(), err
}

func (s *Service) FilterCatalog(server, db, date string) []catalog.Record {
	return s.catalog.Filter(server, db, date)
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// DeleteArtifacts removes the files and rescans the catalog directory.
func (s *Service) DeleteArtifacts(records []catalog.Record) (catalog.BatchResult, error) {
	result := catalog.Delete(records)
	for _, path := range result.Succeeded {
		s.log.Infof("Deleted %s", path)
	}
	if dir := s.catalog.Dir(); dir != "" {
		if _, err := s.catalog.Refresh(dir); err != nil {
			s.log.Warnf("Catalog refresh after delete failed: %v", err)
		}
	}
	return result, result.Err("delete")
}

func (s *Service) CopyArtifacts(records []catalog.Record, destDir string) (catalog.BatchResult, error) {
	if strings.TrimSpace(destDir) == "" {
		return catalog.BatchResult{}, apperrors.New(apperrors.KindValidation, "copy", "destination directory is required")
	}
	result := catalog.Copy(records, destDir)
	for _, path := range result.Succeeded {
		s.log.Infof("Copied %s", path)
	}
	return result, result.Err("copy")
}

func (s *Service) Profiles() ([]config.ConnectionProfile, error) {
	return s.profiles.List()
}

func (s *Service) Profile(name string) (config.ConnectionProfile, error) {
	return s.profiles.Load(name)
}

func (s *Service) ForgetProfile(name string) error {
	return s.profiles.Delete(name)
}

// Close stops the scheduler and drops the session.
func (s *Service) Close() error {
	s.stopRunner()
	s.cancel()

	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session != nil {
		return session.Connector.Close()
	}
	return nil
}

func (s *Service) stopRunner() {
	s.mu.Lock()
	runner := s.runner
	s.runner = nil
	s.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
}

func (s *Service) requireSession(op string) (SessionState, error) {
	session, ok := s.Session()
	if !ok {
		return SessionState{}, apperrors.New(apperrors.KindValidation, op, "not connected to a server")
	}
	return session, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
