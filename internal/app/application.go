package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kadirbelkuyu/SQLBM/internal/config"
	"github.com/kadirbelkuyu/SQLBM/internal/pipeline"
	"github.com/kadirbelkuyu/SQLBM/internal/ui/catalogview"
	"github.com/kadirbelkuyu/SQLBM/pkg/interactive"
	"github.com/kadirbelkuyu/SQLBM/pkg/progress"
)

// Application is the guided menu on top of Service.
type Application struct {
	prompt      *interactive.Prompter
	out         io.Writer
	printBanner func()
	service     *Service
	settings    *config.Settings
}

func NewApplication(r io.Reader, w io.Writer, service *Service, settings *config.Settings, printBanner func()) *Application {
	if w == nil {
		w = os.Stdout
	}
	return &Application{
		prompt:      interactive.NewPrompter(r, w),
		out:         w,
		printBanner: printBanner,
		service:     service,
		settings:    settings,
	}
}

func (a *Application) RunInteractive(ctx context.Context) error {
	if a.printBanner != nil {
		a.printBanner()
	}
	fmt.Fprintln(a.out, "Interactive mode is ready. Press Ctrl+C or choose option 7 to exit.")

	handlers := map[string]func(context.Context) error{
		"1": a.handleConnect, "connect": a.handleConnect,
		"2": a.handleList, "list": a.handleList,
		"3": a.handleBackup, "backup": a.handleBackup,
		"4": a.handleRestore, "restore": a.handleRestore,
		"5": a.handleSchedule, "schedule": a.handleSchedule,
		"6": a.handleCatalog, "catalog": a.handleCatalog,
	}

	for {
		fmt.Fprintln(a.out)
		if session, ok := a.service.Session(); ok {
			fmt.Fprintf(a.out, "Connected to %s as %s\n", session.Profile.ServerLabel(), session.Profile.User)
		}
		fmt.Fprintln(a.out, "Select an operation:")
		fmt.Fprintln(a.out, "  1) Connect to a server")
		fmt.Fprintln(a.out, "  2) List databases")
		fmt.Fprintln(a.out, "  3) Back up databases")
		fmt.Fprintln(a.out, "  4) Restore a database")
		fmt.Fprintln(a.out, "  5) Daily backup schedule")
		fmt.Fprintln(a.out, "  6) Browse backup files")
		fmt.Fprintln(a.out, "  7) Exit")

		choice, err := a.prompt.Ask("\nChoice")
		if err != nil {
			return a.exit(err)
		}

		choice = strings.ToLower(choice)
		switch choice {
		case "7", "exit", "quit", "q":
			return a.exit(io.EOF)
		}

		handler, ok := handlers[choice]
		if !ok {
			fmt.Fprintln(a.out, "Invalid selection. Try again.")
			continue
		}
		if err := handler(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return a.exit(err)
			}
			color.New(color.FgRed).Fprintf(a.out, "Operation failed: %v\n", err)
		}
	}
}

func (a *Application) exit(err error) error {
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Exiting interactive mode.")
		return nil
	}
	return err
}

func (a *Application) handleConnect(ctx context.Context) error {
	profile, err := a.chooseProfile()
	if err != nil {
		return err
	}

	databases, err := a.service.Connect(ctx, profile)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "Connected to %s (%d user databases online)\n", profile.ServerLabel(), len(databases))
	return nil
}

func (a *Application) chooseProfile() (config.ConnectionProfile, error) {
	saved, err := a.service.Profiles()
	if err != nil {
		fmt.Fprintf(a.out, "Warning: %v\n", err)
	}

	if len(saved) > 0 {
		fmt.Fprintln(a.out, "\nSaved connections:")
		for i, p := range saved {
			fmt.Fprintf(a.out, "  %d) %s (%s@%s)\n", i+1, p.DisplayName, p.User, p.ServerLabel())
		}
		fmt.Fprintln(a.out, "  n) New connection")

		for {
			choice, err := a.prompt.Required("Select a connection (number) or 'n'")
			if err != nil {
				return config.ConnectionProfile{}, err
			}
			if strings.EqualFold(choice, "n") || strings.EqualFold(choice, "new") {
				break
			}
			index, err := strconv.Atoi(choice)
			if err != nil || index < 1 || index > len(saved) {
				fmt.Fprintln(a.out, "Please choose a valid option.")
				continue
			}
			return saved[index-1], nil
		}
	}

	return a.promptProfile()
}

func (a *Application) promptProfile() (config.ConnectionProfile, error) {
	fmt.Fprintln(a.out, "\nEnter SQL Server connection details:")

	host, err := a.prompt.WithDefault("Server (host or host\\instance)", "localhost")
	if err != nil {
		return config.ConnectionProfile{}, err
	}
	user, err := a.prompt.WithDefault("User", a.settings.DefaultUser)
	if err != nil {
		return config.ConnectionProfile{}, err
	}
	secret, err := a.prompt.Ask("Password")
	if err != nil {
		return config.ConnectionProfile{}, err
	}

	profile := config.ConnectionProfile{
		Host:                   host,
		User:                   user,
		Secret:                 secret,
		TrustServerCertificate: a.settings.TrustServerCertificate,
	}

	save, err := a.prompt.YesNo("Save this connection for future use?", true)
	if err != nil {
		return config.ConnectionProfile{}, err
	}
	if save {
		name, err := a.prompt.WithDefault("Connection name", fmt.Sprintf("%s-%s", host, user))
		if err != nil {
			return config.ConnectionProfile{}, err
		}
		profile.DisplayName = name
	}
	return profile, nil
}

func (a *Application) handleList(ctx context.Context) error {
	databases, err := a.service.ListDatabases(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\n%-30s %-10s %-12s %10s\n", "Database", "State", "Recovery", "Size (MB)")
	fmt.Fprintln(a.out, strings.Repeat("=", 65))
	for _, db := range databases {
		fmt.Fprintf(a.out, "%-30s %-10s %-12s %10.1f\n", db.Name, db.State, db.RecoveryModel, db.SizeMB)
	}
	fmt.Fprintf(a.out, "\nTotal databases: %d\n", len(databases))
	return nil
}

func (a *Application) handleBackup(ctx context.Context) error {
	databases, err := a.service.ListDatabases(ctx)
	if err != nil {
		return err
	}
	selected, err := a.prompt.SelectDatabases(databases)
	if err != nil {
		return err
	}
	opts, err := a.prompt.BackupOptions()
	if err != nil {
		return err
	}
	dir, err := a.prompt.WithDefault("Target directory on the server", a.settings.BackupPath)
	if err != nil {
		return err
	}

	events, err := a.service.StartBackup(ctx, BackupRequest{Databases: selected, Directory: dir, Options: opts})
	if err != nil {
		return err
	}
	return a.report(events)
}

func (a *Application) handleRestore(ctx context.Context) error {
	db, err := a.prompt.Required("Target database name")
	if err != nil {
		return err
	}
	source, err := a.prompt.Required("Backup file path on the server")
	if err != nil {
		return err
	}
	opts, err := a.prompt.RestoreOptions()
	if err != nil {
		return err
	}
	if !a.prompt.ConfirmAction("Restore", db) {
		fmt.Fprintln(a.out, "Operation cancelled by user.")
		return nil
	}

	events, err := a.service.StartRestore(ctx, RestoreRequest{Database: db, SourceFile: source, Options: opts})
	if err != nil {
		return err
	}
	return a.report(events)
}

func (a *Application) report(events <-chan pipeline.Event) error {
	outcome, ok := progress.Track(events, a.out)
	if !ok {
		return fmt.Errorf("operation ended without a result")
	}
	PrintOutcome(a.out, outcome)
	return nil
}

func (a *Application) handleSchedule(ctx context.Context) error {
	status := a.service.ScheduleStatus()
	fmt.Fprintf(a.out, "\nSchedule: %s\n", DescribeSchedule(status))

	if status.State.Armed() {
		disarm, err := a.prompt.YesNo("Disarm the schedule?", false)
		if err != nil || !disarm {
			return err
		}
		a.service.DisarmSchedule()
		fmt.Fprintln(a.out, "Schedule disarmed.")
		return nil
	}

	target, err := a.prompt.WithDefault("Database to back up", a.settings.Schedule.Database)
	if err != nil {
		return err
	}
	at, err := a.prompt.WithDefault("Time (HH:MM)", a.settings.Schedule.Time)
	if err != nil {
		return err
	}
	days, err := a.prompt.WithDefault("Weekdays (mon,tue,... or all/weekdays)", strings.Join(a.settings.Schedule.Weekdays, ","))
	if err != nil {
		return err
	}

	settings := a.settings.Schedule
	settings.Time = at
	settings.Weekdays = []string{days}
	cfg, err := ScheduleFromSettings(settings, target)
	if err != nil {
		return err
	}
	if err := a.service.ArmSchedule(cfg); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(a.out, "Schedule armed: %s\n", DescribeSchedule(a.service.ScheduleStatus()))
	fmt.Fprintln(a.out, "Scheduled backups run while this session stays open.")
	return nil
}

func (a *Application) handleCatalog(context.Context) error {
	dir, err := a.prompt.WithDefault("Backup directory", a.settings.CatalogDir)
	if err != nil {
		return err
	}
	return catalogview.Run(a.service, dir)
}

// PrintOutcome writes the colored result line of a run.
func PrintOutcome(w io.Writer, outcome pipeline.Outcome) {
	if outcome.Succeeded {
		color.New(color.FgGreen).Fprintln(w, outcome.Message)
		fmt.Fprintf(w, "Duration: %s\n", outcome.Duration.Round(time.Millisecond))
		return
	}

	failed := color.New(color.FgRed)
	if outcome.FailedAtIndex != nil {
		failed.Fprintf(w, "%s failed at statement %d: %s\n", outcome.Label, *outcome.FailedAtIndex+1, outcome.Message)
	} else {
		failed.Fprintf(w, "%s failed: %s\n", outcome.Label, outcome.Message)
	}
	if risk := RestoreRisk(outcome); risk != "" {
		color.New(color.FgYellow).Fprintln(w, risk)
	}
}

// DescribeSchedule renders a one-line schedule status.
func DescribeSchedule(status ScheduleStatus) string {
	if !status.State.Armed() {
		return "disarmed"
	}
	cfg := status.State.Config
	text := fmt.Sprintf("%s, backing up %s at %s on %s", status.State.Phase, cfg.TargetDatabase, cfg.At, cfg.Weekdays)
	if !status.State.LastTriggered.IsZero() {
		text += fmt.Sprintf(", last fired %s", status.State.LastTriggered.Format("2006-01-02"))
	}
	if status.HasNext {
		text += fmt.Sprintf(", next %s", status.NextFire.Format("Mon 2006-01-02 15:04"))
	}
	return text
}
