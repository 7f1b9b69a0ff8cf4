package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/SQLBM/internal/app"
	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/config"
	"github.com/kadirbelkuyu/SQLBM/internal/pipeline"
	"github.com/kadirbelkuyu/SQLBM/pkg/logger"
	"github.com/kadirbelkuyu/SQLBM/pkg/progress"
)

const appName = "SQL Server Backup Manager"

const asciiBanner = `
  ____   ___  _     ____  __  __
 / ___| / _ \| |   | __ )|  \/  |
 \___ \| | | | |   |  _ \| |\/| |
  ___) | |_| | |___| |_) | |  | |
 |____/ \__\_\_____|____/|_|  |_|
`

var rootCmd = &cobra.Command{
	Use:   "sqlbm",
	Short: "Back up, restore and schedule SQL Server databases",
	Long:  `A CLI to run SQL Server backups and restores, arm a daily backup schedule and browse the backup files on disk.`,
	RunE:  runInteractive,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Verify a connection and save it to the history",
	RunE:  runConnect,
}

var listDbCmd = &cobra.Command{
	Use:   "list-databases",
	Short: "List online user databases",
	RunE:  runListDatabases,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up one or more databases",
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a database from a backup file",
	RunE:  runRestore,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Arm the daily backup and wait for it",
	RunE:  runSchedule,
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch the guided interactive workflow",
	RunE:  runInteractive,
}

var (
	settingsPath string
	verbose      bool

	profileName string
	server      string
	port        int
	user        string
	password    string
	saveAs      string

	databases    []string
	allDatabases bool
	targetDir    string
	backupOpts   backup.BackupOptions

	restoreDB   string
	restoreFile string
	restoreOpts backup.RestoreOptions
	assumeYes   bool

	scheduleDB   string
	scheduleTime string
	scheduleDays []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Path to the settings file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	for _, cmd := range []*cobra.Command{connectCmd, listDbCmd, backupCmd, restoreCmd, scheduleCmd} {
		cmd.Flags().StringVar(&profileName, "profile", "", "Use a saved connection")
		cmd.Flags().StringVar(&server, "server", "", "Server address (host or host\\instance)")
		cmd.Flags().IntVar(&port, "port", 0, "Server port")
		cmd.Flags().StringVar(&user, "user", "", "Login name (defaults to DEFAULT_USER)")
		cmd.Flags().StringVar(&password, "password", "", "Login password (or SQLBM_PASSWORD)")
	}
	connectCmd.Flags().StringVar(&saveAs, "name", "", "Save the connection under this name")

	backupCmd.Flags().StringSliceVar(&databases, "db", nil, "Database to back up (repeatable)")
	backupCmd.Flags().BoolVar(&allDatabases, "all", false, "Back up every online user database")
	backupCmd.Flags().StringVar(&targetDir, "dir", "", "Target directory on the server (defaults to DEFAULT_BACKUP_PATH)")
	backupCmd.Flags().BoolVar(&backupOpts.Compress, "compress", false, "WITH COMPRESSION")
	backupCmd.Flags().BoolVar(&backupOpts.CopyOnly, "copy-only", false, "WITH COPY_ONLY")
	backupCmd.Flags().BoolVar(&backupOpts.VerifyChecksum, "checksum", false, "WITH CHECKSUM")
	backupCmd.Flags().BoolVar(&backupOpts.Differential, "differential", false, "WITH DIFFERENTIAL")

	restoreCmd.Flags().StringVar(&restoreDB, "db", "", "Database to restore")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file path on the server")
	restoreCmd.Flags().BoolVar(&restoreOpts.ForceSingleUser, "single-user", false, "Disconnect other sessions first")
	restoreCmd.Flags().BoolVar(&restoreOpts.OverwriteExisting, "replace", false, "WITH REPLACE")
	restoreCmd.Flags().BoolVar(&restoreOpts.BringOnline, "recovery", false, "WITH RECOVERY")
	restoreCmd.Flags().BoolVar(&assumeYes, "yes", false, "Do not ask for confirmation")
	restoreCmd.MarkFlagRequired("db")
	restoreCmd.MarkFlagRequired("file")

	scheduleCmd.Flags().StringVar(&scheduleDB, "db", "", "Database to back up (defaults to schedule.database)")
	scheduleCmd.Flags().StringVar(&scheduleTime, "time", "", "Time of day, HH:MM (defaults to schedule.time)")
	scheduleCmd.Flags().StringSliceVar(&scheduleDays, "days", nil, "Weekdays, e.g. mon,tue or weekdays/all")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(listDbCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(profilesCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliEnv is what every command needs: settings, a logger and the service.
type cliEnv struct {
	settings *config.Settings
	log      *logger.Logger
	service  *app.Service
}

func newEnv(opts ...app.Option) (*cliEnv, error) {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load settings: %w", err)
	}

	log := logger.New(logger.Options{
		Level:   settings.LogLevel,
		File:    settings.LogFile,
		Verbose: verbose,
		Output:  os.Stderr,
	})

	opts = append([]app.Option{app.WithLogger(log)}, opts...)
	return &cliEnv{
		settings: settings,
		log:      log,
		service:  app.NewService(settings, opts...),
	}, nil
}

func (rt *cliEnv) Close() {
	if err := rt.service.Close(); err != nil {
		rt.log.Warnf("Failed to close connection: %v", err)
	}
	rt.log.Close()
}

func (rt *cliEnv) profile() (config.ConnectionProfile, error) {
	if profileName != "" {
		return rt.service.Profile(profileName)
	}

	profile := config.ConnectionProfile{
		Host:                   server,
		Port:                   port,
		User:                   user,
		Secret:                 password,
		TrustServerCertificate: rt.settings.TrustServerCertificate,
	}
	if profile.User == "" {
		profile.User = rt.settings.DefaultUser
	}
	if profile.Secret == "" {
		profile.Secret = os.Getenv("SQLBM_PASSWORD")
	}
	return profile, nil
}

func (rt *cliEnv) connect(ctx context.Context) ([]string, error) {
	profile, err := rt.profile()
	if err != nil {
		return nil, err
	}
	if saveAs != "" {
		profile.DisplayName = saveAs
	}

	infos, err := rt.service.Connect(ctx, profile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInteractive(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	application := app.NewApplication(os.Stdin, os.Stdout, rt.service, rt.settings, printBanner)
	return application.RunInteractive(ctx)
}

func runConnect(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	names, err := rt.connect(cmd.Context())
	if err != nil {
		return err
	}

	session, _ := rt.service.Session()
	color.New(color.FgGreen).Printf("Connected to %s as %s\n", session.Profile.ServerLabel(), session.Profile.User)
	fmt.Printf("Online user databases: %d\n", len(names))
	if saveAs != "" {
		fmt.Printf("Saved as %q\n", saveAs)
	}
	return nil
}

func runListDatabases(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.connect(cmd.Context()); err != nil {
		return err
	}
	infos, err := rt.service.ListDatabases(cmd.Context())
	if err != nil {
		return err
	}

	session, _ := rt.service.Session()
	fmt.Printf("\nDatabases on %s:\n", session.Profile.ServerLabel())
	header := color.New(color.Bold)
	header.Printf("%-30s %-10s %-12s %10s\n", "Database", "State", "Recovery", "Size (MB)")
	fmt.Println(strings.Repeat("=", 65))
	for _, db := range infos {
		fmt.Printf("%-30s %-10s %-12s %10.1f\n", db.Name, db.State, db.RecoveryModel, db.SizeMB)
	}
	fmt.Printf("\nTotal databases: %d\n", len(infos))
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	if len(databases) == 0 && !allDatabases {
		return fmt.Errorf("specify --db or --all")
	}

	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	online, err := rt.connect(cmd.Context())
	if err != nil {
		return err
	}

	selected := databases
	if allDatabases {
		selected = online
	}

	events, err := rt.service.StartBackup(cmd.Context(), app.BackupRequest{
		Databases: selected,
		Directory: targetDir,
		Options:   backupOpts,
	})
	if err != nil {
		return err
	}
	return finish(events)
}

func runRestore(cmd *cobra.Command, args []string) error {
	if !assumeYes && !confirm(fmt.Sprintf("Restore %s from %s? This overwrites the database.", restoreDB, restoreFile)) {
		fmt.Println("Operation cancelled by user.")
		return nil
	}

	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.connect(cmd.Context()); err != nil {
		return err
	}

	events, err := rt.service.StartRestore(cmd.Context(), app.RestoreRequest{
		Database:   restoreDB,
		SourceFile: restoreFile,
		Options:    restoreOpts,
	})
	if err != nil {
		return err
	}
	return finish(events)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	rt, err := newEnv(app.WithScheduledOutcome(func(outcome pipeline.Outcome) {
		app.PrintOutcome(os.Stdout, outcome)
	}))
	if err != nil {
		return err
	}
	defer rt.Close()

	settings := rt.settings.Schedule
	if scheduleTime != "" {
		settings.Time = scheduleTime
	}
	if len(scheduleDays) > 0 {
		settings.Weekdays = scheduleDays
	}
	cfg, err := app.ScheduleFromSettings(settings, scheduleDB)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := rt.connect(ctx); err != nil {
		return err
	}
	if err := rt.service.ArmSchedule(cfg); err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Schedule armed: %s\n", app.DescribeSchedule(rt.service.ScheduleStatus()))
	fmt.Println("Waiting for the next run. Press Ctrl+C to disarm and exit.")

	<-ctx.Done()
	rt.service.DisarmSchedule()
	fmt.Println("\nSchedule disarmed.")
	return nil
}

func finish(events <-chan pipeline.Event) error {
	outcome, ok := progress.Track(events, os.Stdout)
	if !ok {
		return fmt.Errorf("operation ended without a result")
	}
	app.PrintOutcome(os.Stdout, outcome)
	if !outcome.Succeeded {
		return fmt.Errorf("%s did not complete", outcome.Label)
	}
	return nil
}

func confirm(question string) bool {
	fmt.Printf("%s (y/N): ", question)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printBanner() {
	fmt.Print(asciiBanner)
	fmt.Println(appName)
	fmt.Println(strings.Repeat("-", len(appName)))
}
