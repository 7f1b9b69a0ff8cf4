package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/SQLBM/internal/catalog"
	"github.com/kadirbelkuyu/SQLBM/internal/ui/catalogview"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect backup files on disk",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup files, newest first",
	RunE:  runCatalogList,
}

var catalogBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse backup files in the console UI",
	RunE:  runCatalogBrowse,
}

var catalogDeleteCmd = &cobra.Command{
	Use:   "delete [file...]",
	Short: "Delete backup files",
	RunE:  runCatalogDelete,
}

var catalogCopyCmd = &cobra.Command{
	Use:   "copy [file...]",
	Short: "Copy backup files to another directory",
	RunE:  runCatalogCopy,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved connections",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	RunE:  runProfilesList,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Forget a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

var (
	catalogDir     string
	filterServer   string
	filterDatabase string
	filterDate     string
	copyTarget     string
)

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogDir, "dir", "", "Backup directory (defaults to CATALOG_DIR)")
	for _, cmd := range []*cobra.Command{catalogListCmd, catalogDeleteCmd, catalogCopyCmd} {
		cmd.Flags().StringVar(&filterServer, "server", "", "Filter by server name")
		cmd.Flags().StringVar(&filterDatabase, "database", "", "Filter by database name")
		cmd.Flags().StringVar(&filterDate, "date", "", "Filter by date (DD.MM.YYYY, partial allowed)")
	}
	catalogDeleteCmd.Flags().BoolVar(&assumeYes, "yes", false, "Do not ask for confirmation")
	catalogCopyCmd.Flags().StringVar(&copyTarget, "to", "", "Destination directory")
	catalogCopyCmd.MarkFlagRequired("to")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogBrowseCmd)
	catalogCmd.AddCommand(catalogDeleteCmd)
	catalogCmd.AddCommand(catalogCopyCmd)

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
}

// selectRecords refreshes the catalog and narrows it by the filter flags
// and, when given, by exact file names.
func selectRecords(rt *cliEnv, names []string) ([]catalog.Record, catalog.Summary, error) {
	if _, _, err := rt.service.RefreshCatalog(catalogDir); err != nil {
		return nil, catalog.Summary{}, err
	}

	records := rt.service.FilterCatalog(filterServer, filterDatabase, filterDate)
	if len(names) > 0 {
		wanted := make(map[string]bool, len(names))
		for _, name := range names {
			wanted[strings.ToLower(name)] = true
		}
		kept := records[:0]
		for _, r := range records {
			if wanted[strings.ToLower(r.FileName)] {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	return records, catalog.Summarize(records), nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	records, summary, err := selectRecords(rt, nil)
	if err != nil {
		return err
	}

	printRecords(records)
	fmt.Printf("\n%d backups, %s\n", summary.Count, catalog.HumanSize(summary.TotalBytes))
	return nil
}

func runCatalogBrowse(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	dir := catalogDir
	if dir == "" {
		dir = rt.settings.CatalogDir
	}
	fmt.Println("Starting TUI... (Press 'q' to exit)")
	return catalogview.Run(rt.service, dir)
}

func runCatalogDelete(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	records, summary, err := selectRecords(rt, args)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No matching backup files.")
		return nil
	}

	printRecords(records)
	if !assumeYes && !confirm(fmt.Sprintf("Delete %d files (%s)?", summary.Count, catalog.HumanSize(summary.TotalBytes))) {
		fmt.Println("Operation cancelled by user.")
		return nil
	}

	result, err := rt.service.DeleteArtifacts(records)
	color.New(color.FgGreen).Printf("Deleted %d files\n", len(result.Succeeded))
	return err
}

func runCatalogCopy(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	records, _, err := selectRecords(rt, args)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No matching backup files.")
		return nil
	}

	result, err := rt.service.CopyArtifacts(records, copyTarget)
	color.New(color.FgGreen).Printf("Copied %d files to %s\n", len(result.Succeeded), copyTarget)
	return err
}

func printRecords(records []catalog.Record) {
	color.New(color.Bold).Printf("%-48s %-16s %-20s %-10s %-12s %10s\n", "File", "Server", "Database", "Date", "Type", "Size")
	fmt.Println(strings.Repeat("=", 121))
	for _, r := range records {
		fmt.Printf("%-48s %-16s %-20s %-10s %-12s %10s\n",
			r.FileName, r.ServerName, r.DatabaseName, r.Date, r.Type, catalog.HumanSize(r.SizeBytes))
	}
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	saved, err := rt.service.Profiles()
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		fmt.Println("No saved connections.")
		return nil
	}
	for _, p := range saved {
		fmt.Printf("%-24s %s@%s\n", p.DisplayName, p.User, p.ServerLabel())
	}
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	rt, err := newEnv()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.service.ForgetProfile(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %q\n", args[0])
	return nil
}
