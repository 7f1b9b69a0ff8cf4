package interactive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
)

// Prompter asks line-oriented questions on a terminal.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}

	reader, ok := r.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(r)
	}
	return &Prompter{reader: reader, out: w}
}

// SelectDatabases lists databases and reads a selection such as "1,3",
// "2-4" or "all". Names are returned in listing order.
func (p *Prompter) SelectDatabases(databases []database.DatabaseInfo) ([]string, error) {
	if len(databases) == 0 {
		return nil, fmt.Errorf("no databases found")
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Available databases:")
	fmt.Fprintln(p.out, strings.Repeat("=", 64))
	fmt.Fprintf(p.out, "%-4s %-30s %-12s %-12s\n", "No", "Database", "Recovery", "Size (MB)")
	fmt.Fprintln(p.out, strings.Repeat("-", 64))
	for i, db := range databases {
		fmt.Fprintf(p.out, "%-4d %-30s %-12s %-12.1f\n", i+1, db.Name, safeValue(db.RecoveryModel, "n/a"), db.SizeMB)
	}
	fmt.Fprintln(p.out, strings.Repeat("=", 64))

	for {
		input, err := p.Ask(fmt.Sprintf("\nSelect databases (1-%d, comma separated, or 'all')", len(databases)))
		if err != nil {
			return nil, err
		}
		if input == "" {
			fmt.Fprintln(p.out, "Please enter a selection.")
			continue
		}

		indexes, err := parseSelection(input, len(databases))
		if err != nil {
			fmt.Fprintln(p.out, err)
			continue
		}

		names := make([]string, 0, len(indexes))
		for _, i := range indexes {
			names = append(names, databases[i].Name)
		}
		fmt.Fprintf(p.out, "\nSelected: %s\n", strings.Join(names, ", "))
		return names, nil
	}
}

func parseSelection(input string, count int) ([]int, error) {
	if strings.EqualFold(strings.TrimSpace(input), "all") {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	chosen := make([]bool, count)
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("please enter valid numbers")
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("please enter valid numbers")
			}
		}
		if first < 1 || last > count || first > last {
			return nil, fmt.Errorf("please select numbers between 1 and %d", count)
		}
		for n := first; n <= last; n++ {
			chosen[n-1] = true
		}
	}

	var indexes []int
	for i, on := range chosen {
		if on {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("please enter a selection")
	}
	return indexes, nil
}

func (p *Prompter) ConfirmAction(action, target string) bool {
	ok, err := p.YesNo(fmt.Sprintf("\nConfirm running %s for %s?", action, target), false)
	return err == nil && ok
}

func (p *Prompter) BackupOptions() (backup.BackupOptions, error) {
	var opts backup.BackupOptions
	var err error

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Backup options:")
	if opts.Compress, err = p.YesNo("Compress the backup?", true); err != nil {
		return opts, err
	}
	if opts.Differential, err = p.YesNo("Differential backup?", false); err != nil {
		return opts, err
	}
	if opts.CopyOnly, err = p.YesNo("Copy-only backup?", false); err != nil {
		return opts, err
	}
	if opts.VerifyChecksum, err = p.YesNo("Verify page checksums?", false); err != nil {
		return opts, err
	}
	return opts, nil
}

func (p *Prompter) RestoreOptions() (backup.RestoreOptions, error) {
	var opts backup.RestoreOptions
	var err error

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Restore options:")
	if opts.ForceSingleUser, err = p.YesNo("Disconnect other sessions (SINGLE_USER)?", true); err != nil {
		return opts, err
	}
	if opts.OverwriteExisting, err = p.YesNo("Overwrite the existing database (REPLACE)?", true); err != nil {
		return opts, err
	}
	if opts.BringOnline, err = p.YesNo("Bring the database online (RECOVERY)?", true); err != nil {
		return opts, err
	}
	return opts, nil
}

// Ask prints label and returns the trimmed answer.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

func (p *Prompter) Required(label string) (string, error) {
	for {
		input, err := p.Ask(label)
		if err != nil {
			return "", err
		}
		if input != "" {
			return input, nil
		}
		fmt.Fprintln(p.out, "Please provide a value.")
	}
}

func (p *Prompter) WithDefault(label, defaultValue string) (string, error) {
	if defaultValue == "" {
		return p.Required(label)
	}
	input, err := p.Ask(fmt.Sprintf("%s [%s]", label, defaultValue))
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

func (p *Prompter) YesNo(question string, defaultValue bool) (bool, error) {
	suffix := "(y/N)"
	if defaultValue {
		suffix = "(Y/n)"
	}

	for {
		fmt.Fprintf(p.out, "%s %s ", question, suffix)
		input, err := p.readLine()
		if err != nil {
			return false, err
		}

		switch strings.ToLower(input) {
		case "":
			return defaultValue, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(p.out, "Please answer with y or n.")
		}
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func safeValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
