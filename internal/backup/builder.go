package backup

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102_150405"
	fileExtension   = ".bak"

	// DifferentialSuffix marks differential artifacts so the catalog can
	// classify them from the file name alone.
	DifferentialSuffix = "DIFF"
	ScheduledSuffix    = "SCHEDULED"
)

var serverTagSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.-]+`)

// Builder turns backup and restore requests into statement sequences. It
// performs no I/O; the clock is only read to stamp file names.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// WithClock replaces the time source used for file name timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// BuildBackupSequence emits one BACKUP DATABASE statement per database into
// targetDirectory. Repeated names are emitted once.
func (b *Builder) BuildBackupSequence(databases []string, targetDirectory string, options BackupOptions, serverTag string) StatementSequence {
	dir := NormalizeDirectory(targetDirectory)
	stamp := b.now()

	seen := make(map[string]struct{}, len(databases))
	statements := make([]string, 0, len(databases))
	for _, db := range databases {
		if _, ok := seen[db]; ok {
			continue
		}
		seen[db] = struct{}{}

		fileName := BackupFileName(serverTag, db, stamp, options.Differential, false)
		statements = append(statements, backupStatement(db, dir+fileName, options))
	}

	label := "Bulk backup"
	if len(statements) == 1 {
		label = fmt.Sprintf("Backup %s", databases[0])
	}
	return StatementSequence{label: label, statements: statements}
}

// BuildScheduledBackup is the statement the scheduler fires for its target
// database. The file name carries the SCHEDULED marker.
func (b *Builder) BuildScheduledBackup(database, targetDirectory string, options BackupOptions, serverTag string) StatementSequence {
	dir := NormalizeDirectory(targetDirectory)
	fileName := BackupFileName(serverTag, database, b.now(), options.Differential, true)

	return StatementSequence{
		label:      fmt.Sprintf("Scheduled backup %s", database),
		statements: []string{backupStatement(database, dir+fileName, options)},
	}
}

// BuildRestoreSequence emits, in order: SINGLE_USER (optional), RESTORE,
// MULTI_USER (only when SINGLE_USER was emitted).
func BuildRestoreSequence(database, sourceFilePath string, options RestoreOptions) StatementSequence {
	name := quoteName(database)
	statements := make([]string, 0, 3)

	if options.ForceSingleUser {
		statements = append(statements, fmt.Sprintf("ALTER DATABASE %s SET SINGLE_USER WITH ROLLBACK IMMEDIATE", name))
	}

	restore := fmt.Sprintf("RESTORE DATABASE %s FROM DISK = %s", name, quoteString(sourceFilePath))
	var clauses []string
	if options.OverwriteExisting {
		clauses = append(clauses, "REPLACE")
	}
	if options.BringOnline {
		clauses = append(clauses, "RECOVERY")
	}
	if len(clauses) > 0 {
		restore += " WITH " + strings.Join(clauses, ", ")
	}
	statements = append(statements, restore)

	if options.ForceSingleUser {
		statements = append(statements, fmt.Sprintf("ALTER DATABASE %s SET MULTI_USER", name))
	}

	return StatementSequence{
		label:      fmt.Sprintf("Restore %s", database),
		database:   database,
		singleUser: options.ForceSingleUser,
		statements: statements,
	}
}

// BackupFileName renders <serverTag>_<database>_<YYYYMMDD_HHMMSS>[_DIFF][_SCHEDULED].bak.
func BackupFileName(serverTag, database string, at time.Time, differential, scheduled bool) string {
	parts := []string{SanitizeServerTag(serverTag), database, at.Format(timestampLayout)}
	if differential {
		parts = append(parts, DifferentialSuffix)
	}
	if scheduled {
		parts = append(parts, ScheduledSuffix)
	}
	return strings.Join(parts, "_") + fileExtension
}

// SanitizeServerTag keeps the tag a single `_`-free token so it survives
// the catalog's file name split. `SRV1\SQLEXPRESS` becomes `SRV1-SQLEXPRESS`.
func SanitizeServerTag(tag string) string {
	cleaned := serverTagSanitizer.ReplaceAllString(strings.TrimSpace(tag), "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "localhost"
	}
	return cleaned
}

// NormalizeDirectory guarantees a trailing separator. Forward-slash paths
// get `/`, everything else gets `\`.
func NormalizeDirectory(dir string) string {
	if strings.HasSuffix(dir, `\`) || strings.HasSuffix(dir, "/") {
		return dir
	}
	if strings.Contains(dir, "/") && !strings.Contains(dir, `\`) {
		return dir + "/"
	}
	return dir + `\`
}

func backupStatement(database, path string, options BackupOptions) string {
	clauses := []string{"INIT"}
	if options.Differential {
		clauses = append(clauses, "DIFFERENTIAL")
	}
	if options.Compress {
		clauses = append(clauses, "COMPRESSION")
	}
	if options.CopyOnly {
		clauses = append(clauses, "COPY_ONLY")
	}
	if options.VerifyChecksum {
		clauses = append(clauses, "CHECKSUM")
	}

	return fmt.Sprintf("BACKUP DATABASE %s TO DISK = %s WITH %s",
		quoteName(database), quoteString(path), strings.Join(clauses, ", "))
}

func quoteName(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
