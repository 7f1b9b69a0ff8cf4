package backup

// BackupOptions are the WITH-clause flags of a BACKUP DATABASE statement.
type BackupOptions struct {
	Compress       bool
	CopyOnly       bool
	VerifyChecksum bool
	Differential   bool
}

// RestoreOptions control the statements wrapped around RESTORE DATABASE.
type RestoreOptions struct {
	// ForceSingleUser kicks other sessions out before the restore and
	// returns the database to MULTI_USER afterwards.
	ForceSingleUser   bool
	OverwriteExisting bool
	BringOnline       bool
}

// StatementSequence is an ordered, immutable list of statements plus the
// label reported when the run finishes.
type StatementSequence struct {
	label      string
	database   string
	singleUser bool
	statements []string
}

func NewSequence(label string, statements ...string) StatementSequence {
	return StatementSequence{
		label:      label,
		statements: append([]string(nil), statements...),
	}
}

func (s StatementSequence) Label() string {
	return s.label
}

// Database is the restore target, empty for backup sequences.
func (s StatementSequence) Database() string {
	return s.database
}

// LeavesSingleUserOnFailure reports whether the sequence switches the
// database to SINGLE_USER before restoring. If the restore statement then
// fails, nothing switches it back.
func (s StatementSequence) LeavesSingleUserOnFailure() bool {
	return s.singleUser
}

func (s StatementSequence) Len() int {
	return len(s.statements)
}

func (s StatementSequence) At(i int) string {
	return s.statements[i]
}

// Statements returns a copy of the statement list.
func (s StatementSequence) Statements() []string {
	return append([]string(nil), s.statements...)
}
