package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/SQLBM/internal/config"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"
)

var testProfile = config.ConnectionProfile{DisplayName: "test", Host: "SRV1", User: "sa"}

func newMock(t *testing.T, opts ...sqlmock.Option) (*database.SQLConnector, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return database.NewConnector(db, testProfile), mock
}

func TestSessionExecuteDrainsAllResultSets(t *testing.T) {
	connector, mock := newMock(t, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))

	const backupStmt = "BACKUP DATABASE [SalesDB] TO DISK = 'D:\\x.bak' WITH INIT"
	const nextStmt = "ALTER DATABASE [SalesDB] SET MULTI_USER"

	progress := sqlmock.NewRows([]string{"message"}).AddRow("10 percent processed.").AddRow("100 percent processed.")
	summary := sqlmock.NewRows([]string{"message"}).AddRow("BACKUP DATABASE successfully processed 402 pages")
	mock.ExpectQuery(backupStmt).WillReturnRows(progress, summary)
	mock.ExpectQuery(nextStmt).WillReturnRows(sqlmock.NewRows(nil))

	session, err := connector.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Execute(context.Background(), backupStmt))
	require.NoError(t, session.Execute(context.Background(), nextStmt))
	require.NoError(t, session.Close())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExecuteReportsServerError(t *testing.T) {
	connector, mock := newMock(t, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))

	const stmt = "RESTORE DATABASE [SalesDB] FROM DISK = 'D:\\missing.bak'"
	mock.ExpectQuery(stmt).WillReturnError(errors.New("Cannot open backup device 'D:\\missing.bak'"))

	session, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer session.Close()

	err = session.Execute(context.Background(), stmt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot open backup device")
}

func TestSessionExecuteReportsErrorInLaterResultSet(t *testing.T) {
	connector, mock := newMock(t, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))

	const stmt = "BACKUP DATABASE [SalesDB] TO DISK = 'D:\\x.bak' WITH INIT, CHECKSUM"
	first := sqlmock.NewRows([]string{"message"}).AddRow("50 percent processed.")
	second := sqlmock.NewRows([]string{"message"}).AddRow("checksum").RowError(0, errors.New("checksum mismatch on page 12"))
	mock.ExpectQuery(stmt).WillReturnRows(first, second)

	session, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer session.Close()

	err = session.Execute(context.Background(), stmt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestPingFailureIsConnectionError(t *testing.T) {
	connector, mock := newMock(t, sqlmock.MonitorPingsOption(true))
	mock.ExpectPing().WillReturnError(errors.New("login failed for user 'sa'"))

	err := connector.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConnection, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "login failed")
	assert.Contains(t, err.Error(), "SRV1")
}

func TestListDatabases(t *testing.T) {
	connector, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"name", "state_desc", "recovery_model_desc", "size_mb"}).
		AddRow("Orders", "ONLINE", "FULL", 128.5).
		AddRow("SalesDB", "ONLINE", "SIMPLE", 64.0)
	mock.ExpectQuery("FROM sys.databases d").WillReturnRows(rows)

	databases, err := connector.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, databases, 2)
	assert.Equal(t, "Orders", databases[0].Name)
	assert.Equal(t, "FULL", databases[0].RecoveryModel)
	assert.InDelta(t, 64.0, databases[1].SizeMB, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnectionValidatesProfile(t *testing.T) {
	_, err := database.NewConnection(context.Background(), config.ConnectionProfile{Host: "SRV1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
