package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/SQLBM/internal/config"
	apperrors "github.com/kadirbelkuyu/SQLBM/internal/errors"

	_ "github.com/microsoft/go-mssqldb"
)

const driverName = "sqlserver"

// Connector opens sessions against one server.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session executes statements one at a time on a single server session.
// Each statement commits on its own; there is no enclosing transaction.
type Session interface {
	Execute(ctx context.Context, statement string) error
	Close() error
}

// DatabaseInfo is one user database as listed on the server.
type DatabaseInfo struct {
	Name          string
	State         string
	RecoveryModel string
	SizeMB        float64
}

// SQLConnector is the go-mssqldb backed Connector.
type SQLConnector struct {
	DB      *sql.DB
	Profile config.ConnectionProfile
}

// NewConnection opens the pool and pings the server so unreachable hosts
// and rejected credentials surface immediately.
func NewConnection(ctx context.Context, profile config.ConnectionProfile) (*SQLConnector, error) {
	if err := profile.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "connect", err)
	}

	db, err := sql.Open(driverName, profile.GetConnectionString())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnection, "connect", fmt.Errorf("failed to open database connection: %w", err))
	}

	connector := NewConnector(db, profile)
	if err := connector.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return connector, nil
}

// NewConnector wraps an already opened pool.
func NewConnector(db *sql.DB, profile config.ConnectionProfile) *SQLConnector {
	return &SQLConnector{DB: db, Profile: profile}
}

func (c *SQLConnector) Ping(ctx context.Context) error {
	ctx, cancel := withDefaultTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := c.DB.PingContext(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindConnection, "connect", fmt.Errorf("unable to reach %s: %w", c.Profile.ServerLabel(), err))
	}
	return nil
}

// Connect pins one pooled connection for the lifetime of the session.
func (c *SQLConnector) Connect(ctx context.Context) (Session, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnection, "connect", fmt.Errorf("unable to open session on %s: %w", c.Profile.ServerLabel(), err))
	}
	return &sqlSession{conn: conn}, nil
}

func (c *SQLConnector) Close() error {
	return c.DB.Close()
}

// ListDatabases returns the online user databases; system databases and
// anything offline, suspect or recovering cannot be backed up and are skipped.
func (c *SQLConnector) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	const query = `
		SELECT
			d.name,
			d.state_desc,
			d.recovery_model_desc,
			CAST(COALESCE(SUM(f.size), 0) * 8.0 / 1024 AS FLOAT) AS size_mb
		FROM sys.databases d
		LEFT JOIN sys.master_files f ON f.database_id = d.database_id
		WHERE d.name NOT IN ('master', 'tempdb', 'model', 'msdb')
			AND d.state_desc = 'ONLINE'
		GROUP BY d.name, d.state_desc, d.recovery_model_desc
		ORDER BY d.name;
	`

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	defer rows.Close()

	var databases []DatabaseInfo
	for rows.Next() {
		var info DatabaseInfo
		if err := rows.Scan(&info.Name, &info.State, &info.RecoveryModel, &info.SizeMB); err != nil {
			return nil, fmt.Errorf("failed to read database info: %w", err)
		}
		databases = append(databases, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read database info: %w", err)
	}

	return databases, nil
}

type sqlSession struct {
	conn *sql.Conn
}

// Execute runs the statement and drains every result set it produces.
// BACKUP and RESTORE report progress as extra result sets; leaving them
// unread would block or break the next statement on this session.
func (s *sqlSession) Execute(ctx context.Context, statement string) error {
	rows, err := s.conn.QueryContext(ctx, statement)
	if err != nil {
		return err
	}
	defer rows.Close()

	for {
		for rows.Next() {
		}
		if !rows.NextResultSet() {
			break
		}
	}
	return rows.Err()
}

func (s *sqlSession) Close() error {
	return s.conn.Close()
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
