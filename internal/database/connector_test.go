package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/hit-counter/internal/config"
)

func sqliteConfig(path string) config.DBConfig {
	return config.DBConfig{Driver: "sqlite", Name: path, ConnectTimeout: 2 * time.Second}
}

// emptyDB creates a zero-length file, which sqlite opens as an empty
// database.
func emptyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hits.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func openConnector(t *testing.T, cfg config.DBConfig) *Connector {
	t.Helper()
	c, err := NewConnector(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectSQLite(t *testing.T) {
	c := openConnector(t, sqliteConfig(emptyDB(t)))
	ctx := context.Background()

	conn, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Dialect.Name())
	assert.Equal(t, 1, c.Stats().InUse)

	require.NoError(t, conn.Close())
	assert.Equal(t, 0, c.Stats().InUse)
	require.NoError(t, c.Ping(ctx))
}

func TestConnectUnreachableSQLite(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "hits.db")
	c := openConnector(t, sqliteConfig(missing))

	conn, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrSchemaUnselectable)
	assert.Nil(t, conn)
	assert.Zero(t, c.Stats().OpenConnections)
}

func TestConnectSchemaUnselectableSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	junk := strings.Repeat("this is definitely not an sqlite database file\n", 64)
	require.NoError(t, os.WriteFile(path, []byte(junk), 0o644))
	c := openConnector(t, sqliteConfig(path))

	conn, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrSchemaUnselectable)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Nil(t, conn)
	assert.Zero(t, c.Stats().OpenConnections)
}

func TestConnectMissingSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.db")
	c := openConnector(t, sqliteConfig(path))

	conn, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrSchemaUnselectable)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Nil(t, conn)
	assert.Zero(t, c.Stats().OpenConnections)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "connect must not create the database file")
}

func TestConnectUnreachableMySQL(t *testing.T) {
	c := openConnector(t, config.DBConfig{
		Driver:         "mysql",
		Host:           "127.0.0.1",
		Port:           "1",
		User:           "counter",
		Name:           "hits",
		ConnectTimeout: time.Second,
	})

	conn, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.Nil(t, conn)
	assert.Zero(t, c.Stats().OpenConnections)
}

func TestNewConnectorUnsupportedDriver(t *testing.T) {
	_, err := NewConnector(config.DBConfig{Driver: "oracle", Name: "x"}, nil)
	require.Error(t, err)
}

func TestMySQLDSNOmitsSchema(t *testing.T) {
	dsn := mysqlDialect{}.DSN(config.DBConfig{
		Host:           "db",
		Port:           "3306",
		User:           "counter",
		Pass:           "p@ss",
		Name:           "hits",
		ConnectTimeout: 3 * time.Second,
	})

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", mc.Addr)
	assert.Equal(t, "counter", mc.User)
	assert.Equal(t, "p@ss", mc.Passwd)
	assert.Empty(t, mc.DBName)
	assert.Equal(t, 3*time.Second, mc.Timeout)
	assert.True(t, mc.ParseTime)
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDialect{}.DSN(sqliteConfig("/tmp/hits.db"))
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/hits.db?"))
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout%282000%29")
	assert.Contains(t, dsn, "mode=rw")
}

func newMockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	c := newConnector(db, mysqlDialect{}, config.DBConfig{
		Driver:         "mysql",
		Host:           "db",
		Port:           "3306",
		User:           "counter",
		Name:           "hits",
		ConnectTimeout: time.Second,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c, mock
}

func TestConnectMySQLSelectsSchema(t *testing.T) {
	c, mock := newMockConnector(t)
	mock.ExpectExec("USE `hits`").WillReturnResult(sqlmock.NewResult(0, 0))

	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mysql", conn.Dialect.Name())
	require.NoError(t, conn.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectMySQLUnknownDatabase(t *testing.T) {
	c, mock := newMockConnector(t)
	mock.ExpectExec("USE `hits`").
		WillReturnError(&mysql.MySQLError{Number: 1049, Message: "Unknown database 'hits'"})
	// The failed connection is closed rather than returned to the pool.
	mock.ExpectClose()

	conn, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrSchemaUnselectable)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	var myErr *mysql.MySQLError
	require.ErrorAs(t, err, &myErr)
	assert.EqualValues(t, 1049, myErr.Number)
	assert.Nil(t, conn)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, c.Stats().OpenConnections)
}

func TestConnectErrorKinds(t *testing.T) {
	dir := t.TempDir()
	existing := emptyDB(t)

	assert.Equal(t, ErrConnectionFailed, mysqlDialect{}.ConnectError("hits"))
	assert.Equal(t, ErrSchemaUnselectable, sqliteDialect{}.ConnectError(filepath.Join(dir, "missing.db")))
	assert.Equal(t, ErrConnectionFailed, sqliteDialect{}.ConnectError(filepath.Join(dir, "nope", "missing.db")))
	assert.Equal(t, ErrConnectionFailed, sqliteDialect{}.ConnectError(existing))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`hits`", quoteIdent("hits"))
	assert.Equal(t, "`we``ird`", quoteIdent("we`ird"))
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "mysql", DialectFor("MySQL").Name())
	assert.Equal(t, "sqlite", DialectFor("sqlite").Name())
	assert.Nil(t, DialectFor("postgres"))
}
