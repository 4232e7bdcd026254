package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/hit-counter/internal/config"
)

// Dialect hides the differences between the supported SQL backends: how the
// pool DSN is built, how a schema gets selected on a fresh connection, and
// the handful of counter statements whose syntax is not portable.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(cfg config.DBConfig) string
	Ping(ctx context.Context, conn *sql.Conn) error
	// ConnectError names the sentinel for a connection that could not be
	// acquired at all.
	ConnectError(name string) error
	SelectSchema(ctx context.Context, conn *sql.Conn, name string) error

	CreateCounterTable() string
	SeedCounter() string
	IncrementCounter() string
}

// DialectFor returns the dialect registered for driver, or nil.
func DialectFor(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "mysql":
		return mysqlDialect{}
	case "sqlite":
		return sqliteDialect{}
	}
	return nil
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

// DSN leaves DBName empty: the schema is selected per connection so that an
// unreachable server and a missing schema surface as different errors.
func (mysqlDialect) DSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.Timeout = cfg.ConnectTimeout
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func (mysqlDialect) Ping(ctx context.Context, conn *sql.Conn) error {
	return conn.PingContext(ctx)
}

// ConnectError: the DSN carries no schema, so a failed dial is always the
// server's fault.
func (mysqlDialect) ConnectError(string) error { return ErrConnectionFailed }

func (mysqlDialect) SelectSchema(ctx context.Context, conn *sql.Conn, name string) error {
	_, err := conn.ExecContext(ctx, "USE "+quoteIdent(name))
	return err
}

func (mysqlDialect) CreateCounterTable() string {
	return `CREATE TABLE IF NOT EXISTS hits (
		id  TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		cnt BIGINT UNSIGNED NOT NULL DEFAULT 0
	) ENGINE=InnoDB`
}

func (mysqlDialect) SeedCounter() string {
	return `INSERT IGNORE INTO hits (id, cnt) VALUES (1, 0)`
}

func (mysqlDialect) IncrementCounter() string {
	return `INSERT INTO hits (id, cnt) VALUES (1, 1) ON DUPLICATE KEY UPDATE cnt = cnt + 1`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

// DSN opens the existing file named by cfg.Name.  mode=rw keeps a typo in
// the name from creating a fresh database.  busy_timeout lets concurrent
// writers queue instead of failing with SQLITE_BUSY, and immediate
// transactions take the write lock up front.
func (sqliteDialect) DSN(cfg config.DBConfig) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(cfg.ConnectTimeout.Milliseconds(), 10)+")")
	q.Set("_txlock", "immediate")
	q.Set("mode", "rw")
	return "file:" + cfg.Name + "?" + q.Encode()
}

// Ping is a no-op: the driver already opened the file when the connection
// was acquired.
func (sqliteDialect) Ping(context.Context, *sql.Conn) error { return nil }

// ConnectError treats the directory as the server and the file as the
// schema: a missing file in an existing directory is an unselectable
// database, anything else a failed connection.
func (sqliteDialect) ConnectError(name string) error {
	if _, err := os.Stat(name); !errors.Is(err, fs.ErrNotExist) {
		return ErrConnectionFailed
	}
	if st, err := os.Stat(filepath.Dir(name)); err == nil && st.IsDir() {
		return ErrSchemaUnselectable
	}
	return ErrConnectionFailed
}

// SelectSchema reads the schema table; sqlite opens files lazily so this is
// the first point where a non-database file is rejected.
func (sqliteDialect) SelectSchema(ctx context.Context, conn *sql.Conn, _ string) error {
	var n int
	return conn.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master`).Scan(&n)
}

func (sqliteDialect) CreateCounterTable() string {
	return `CREATE TABLE IF NOT EXISTS hits (
		id  INTEGER NOT NULL PRIMARY KEY,
		cnt INTEGER NOT NULL DEFAULT 0 CHECK (cnt >= 0)
	)`
}

func (sqliteDialect) SeedCounter() string {
	return `INSERT OR IGNORE INTO hits (id, cnt) VALUES (1, 0)`
}

func (sqliteDialect) IncrementCounter() string {
	return `INSERT INTO hits (id, cnt) VALUES (1, 1) ON CONFLICT(id) DO UPDATE SET cnt = cnt + 1`
}

// quoteIdent wraps a MySQL identifier in backticks, doubling embedded ones.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
