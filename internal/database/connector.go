// Package database opens connections to the relational store that holds the
// hit counter.  The Connector owns a pool and hands out one dedicated,
// schema-selected connection per request.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/hit-counter/internal/config"
)

var (
	// ErrConnectionFailed means the server could not be reached or rejected
	// the credentials.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrSchemaUnselectable means the server answered but the configured
	// database does not exist or is not accessible to this user.
	ErrSchemaUnselectable = errors.New("schema unselectable")
)

// Connection is a single schema-selected connection.  Callers own it and
// must Close it on every path.
type Connection struct {
	*sql.Conn
	Dialect Dialect
}

// Connector establishes Connections from an explicit DBConfig.
type Connector struct {
	db      *sql.DB
	dialect Dialect
	cfg     config.DBConfig
	log     *zap.Logger
}

// NewConnector prepares the pool.  No network I/O happens here; sql.Open only
// validates the DSN.
func NewConnector(cfg config.DBConfig, log *zap.Logger) (*Connector, error) {
	dialect := DialectFor(cfg.Driver)
	if dialect == nil {
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	db, err := sql.Open(dialect.DriverName(), dialect.DSN(cfg))
	if err != nil {
		return nil, err
	}
	return newConnector(db, dialect, cfg, log), nil
}

func newConnector(db *sql.DB, dialect Dialect, cfg config.DBConfig, log *zap.Logger) *Connector {
	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Connector{db: db, dialect: dialect, cfg: cfg, log: log.Named("database")}
}

// Connect acquires a connection, verifies it with a ping and selects the
// configured schema.  Failures wrap ErrConnectionFailed or
// ErrSchemaUnselectable and never leave a connection open.
func (c *Connector) Connect(ctx context.Context) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.db.Conn(ctx)
	if err != nil {
		kind := c.dialect.ConnectError(c.cfg.Name)
		c.log.Warn("connect failed", zap.String("driver", c.dialect.Name()), zap.NamedError("kind", kind), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", kind, err)
	}
	if err := c.dialect.Ping(ctx, conn); err != nil {
		discard(conn)
		c.log.Warn("ping failed", zap.String("driver", c.dialect.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := c.dialect.SelectSchema(ctx, conn, c.cfg.Name); err != nil {
		discard(conn)
		c.log.Warn("select schema failed", zap.String("schema", c.cfg.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %q: %w", ErrSchemaUnselectable, c.cfg.Name, err)
	}
	return &Connection{Conn: conn, Dialect: c.dialect}, nil
}

// Ping checks that the store is reachable and the schema selectable, then
// releases the connection.
func (c *Connector) Ping(ctx context.Context) error {
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Stats exposes pool statistics.
func (c *Connector) Stats() sql.DBStats { return c.db.Stats() }

// Close closes the pool.
func (c *Connector) Close() error { return c.db.Close() }

// discard closes the physical connection instead of returning it to the
// idle pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
