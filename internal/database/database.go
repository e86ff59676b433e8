package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/types"
	_ "modernc.org/sqlite"
)

// DB wraps sqlx.DB to provide transaction management
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// Querier interface defines all database operations
// Both *sqlx.DB and *sqlx.Tx implement these methods
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string
	DriverName() string
}

// driverName maps the configured driver to the database/sql driver name
func driverName(d types.DatabaseDriver) string {
	switch d {
	case types.DatabaseDriverSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// NewDB opens the configured database and applies the schema when auto_migrate is set
func NewDB(cfg *config.Configuration, logger *logger.Logger) (*DB, error) {
	dbCfg := cfg.Database
	db, err := sqlx.Connect(driverName(dbCfg.Driver), dbCfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dbCfg.Driver, err)
	}

	if dbCfg.Driver == types.DatabaseDriverSQLite {
		// a single writer avoids SQLITE_BUSY on the desktop file
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(dbCfg.MaxOpenConns)
		db.SetMaxIdleConns(dbCfg.MaxIdleConns)
		db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime())
	}

	d := &DB{DB: db, logger: logger}

	if dbCfg.AutoMigrate {
		if err := d.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Infow("database ready",
		"driver", dbCfg.Driver,
		"auto_migrate", dbCfg.AutoMigrate,
	)
	return d, nil
}

// NewFromSQLX wraps an open connection, used by tests and tooling
func NewFromSQLX(db *sqlx.DB, logger *logger.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		db.logger.Errorw("error closing database", "error", err)
		return err
	}
	return nil
}

// GetQuerier returns either the transaction from context or the base DB
func (db *DB) GetQuerier(ctx context.Context) Querier {
	if tx, ok := GetTx(ctx); ok {
		return NewTracedQuerier(tx.Tx, db.logger, tx.ID)
	}
	return NewTracedQuerier(db.DB, db.logger, "")
}
