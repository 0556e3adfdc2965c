package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/upb/askllm/config"
)

// Dialect selects placeholder style and schema types
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// DialectFor picks the driver from the DSN: postgres:// and postgresql://
// URLs use lib/pq, anything else is handed to SQLite.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// NewDB opens the audit database and creates the schema
func NewDB(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*DB, error) {
	dialect := DialectFor(cfg.DSN)

	sqlDB, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if dialect == DialectSQLite {
		// SQLite serializes writers
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := Wrap(sqlDB, dialect, logger)
	if err := db.InitSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("audit database connection established",
		zap.String("driver", string(dialect)),
		zap.String("connection", LogString(cfg.DSN)))

	return db, nil
}

// Wrap adopts an existing pool (tests use it with sqlmock)
func Wrap(sqlDB *sql.DB, dialect Dialect, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: sqlDB, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing audit database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema creates the audit table and its indexes
func (db *DB) InitSchema(ctx context.Context) error {
	idType, tsType := "UUID", "TIMESTAMPTZ"
	if db.dialect == DialectSQLite {
		idType, tsType = "TEXT", "TIMESTAMP"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id ` + idType + ` PRIMARY KEY,
			timestamp ` + tsType + ` NOT NULL,
			request_id VARCHAR(255),
			transport VARCHAR(16) NOT NULL,
			alias VARCHAR(255) NOT NULL,
			model VARCHAR(255),
			status VARCHAR(16) NOT NULL,
			error_kind VARCHAR(64),
			reason VARCHAR(64),
			attempts INTEGER NOT NULL DEFAULT 0,
			prompt_length INTEGER NOT NULL DEFAULT 0,
			response_length INTEGER NOT NULL DEFAULT 0,
			has_attachment BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_alias ON audit_entries(alias)`,
	}

	err := db.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	db.logger.Info("audit schema initialized", zap.String("driver", string(db.dialect)))
	return nil
}

// Rebind rewrites ? placeholders to $N for PostgreSQL
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LogString returns a loggable form of the DSN without credentials
func LogString(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		if i := strings.Index(dsn, "?"); i >= 0 {
			return dsn[:i]
		}
		return dsn
	}
	return fmt.Sprintf("host=%s database=%s", u.Host, strings.TrimPrefix(u.Path, "/"))
}
