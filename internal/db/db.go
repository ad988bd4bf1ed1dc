// Package db is the ledger/receipt persistence layer: connection setup,
// the schema-drift-tolerant catalog (§4.L / §9), a generic idempotent
// upsert builder, and one adapter struct per table so every stage writes
// through a typed, compiler-checked shape instead of a dynamic kwargs map.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kenshin-ingest/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// Open establishes the MySQL connection pool described by cfg. The pool
// keeps the driver's default autocommit mode: every store write in this
// package is a single ExecContext statement committed on its own, and no
// caller opens an explicit transaction.
func Open(ctx context.Context, cfg model.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	}
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return conn, nil
}
