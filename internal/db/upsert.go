package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ColumnValue is one column/value pair in an upsert. Key columns
// participate in the INSERT list but never the UPDATE SET clause (their
// uniqueness is what ON DUPLICATE KEY UPDATE keys off of); the caller is
// responsible for a real unique index existing on the key columns.
type ColumnValue struct {
	Name  string
	Value interface{}
	Key   bool
}

// Upsert performs INSERT ... ON DUPLICATE KEY UPDATE against table,
// filtering cols down to those the catalog confirms exist (schema-drift
// tolerance, §4.L/§9), and returns the row's primary key via the
// LAST_INSERT_ID(id) trick so the caller gets the id on both insert and
// update. idColumn must be the table's auto-increment primary key.
func Upsert(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, cat *Catalog, table, idColumn string, cols []ColumnValue) (int64, error) {
	var present []ColumnValue
	for _, c := range cols {
		if cat == nil || cat.HasColumn(ctx, table, c.Name) {
			present = append(present, c)
		}
	}
	if len(present) == 0 {
		return 0, fmt.Errorf("db: upsert %s: no known columns to write", table)
	}

	names := make([]string, 0, len(present))
	placeholders := make([]string, 0, len(present))
	args := make([]interface{}, 0, len(present))
	for _, c := range present {
		names = append(names, c.Name)
		placeholders = append(placeholders, "?")
		args = append(args, c.Value)
	}

	var updates []string
	updates = append(updates, fmt.Sprintf("%s = LAST_INSERT_ID(%s)", idColumn, idColumn))
	for _, c := range present {
		if c.Key {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", c.Name, c.Name))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)

	res, err := execer.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db: upsert %s: %w", table, err)
	}
	return res.LastInsertId()
}
