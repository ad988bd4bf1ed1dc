package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Catalog answers "does this table have this column" and "what are this
// enum column's literal values", both backed by information_schema and
// cached for the process lifetime — §9's "information_schema answers are
// process-wide but immutable after first read; a concurrency-safe lazy map
// suffices." Cache keys are hashed with xxhash to keep the hot path to a
// single map lookup regardless of identifier length.
type Catalog struct {
	db     *sql.DB
	schema string

	mu      sync.RWMutex
	columns map[uint64]bool     // xxhash(table.column) -> exists
	enums   map[uint64][]string // xxhash(table.column) -> ordered enum literal set
	tables  map[string]bool     // table -> columns already bulk-loaded
}

func NewCatalog(db *sql.DB, schema string) *Catalog {
	return &Catalog{
		db:      db,
		schema:  schema,
		columns: make(map[uint64]bool),
		enums:   make(map[uint64][]string),
		tables:  make(map[string]bool),
	}
}

func columnKey(table, column string) uint64 {
	h := xxhash.New()
	h.WriteString(table)
	h.WriteString(".")
	h.WriteString(column)
	return h.Sum64()
}

// HasColumn reports whether table.column exists in the connected schema,
// bulk-loading (and caching) the whole table's column list on first use.
func (c *Catalog) HasColumn(ctx context.Context, table, column string) bool {
	c.ensureTableLoaded(ctx, table)

	key := columnKey(table, column)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columns[key]
}

func (c *Catalog) ensureTableLoaded(ctx context.Context, table string) {
	c.mu.RLock()
	loaded := c.tables[table]
	c.mu.RUnlock()
	if loaded {
		return
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ?`, c.schema, table)
	if err != nil {
		// Treat as "no columns known" rather than panicking: every
		// HasColumn answer for this table is then false, so Upsert against
		// it returns a "no known columns" error instead of writing.
		c.mu.Lock()
		c.tables[table] = true
		c.mu.Unlock()
		return
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var name, columnType string
		if err := rows.Scan(&name, &columnType); err != nil {
			continue
		}
		c.columns[columnKey(table, name)] = true
		if vals := parseEnumLiteral(columnType); vals != nil {
			c.enums[columnKey(table, name)] = vals
		}
	}
	c.tables[table] = true
}

// EnumValues returns the ordered literal set of an enum column, or nil if
// the column isn't an enum (or doesn't exist).
func (c *Catalog) EnumValues(ctx context.Context, table, column string) []string {
	c.ensureTableLoaded(ctx, table)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enums[columnKey(table, column)]
}

// GuardEnum substitutes value with a safe fallback when it is not a member
// of the column's declared enum set: "OTHER" if present, else the
// first-declared member, else the value unchanged (column isn't an enum or
// doesn't exist, so there's nothing to guard against).
func (c *Catalog) GuardEnum(ctx context.Context, table, column, value string) string {
	values := c.EnumValues(ctx, table, column)
	if values == nil {
		return value
	}
	for _, v := range values {
		if v == value {
			return value
		}
	}
	for _, v := range values {
		if v == "OTHER" {
			return v
		}
	}
	if len(values) > 0 {
		return values[0]
	}
	return value
}

// parseEnumLiteral extracts the quoted literal list from a COLUMN_TYPE
// string like "enum('OK','SKIP','ERROR')"; returns nil for non-enum types.
func parseEnumLiteral(columnType string) []string {
	lower := strings.ToLower(columnType)
	if !strings.HasPrefix(lower, "enum(") {
		return nil
	}
	inner := columnType[len("enum(") : len(columnType)-1]
	var out []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "'")
		part = strings.TrimSuffix(part, "'")
		part = strings.ReplaceAll(part, "''", "'")
		out = append(out, part)
	}
	return out
}
