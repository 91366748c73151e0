package schemas

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Helper that lets us wrap SQL strings to be used as the default expression.
// This is necessary as we use a pointer and its weird
func SQLDefault(expr string) *string { return &expr }

func DefaultNow() *string {
	return SQLDefault("CURRENT_TIMESTAMP")
}

func DefaultFalse() *string {
	return SQLDefault("FALSE")
}

type ColumnType int

const (
	ColumnString ColumnType = iota
	ColumnText
	ColumnInt
	ColumnFloat
	ColumnBool
	ColumnTimestamp
)

type Column struct {
	Name           string
	Type           ColumnType
	PrimaryKey     bool // Default no
	Nullable       bool // Default no
	DefaultSQLExpr *string
}

type Schema struct {
	Name    string
	Columns []Column
	// Uniques emits one composite UNIQUE constraint per entry.
	Uniques [][]string
	// Indexes emits one plain index per entry, created separately from the table.
	Indexes [][]string
}

// Type names are kept to the portable subset that both Postgres and the
// sqlite test database accept.
func columnTypeToString(colType ColumnType) string {
	switch colType {
	case ColumnString:
		return "varchar(255)"
	case ColumnText:
		return "text"
	case ColumnInt:
		return "integer"
	case ColumnFloat:
		return "double precision"
	case ColumnBool:
		return "boolean"
	case ColumnTimestamp:
		return "timestamp"
	default:
		// fallback to something safe so schema generation never explodes
		return "varchar(255)"
	}
}

func columnToString(col Column) string {
	var parts []string

	parts = append(parts, col.Name)
	parts = append(parts, columnTypeToString(col.Type))

	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.DefaultSQLExpr != nil {
		parts = append(parts, "DEFAULT "+*col.DefaultSQLExpr)
	}

	return strings.Join(parts, " ")
}

func schemaToCreationString(schema Schema) string {
	cols := make([]string, 0, len(schema.Columns)+len(schema.Uniques))

	for _, col := range schema.Columns {
		cols = append(cols, columnToString(col))
	}
	for _, unique := range schema.Uniques {
		cols = append(cols, "UNIQUE ("+strings.Join(unique, ", ")+")")
	}

	return "CREATE TABLE IF NOT EXISTS " + schema.Name + " (" + strings.Join(cols, ", ") + ");"
}

func schemaToIndexStrings(schema Schema) []string {
	stmts := make([]string, 0, len(schema.Indexes))
	for _, idx := range schema.Indexes {
		name := "idx_" + schema.Name + "_" + strings.Join(idx, "_")
		stmts = append(stmts,
			"CREATE INDEX IF NOT EXISTS "+name+" ON "+schema.Name+" ("+strings.Join(idx, ", ")+");")
	}
	return stmts
}

func CreateSchema(ctx context.Context, db *sql.DB, schema Schema) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	if schema.Name == "" {
		return fmt.Errorf("schema name is empty")
	}

	sqlStr := schemaToCreationString(schema)

	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("create schema %q failed: %w\nSQL: %s", schema.Name, err, sqlStr)
	}

	for _, idxStr := range schemaToIndexStrings(schema) {
		if _, err := db.ExecContext(ctx, idxStr); err != nil {
			return fmt.Errorf("create index for %q failed: %w\nSQL: %s", schema.Name, err, idxStr)
		}
	}

	return nil
}
