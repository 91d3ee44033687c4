// Package dialect provides the SQL differences between the supported
// price databases.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres", "mysql")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	// For example, PostgreSQL uses $1, $2, etc.
	Rebind(query string) string

	// DateType returns the column type used for observation dates
	DateType() string

	// RealType returns the column type used for prices and rents
	RealType() string

	// VarcharType returns an indexable string column type
	VarcharType() string

	// DateExpr renders a date column as YYYY-MM-DD text
	DateExpr(col string) string

	// MonthExpr truncates a date column to the first of its month, as YYYY-MM-DD text
	MonthExpr(col string) string

	// YearExpr extracts the calendar year as an integer
	YearExpr(col string) string

	// MonthNumExpr extracts the month number (1-12) as an integer
	MonthNumExpr(col string) string

	// UpsertClause returns the ON CONFLICT/ON DUPLICATE KEY clause for upserts
	UpsertClause(conflictColumns []string, updateColumns []string) string

	// PragmaStatements returns dialect-specific initialization statements (e.g., PRAGMA for SQLite)
	PragmaStatements() []string
}

// DialectType represents supported database types
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
	MySQL    DialectType = "mysql"
)

// New creates a new Dialect based on the dialect type
func New(dialectType DialectType) (Dialect, error) {
	switch dialectType {
	case SQLite:
		return &sqliteDialect{}, nil
	case Postgres:
		return &postgresDialect{}, nil
	case MySQL:
		return &mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialectType)
	}
}

// FromDriverName returns the dialect for a given driver name
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return &sqliteDialect{}, nil
	case "postgres", "postgresql":
		return &postgresDialect{}, nil
	case "mysql":
		return &mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

// sqliteDialect implements Dialect for SQLite. Dates are stored as
// YYYY-MM-DD text, so comparisons against bound strings are lexical.
type sqliteDialect struct{}

func (d *sqliteDialect) Name() string       { return "sqlite" }
func (d *sqliteDialect) DriverName() string { return "sqlite" }

func (d *sqliteDialect) Rebind(query string) string {
	return query // SQLite uses ?
}

func (d *sqliteDialect) DateType() string    { return "TEXT" }
func (d *sqliteDialect) RealType() string    { return "REAL" }
func (d *sqliteDialect) VarcharType() string { return "TEXT" }

func (d *sqliteDialect) DateExpr(col string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col)
}

func (d *sqliteDialect) MonthExpr(col string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-01', %s)", col)
}

func (d *sqliteDialect) YearExpr(col string) string {
	return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col)
}

func (d *sqliteDialect) MonthNumExpr(col string) string {
	return fmt.Sprintf("CAST(strftime('%%m', %s) AS INTEGER)", col)
}

func (d *sqliteDialect) UpsertClause(conflictColumns []string, updateColumns []string) string {
	target := strings.Join(conflictColumns, ", ")
	if len(updateColumns) == 0 {
		return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", target)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s=excluded.%s", col, col)
	}
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", target, strings.Join(updates, ", "))
}

func (d *sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
}

// postgresDialect implements Dialect for PostgreSQL
type postgresDialect struct{}

func (d *postgresDialect) Name() string       { return "postgres" }
func (d *postgresDialect) DriverName() string { return "postgres" }

func (d *postgresDialect) Rebind(query string) string {
	// Convert ? placeholders to $1, $2, etc.
	var result strings.Builder
	idx := 1
	for _, ch := range query {
		if ch == '?' {
			result.WriteString(fmt.Sprintf("$%d", idx))
			idx++
		} else {
			result.WriteRune(ch)
		}
	}
	return result.String()
}

func (d *postgresDialect) DateType() string    { return "DATE" }
func (d *postgresDialect) RealType() string    { return "DOUBLE PRECISION" }
func (d *postgresDialect) VarcharType() string { return "VARCHAR(255)" }

func (d *postgresDialect) DateExpr(col string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
}

// MonthExpr truncates before formatting so timestamps near midnight do not
// drift into a neighbouring month.
func (d *postgresDialect) MonthExpr(col string) string {
	return fmt.Sprintf("TO_CHAR(DATE_TRUNC('month', %s), 'YYYY-MM-DD')", col)
}

func (d *postgresDialect) YearExpr(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(YEAR FROM %s) AS INTEGER)", col)
}

func (d *postgresDialect) MonthNumExpr(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(MONTH FROM %s) AS INTEGER)", col)
}

func (d *postgresDialect) UpsertClause(conflictColumns []string, updateColumns []string) string {
	target := strings.Join(conflictColumns, ", ")
	if len(updateColumns) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", target)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(updates, ", "))
}

func (d *postgresDialect) PragmaStatements() []string {
	return nil // PostgreSQL doesn't use pragmas
}

// mysqlDialect implements Dialect for MySQL
type mysqlDialect struct{}

func (d *mysqlDialect) Name() string       { return "mysql" }
func (d *mysqlDialect) DriverName() string { return "mysql" }

func (d *mysqlDialect) Rebind(query string) string {
	return query // MySQL uses ?
}

func (d *mysqlDialect) DateType() string    { return "DATE" }
func (d *mysqlDialect) RealType() string    { return "DOUBLE" }
func (d *mysqlDialect) VarcharType() string { return "VARCHAR(255)" }

func (d *mysqlDialect) DateExpr(col string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col)
}

func (d *mysqlDialect) MonthExpr(col string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-01')", col)
}

func (d *mysqlDialect) YearExpr(col string) string {
	return fmt.Sprintf("YEAR(%s)", col)
}

func (d *mysqlDialect) MonthNumExpr(col string) string {
	return fmt.Sprintf("MONTH(%s)", col)
}

func (d *mysqlDialect) UpsertClause(conflictColumns []string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		// No-op update on the first key column
		col := conflictColumns[0]
		return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", col, col)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}

func (d *mysqlDialect) PragmaStatements() []string {
	return nil // MySQL doesn't use pragmas
}
