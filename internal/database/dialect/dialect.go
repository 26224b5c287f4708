// Package dialect selects DDL column affinities by database URL scheme.
// Every table in this repository is created by the application on startup;
// the only dialect difference that matters is how a 64-bit integer column
// is declared: SQLite's type affinity rules fold any integer declaration
// without the literal token "INTEGER" as a rowid alias, so BIGINT must
// never be used there, while every networked dialect this repo targets
// (Postgres) wants BIGINT for a true 64-bit column.
package dialect

import "strings"

// Dialect names a DDL-generation target.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Detect sniffs connString's scheme and returns the matching Dialect.
// Defaults to Postgres for any scheme it does not recognize as a SQLite
// file reference, since that is this repository's primary deployment
// target.
func Detect(connString string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(connString))
	switch {
	case strings.HasPrefix(lower, "sqlite://"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return SQLite
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	default:
		return Postgres
	}
}

// BigIntColumn returns the column-type token for a 64-bit integer column
// under d.
func BigIntColumn(d Dialect) string {
	if d == SQLite {
		return "INTEGER"
	}
	return "BIGINT"
}

// SerialColumn returns the column-type token for a surrogate-key column
// that auto-increments under d.
func SerialColumn(d Dialect) string {
	if d == SQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

// TimestampColumn returns the column-type token for a timestamp column
// under d.
func TimestampColumn(d Dialect) string {
	if d == SQLite {
		return "TEXT"
	}
	return "TIMESTAMPTZ"
}

// DecimalColumn returns the column-type token used for fixed-point price
// values under d. Prices are stored as scaled integers (hundredths of a
// currency unit), so this is a BIGINT/INTEGER affinity too, not a native
// DECIMAL type — kept distinct from BigIntColumn so call sites document
// intent even though the underlying token matches today.
func DecimalColumn(d Dialect) string {
	return BigIntColumn(d)
}

// Resolve returns override's Dialect if set, otherwise sniffs connString
// via Detect. Lets an operator force a dialect (e.g. for local SQLite
// testing against a Postgres-shaped connection string) without changing
// the URL.
func Resolve(connString, override string) Dialect {
	switch Dialect(strings.ToLower(strings.TrimSpace(override))) {
	case Postgres:
		return Postgres
	case SQLite:
		return SQLite
	default:
		return Detect(connString)
	}
}
