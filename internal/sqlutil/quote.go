// Package sqlutil provides SQL identifier helpers for gopromote.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteMySQL quotes a MySQL identifier (schema, table, column) with
// backticks, doubling any embedded backticks.
func QuoteMySQL(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteQualified quotes a schema-qualified MySQL table reference.
// Example: ("helpdesk_v2", "tickets") -> "`helpdesk_v2`.`tickets`"
func QuoteQualified(schema, table string) string {
	return QuoteMySQL(schema) + "." + QuoteMySQL(table)
}

// QuoteSQLite quotes a SQLite identifier with double quotes, doubling any
// embedded quotes.
func QuoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validIdentifierRegex restricts identifiers to alphanumerics and
// underscores. Table and column names flow into SQL text, so this is a
// defense-in-depth measure against injection via config or source schema.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks if a name is a safe identifier.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}

// ValidateIdentifiers checks every name and returns an error for the first
// invalid one.
func ValidateIdentifiers(names ...string) error {
	for _, n := range names {
		if !IsValidIdentifier(n) {
			return &InvalidIdentifierError{Name: n}
		}
	}
	return nil
}
