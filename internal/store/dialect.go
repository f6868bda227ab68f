package store

import (
	"strconv"
	"strings"
)

// dialect captures the few places SQLite and Postgres SQL differ. Queries are written
// with ? placeholders and rebound per dialect.
type dialect struct {
	name       string
	dollarArgs bool
	greatest   string
}

var (
	sqliteDialect   = dialect{name: "sqlite3", greatest: "MAX"}
	postgresDialect = dialect{name: "postgres", dollarArgs: true, greatest: "GREATEST"}
)

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(query string) string {
	if !d.dollarArgs {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
