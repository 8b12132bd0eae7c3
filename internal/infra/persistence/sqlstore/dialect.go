// Package sqlstore implements the domain persistence interfaces on top of
// database/sql. Backend packages (sqlite, postgres) supply the schema and a
// Dialect describing placeholder syntax, error classification, and the
// single-call aggregation queries.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the backend specific pieces of SQL generation.
type Dialect struct {
	// Name is a short identifier used in error messages ("sqlite", "postgres").
	Name string
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
	// IsUniqueViolation classifies driver errors raised by unique constraints.
	IsUniqueViolation func(error) bool
	// StrategyDetailQuery takes the strategy id as its only argument and returns
	// one JSON document column (NULL when the strategy does not exist).
	StrategyDetailQuery string
	// MapStrategiesQuery takes the map id as its only argument and returns one
	// JSON array column (NULL when the map does not exist).
	MapStrategiesQuery string
}

// Rebind rewrites ? placeholders into the dialect's syntax.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) uniqueViolation(err error) bool {
	return err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

// likePattern builds a case-insensitive substring pattern escaping LIKE
// wildcards with a backslash.
func likePattern(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
