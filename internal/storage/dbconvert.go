package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dbTimeLayout is fixed-width so that lexical order in TEXT columns matches
// chronological order.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

// formatDBTime converts a time to its UTC column representation.
func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

// parseDBTime parses a column value written by formatDBTime. RFC 3339 input
// is accepted for rows written by hand.
func parseDBTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dbTimeLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
		}
	}
	return t.UTC(), nil
}

// gradeToNull converts an optional grade to a nullable column value.
func gradeToNull(grade *float64) sql.NullFloat64 {
	if grade == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *grade, Valid: true}
}

// gradeFromNull converts a nullable column value to an optional grade.
func gradeFromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	grade := n.Float64
	return &grade
}

// rebind rewrites '?' placeholders as $1, $2, ... for dialects that need
// numbered parameters. Queries in this package never contain a literal '?'.
func rebind(query string, numbered bool) string {
	if !numbered {
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

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
