// internal/database/convert.go
package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Text converts an optional string; nil and empty both become NULL.
func Text(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// TextOf is Text for a plain string.
func TextOf(s string) pgtype.Text {
	return Text(&s)
}

// Timestamptz converts a time; the zero time becomes NULL.
func Timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func Int8(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: true}
}
