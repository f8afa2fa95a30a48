package sqlite

import (
	"database/sql"
	"time"
)

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// unixToTime converts stored unix milliseconds to UTC time
func unixToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// timeToUnix converts a time to unix milliseconds, using now for the zero time
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
