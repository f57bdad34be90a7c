package db

import (
	"fmt"
	"strconv"
	"time"
)

// Drivers disagree on scan types: modernc returns int64/string/time.Time,
// pgx returns int32/int64/string/time.Time. These helpers fold them.

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	}
	return 0
}

func asNullInt64(v any) *int64 {
	if v == nil {
		return nil
	}
	n := asInt64(v)
	return &n
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.UTC().Format(sqliteTimeLayout)
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	case []byte:
		return asTime(string(t))
	}
	return time.Time{}
}

func asNullTime(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
