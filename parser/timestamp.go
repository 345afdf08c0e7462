package parser

import (
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical last-modified form. Values carry no zone
// and are read and written as UTC.
const TimestampLayout = "2006-01-02T15:04:05"

// FormatMicros renders microseconds since the Unix epoch in TimestampLayout.
func FormatMicros(micros int64) string {
	return time.UnixMicro(micros).UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical last-modified value.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, &TimestampError{Value: value, Err: err}
	}
	return t, nil
}

// EpochMicros converts a canonical last-modified value back to microseconds.
func EpochMicros(value string) (int64, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return 0, err
	}
	return t.UnixMicro(), nil
}

// EpochMillis converts a canonical last-modified value back to milliseconds.
func EpochMillis(value string) (int64, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// ParseChapter parses a chapter number such as "12" or "12.1". The
// substituted comma is accepted as a decimal separator.
func ParseChapter(value string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), CommaSubstitute, ".")
	n, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, &ChapterError{Value: value, Err: err}
	}
	return n, nil
}
