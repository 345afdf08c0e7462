package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
)

// TimestampError reports a last-modified value that is not in TimestampLayout.
type TimestampError struct {
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Errorf("timestamp %q: %w", e.Value, e.Err).Error()
}

func (e *TimestampError) Unwrap() error {
	return e.Err
}

// ChapterError reports a chapter value that is not a number.
type ChapterError struct {
	Value string
	Err   error
}

func (e *ChapterError) Error() string {
	return fmt.Errorf("chapter %q: %w", e.Value, e.Err).Error()
}

func (e *ChapterError) Unwrap() error {
	return e.Err
}

// RowError wraps a failure to decode one snapshot row.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Errorf("row %d: %w", e.Line, e.Err).Error()
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ErrColumnCount is returned for rows that are neither 6 nor 8 columns wide.
var ErrColumnCount = errors.New("unexpected column count")

// ErrEmptyTitle is returned for rows without a title.
var ErrEmptyTitle = errors.New("empty title")

// ErrorKind labels an error for metrics and logs.
func ErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var ts *TimestampError
	if errors.As(err, &ts) {
		return "timestamp"
	}
	var ch *ChapterError
	if errors.As(err, &ch) {
		return "chapter"
	}
	if errors.Is(err, ErrColumnCount) {
		return "column_count"
	}
	if errors.Is(err, ErrEmptyTitle) {
		return "empty_title"
	}
	var syntax *csv.ParseError
	if errors.As(err, &syntax) {
		return "csv_syntax"
	}
	return "other"
}
