package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/aluiziolira/go-manga-bookmarks/models"
	"github.com/aluiziolira/go-manga-bookmarks/parser"
	"github.com/aluiziolira/go-manga-bookmarks/romanize"
)

// SnapshotResult holds the rows of a prior snapshot that could be rebuilt
// and the rows that were skipped.
type SnapshotResult struct {
	Records []*models.Record
	Skipped []*parser.RowError
}

// ReadSnapshot parses a snapshot written by CSVWriter, or its six-column
// predecessor. Bad rows are logged and skipped; only a failing stream is
// fatal.
func ReadSnapshot(r io.Reader, rz romanize.Romanizer) (*SnapshotResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	res := &SnapshotResult{}
	skip := func(line int, err error) {
		rowErr := &parser.RowError{Line: line, Err: err}
		res.Skipped = append(res.Skipped, rowErr)
		slog.Warn("skipping snapshot row",
			slog.Int("line", line),
			slog.String("kind", parser.ErrorKind(err)),
			slog.Any("error", err),
		)
	}

	for first := true; ; first = false {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skip(parseErr.StartLine, err)
				continue
			}
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if first && isHeader(row) {
			continue
		}
		line, _ := reader.FieldPos(0)

		record, err := recordFromRow(row, rz)
		if err != nil {
			skip(line, err)
			continue
		}
		res.Records = append(res.Records, record)
	}
	return res, nil
}

func isHeader(row []string) bool {
	switch len(row) {
	case len(Columns):
		return slices.Equal(row, Columns)
	case legacyColumns:
		return slices.Equal(row, Columns[:legacyColumns])
	}
	return false
}

func recordFromRow(row []string, rz romanize.Romanizer) (*models.Record, error) {
	if len(row) != len(Columns) && len(row) != legacyColumns {
		return nil, fmt.Errorf("%w: got %d", parser.ErrColumnCount, len(row))
	}

	f := models.Fields{
		Title:          row[0],
		URLWithChapter: row[1],
		Chapter:        row[2],
		LastModified:   row[3],
		Notes:          row[4],
		Tags:           parser.SplitTags(row[5]),
	}
	if len(row) == len(Columns) {
		f.BaseURL = row[6]
		f.RomanizedTitle = row[7]
	}

	record, err := models.FromFields(f, rz)
	if err != nil {
		return nil, err
	}
	if record.LastModified() != "" {
		if _, err := parser.ParseTimestamp(record.LastModified()); err != nil {
			return nil, err
		}
	}
	return record, nil
}
