package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-manga-bookmarks/models"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("pipeline: writer closed")

// Columns is the snapshot column order. Legacy snapshots carry only the
// first six.
var Columns = []string{"title", "url_with_chapter", "chapter", "last_modified", "notes", "tags", "url", "romanized_title"}

const legacyColumns = 6

// output is the shared plumbing of the file and stream writers.
type output struct {
	file    *os.File
	buf     *bufio.Writer
	written int64
	closed  bool
}

func newFileOutput(filename string) (*output, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return &output{file: f, buf: bufio.NewWriter(f)}, nil
}

func newStreamOutput(w io.Writer) *output {
	return &output{buf: bufio.NewWriter(w)}
}

func (o *output) Write(p []byte) (int, error) {
	n, err := o.buf.Write(p)
	o.written += int64(n)
	return n, err
}

func (o *output) close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.buf.Flush(); err != nil {
		if o.file != nil {
			o.file.Close()
		}
		return fmt.Errorf("flush output: %w", err)
	}
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}

func (o *output) validate(kind string) error {
	if o.file != nil {
		info, err := o.file.Stat()
		if err == nil && info.Size() > 0 {
			return nil
		}
		if err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("stat %s file: %w", kind, err)
		}
	}
	if o.written <= 0 {
		return fmt.Errorf("%s output is empty", kind)
	}
	return nil
}

// CSVWriter writes records as snapshot rows: eight columns, every field
// double-quoted, no header.
type CSVWriter struct {
	out *output
	mu  sync.Mutex
}

// NewCSVWriter creates filename and its directory.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := newFileOutput(filename)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{out: out}, nil
}

// NewCSVStreamWriter writes to w, typically stdout. Close flushes but does
// not close w.
func NewCSVStreamWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{out: newStreamOutput(w)}
}

// Write appends records in order.
func (cw *CSVWriter) Write(records []*models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.out.closed {
		return ErrWriterClosed
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		if err := writeQuotedRow(cw.out, rowOf(r)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	if err := cw.out.buf.Flush(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.close()
}

// Validate ensures something was written.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.validate("csv")
}

func rowOf(r *models.Record) []string {
	f := r.Fields()
	return []string{
		f.Title,
		f.URLWithChapter,
		f.Chapter,
		f.LastModified,
		f.Notes,
		r.TagColumn(),
		f.BaseURL,
		f.RomanizedTitle,
	}
}

var quoteEscaper = strings.NewReplacer(`"`, `""`)

// writeQuotedRow writes one RFC 4180 row with every field quoted.
func writeQuotedRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(quoteEscaper.Replace(field))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	out     *output
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates filename and its directory.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := newFileOutput(filename)
	if err != nil {
		return nil, err
	}
	return newJSONWriter(out), nil
}

// NewJSONStreamWriter writes to w. Close flushes but does not close w.
func NewJSONStreamWriter(w io.Writer) *JSONWriter {
	return newJSONWriter(newStreamOutput(w))
}

func newJSONWriter(out *output) *JSONWriter {
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{out: out, encoder: encoder}
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []*models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.out.closed {
		return ErrWriterClosed
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		if err := jw.encoder.Encode(r.Fields()); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.out.buf.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.close()
}

// Validate ensures something was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.validate("json")
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
