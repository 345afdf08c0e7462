package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-manga-bookmarks/models"
)

// DualWriter outputs to both CSV and JSON formats simultaneously
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a new dual writer for both CSV and JSON output
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// JSONPath derives the JSONL companion of a CSV output path.
func JSONPath(csvFilename string) string {
	return strings.TrimSuffix(csvFilename, ".csv") + ".jsonl"
}

// Write writes records to both formats
func (dw *DualWriter) Write(records []*models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(records); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	if err := dw.jsonWriter.Write(records); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}

// Close closes both writers
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both outputs
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv validation: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("json validation: %w", err))
	}
	return errors.Join(errs...)
}
