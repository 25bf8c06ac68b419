package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// CSVWriter writes result tables below a base directory
type CSVWriter struct {
	baseDir string
}

// NewCSVWriter creates a CSV writer that resolves relative paths against baseDir
func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{baseDir: baseDir}
}

// WriteTable writes a header line and every record, replacing any existing file
func (w *CSVWriter) WriteTable(filePath string, headers []string, records [][]string) error {
	s, err := w.Stream(filePath, headers)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := s.Write(rec); err != nil {
			s.file.Close()
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return s.Close()
}

// Stream creates filePath and its directory and writes headers when given.
// Records are then written one at a time; the caller must Close the stream.
func (w *CSVWriter) Stream(filePath string, headers []string) (*Stream, error) {
	path := filePath
	if !filepath.IsAbs(path) && w.baseDir != "" {
		path = filepath.Join(w.baseDir, path)
	}
	slog.Debug("Opening CSV table", slog.String("path", path), slog.Int("columns", len(headers)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	s := &Stream{file: file, csv: csv.NewWriter(file)}
	if len(headers) > 0 {
		if err := s.csv.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return s, nil
}

// Stream is an open CSV table
type Stream struct {
	file *os.File
	csv  *csv.Writer
}

// Write appends one record
func (s *Stream) Write(record []string) error {
	return s.csv.Write(record)
}

// Close flushes buffered records and closes the file
func (s *Stream) Close() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
