package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-resolve-collections/models"
)

// Delimiter separates fields in the output store.
const Delimiter = '|'

// PipeWriter appends records to a pipe-delimited file. The file and its
// header row are created on the first write if the file does not exist or
// is empty; existing rows are never rewritten.
type PipeWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewPipeWriter prepares a writer for filename without touching the file.
func NewPipeWriter(filename string) (*PipeWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &PipeWriter{path: filename}, nil
}

func (pw *PipeWriter) open() error {
	f, err := os.OpenFile(pw.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat output file: %w", err)
	}

	writer := csv.NewWriter(f)
	writer.Comma = Delimiter
	if info.Size() == 0 {
		if err := writer.Write(models.RecordHeader()); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return fmt.Errorf("flush header: %w", err)
		}
	}

	pw.file = f
	pw.writer = writer
	return nil
}

// Write appends one row per record.
func (pw *PipeWriter) Write(records []*models.ResolvedRecord) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.file == nil {
		if err := pw.open(); err != nil {
			return err
		}
	}

	for _, record := range records {
		if err := pw.writer.Write(record.Row()); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	pw.writer.Flush()
	if err := pw.writer.Error(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle, if one was opened.
func (pw *PipeWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.file == nil {
		return nil
	}
	pw.writer.Flush()
	if err := pw.writer.Error(); err != nil {
		return fmt.Errorf("flush pipe writer: %w", err)
	}
	err := pw.file.Close()
	pw.file = nil
	return err
}

// Validate ensures an existing output file starts with the expected header.
func (pw *PipeWriter) Validate() error {
	f, err := os.Open(pw.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil
	}
	want := strings.Join(models.RecordHeader(), string(Delimiter))
	if got := strings.TrimRight(line, "\r\n"); got != want {
		return fmt.Errorf("output file %s has header %q, want %q", pw.path, got, want)
	}
	return nil
}

// JSONLWriter appends newline-delimited JSON records.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter opens filename for appending, creating it if needed.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONLWriter) Write(records []*models.ResolvedRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file is still reachable.
func (jw *JSONLWriter) Validate() error {
	if _, err := jw.file.Stat(); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
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
