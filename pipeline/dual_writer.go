package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-resolve-collections/models"
)

// MultiWriter fans records out to several writers in order.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter combines writers. The first writer is the primary store.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter writes the pipe store and a JSONL mirror.
func NewDualWriter(pipeFilename, jsonFilename string) (*MultiWriter, error) {
	pipeWriter, err := NewPipeWriter(pipeFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe writer: %w", err)
	}

	jsonWriter, err := NewJSONLWriter(jsonFilename)
	if err != nil {
		pipeWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return NewMultiWriter(pipeWriter, jsonWriter), nil
}

// Write writes records to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(records []*models.ResolvedRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
