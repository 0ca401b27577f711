package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-resolve-collections/models"
	"github.com/aluiziolira/go-resolve-collections/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.ResolvedRecord) error
	Close() error
	Validate() error
}

// Pipeline serialises record appends through a single writer goroutine, so
// rows land in the order Process was called and never interleave.
type Pipeline struct {
	writer    OutputWriter
	requests  chan *appendRequest
	batchSize int
	logger    *slog.Logger

	wg        sync.WaitGroup
	startOnce sync.Once

	metrics *metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		writer:    writer,
		requests:  make(chan *appendRequest, 64),
		batchSize: 16,
		logger:    logger,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.worker()
	})
}

// appendRequest carries one Process call to the writer goroutine. done
// receives the outcome of the flush that included its records.
type appendRequest struct {
	records []*models.ResolvedRecord
	done    chan error
}

// Process appends records and blocks until the writer has flushed them.
// It returns the write error if that flush failed, and the first write
// error on every call after it. Invalid records are dropped, not reported.
func (p *Pipeline) Process(records ...*models.ResolvedRecord) error {
	req := &appendRequest{done: make(chan error, 1)}
	for _, record := range records {
		if record != nil {
			req.records = append(req.records, record)
		}
	}
	if len(req.records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	if err := p.enqueue(req); err != nil {
		if werr := p.Err(); werr != nil {
			return werr
		}
		return err
	}
	return <-req.done
}

// Close drains queued records, waits for the writer and prevents more
// submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.requests)
	})

	p.wg.Wait()
	// Only reached with requests left when the worker never started.
	for req := range p.requests {
		req.done <- ErrPipelineClosed
	}
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				written := metrics["written_records"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				p.logger.Info("pipeline progress",
					slog.Int64("written", written),
					slog.Int("validation_errors", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for req := range p.requests {
		pending := []*appendRequest{req}
		queued := len(req.records)

		// Take whatever is already queued, but never hold a request back
		// waiting for more.
	drain:
		for queued < p.batchSize {
			select {
			case next, ok := <-p.requests:
				if !ok {
					break drain
				}
				pending = append(pending, next)
				queued += len(next.records)
			default:
				break drain
			}
		}

		err := p.Err()
		if err == nil {
			err = p.flush(pending)
		}
		for _, r := range pending {
			r.done <- err
		}
	}
}

// flush writes the valid records of pending as one batch. A write failure
// becomes the pipeline's sticky error.
func (p *Pipeline) flush(pending []*appendRequest) error {
	batch := make([]*models.ResolvedRecord, 0, p.batchSize)
	for _, req := range pending {
		for _, record := range req.records {
			if prepared := p.prepare(record); prepared != nil {
				batch = append(batch, prepared)
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}

	if err := p.writer.Write(batch); err != nil {
		p.setErr(fmt.Errorf("append records: %w", err))
		p.logger.Error("append failed", slog.Int("count", len(batch)), slog.Any("error", err))
		return p.Err()
	}
	p.metrics.addWritten(len(batch))
	p.logger.Debug("records written", slog.Int("count", len(batch)))
	return nil
}

func (p *Pipeline) prepare(record *models.ResolvedRecord) *models.ResolvedRecord {
	if err := parser.ValidateRecord(record); err != nil {
		p.metrics.addValidation("invalid_record")
		p.logger.Warn("dropping invalid record", slog.Any("error", err))
		return nil
	}
	return record
}

func (p *Pipeline) enqueue(req *appendRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.requests <- req:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	written    int64
	validation map[string]int
}

func newMetrics() *metrics {
	return &metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addWritten(n int) {
	m.mu.Lock()
	m.written += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"written_records":   m.written,
		"validation_errors": copyValidation,
	}
}
