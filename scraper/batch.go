package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aluiziolira/go-resolve-collections/browser"
	"github.com/aluiziolira/go-resolve-collections/models"
)

// RecordSink receives resolved records. pipeline.Pipeline satisfies it.
type RecordSink interface {
	Process(records ...*models.ResolvedRecord) error
}

// BatchOptions configures a Batch.
type BatchOptions struct {
	Factory  browser.Factory
	Resolver *Resolver
	Sink     RecordSink
	Session  browser.SessionOptions
	Workers  int

	// Proxies, when set, quarantines proxies whose sessions fail.
	Proxies *browser.Pool
	Metrics *Metrics
	Logger  *slog.Logger
}

// Batch resolves a list of addresses with a pool of workers, each owning
// one browser session per address.
type Batch struct {
	factory  browser.Factory
	resolver *Resolver
	sink     RecordSink
	session  browser.SessionOptions
	workers  int
	proxies  *browser.Pool
	metrics  *Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	result *models.RunResult
}

// NewBatch validates opts and builds a Batch.
func NewBatch(opts BatchOptions) (*Batch, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("batch requires a session factory")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("batch requires a resolver")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("batch requires a record sink")
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		factory:  opts.Factory,
		resolver: opts.Resolver,
		sink:     opts.Sink,
		session:  opts.Session,
		workers:  opts.Workers,
		proxies:  opts.Proxies,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// Run resolves addresses and hands each record to the sink. Per-address
// failures are counted and logged; a sink failure or cancellation of ctx
// stops the batch and is returned alongside the partial result.
func (b *Batch) Run(ctx context.Context, addresses []models.Address) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	b.result = &models.RunResult{
		StartTime:    time.Now(),
		TotalCount:   len(addresses),
		SkipsByStage: make(map[string]int),
		ErrorsByType: make(map[string]int),
	}
	b.mu.Unlock()
	retriesBefore := b.resolver.TotalRetries()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	workers := min(b.workers, len(addresses))
	jobs := make(chan models.Address)

	var wg sync.WaitGroup
	for id := 1; id <= workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for address := range jobs {
				b.handle(runCtx, cancel, id, address)
			}
		}(id)
	}

	b.logger.Info("batch started", slog.Int("addresses", len(addresses)), slog.Int("workers", workers))

feed:
	for _, address := range addresses {
		select {
		case <-runCtx.Done():
			break feed
		case jobs <- address:
		}
	}
	close(jobs)
	wg.Wait()

	b.mu.Lock()
	result := b.result
	b.result = nil
	b.mu.Unlock()
	result.EndTime = time.Now()
	result.RetryCount = b.resolver.TotalRetries() - retriesBefore
	result.CanceledCount = result.TotalCount - result.ResolvedCount - result.SkippedCount - result.FailedCount
	if result.CanceledCount > 0 {
		b.metrics.IncAddressBy("canceled", result.CanceledCount)
		b.logger.Info("batch stopped early", slog.Int("canceled", result.CanceledCount))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if cause := context.Cause(runCtx); cause != nil {
		return result, cause
	}
	return result, nil
}

func (b *Batch) handle(ctx context.Context, cancel context.CancelCauseFunc, worker int, address models.Address) {
	if ctx.Err() != nil {
		return
	}
	logger := b.logger.With(slog.Int("worker", worker), slog.String("address", string(address)))

	record, err := b.resolveOne(ctx, logger, address)
	switch {
	case err == nil:
		if perr := b.sink.Process(record); perr != nil {
			b.metrics.IncError("write")
			b.metrics.IncAddress("failed")
			b.tally(func(r *models.RunResult) {
				r.FailedCount++
				r.ErrorsByType["write"]++
				r.FailedAddresses = append(r.FailedAddresses, string(address))
			})
			logger.Error("saving record failed", slog.Any("error", perr))
			cancel(fmt.Errorf("save record for %s: %w", address, perr))
			return
		}
		b.metrics.IncRecords()
		b.metrics.IncAddress("resolved")
		b.tally(func(r *models.RunResult) { r.ResolvedCount++ })
		logger.Info("record saved", slog.String("asset_number", record.AssetNumber))

	case ctx.Err() != nil:
		logger.Info("address abandoned on shutdown", slog.Any("error", err))

	default:
		var skip *SkipError
		if errors.As(err, &skip) {
			b.metrics.IncSkip(skip.Stage)
			b.metrics.IncAddress("skipped")
			b.tally(func(r *models.RunResult) {
				r.SkippedCount++
				r.SkipsByStage[skip.Stage]++
			})
			logger.Warn("address skipped", slog.String("stage", skip.Stage), slog.Any("error", skip.Err))
			return
		}

		category := errorTypeLabel(err)
		b.metrics.IncError(category)
		b.metrics.IncAddress("failed")
		b.tally(func(r *models.RunResult) {
			r.FailedCount++
			r.ErrorsByType[category]++
			r.FailedAddresses = append(r.FailedAddresses, string(address))
		})
		attrs := []any{slog.String("category", category), slog.Any("error", err)}
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			attrs = append(attrs, slog.String("stack", string(panicErr.Stack)))
		}
		logger.Error("address failed", attrs...)
	}
}

// resolveOne owns the session for a single address. The session is closed
// on every path, including panics inside the resolver.
func (b *Batch) resolveOne(ctx context.Context, logger *slog.Logger, address models.Address) (record *models.ResolvedRecord, err error) {
	session, err := b.factory.NewSession(ctx, b.session)
	if err != nil {
		var sessionErr *browser.SessionError
		if errors.As(err, &sessionErr) && sessionErr.Proxy != "" {
			b.quarantine(logger, sessionErr.Proxy)
		}
		return nil, err
	}
	b.metrics.SessionOpened()

	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("closing session failed", slog.Any("error", cerr))
		}
		b.metrics.SessionClosed()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			record = nil
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	record, err = b.resolver.Resolve(ctx, session, address)
	var navErr *NavigationError
	if errors.As(err, &navErr) && session.Proxy() != "" {
		b.quarantine(logger, session.Proxy())
	}
	return record, err
}

func (b *Batch) quarantine(logger *slog.Logger, proxy string) {
	if b.proxies == nil {
		return
	}
	b.proxies.Quarantine(proxy)
	logger.Warn("proxy quarantined", slog.String("proxy", proxy))
}

func (b *Batch) tally(update func(*models.RunResult)) {
	b.mu.Lock()
	update(b.result)
	b.mu.Unlock()
}
