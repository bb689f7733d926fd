// Package engine implements the batch refresh loop: it partitions a symbol
// list into rate-limited batches, fetches each batch from the unified
// source, writes results to the price store, and aggregates per-symbol
// outcomes with bounded retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"InvestTrack/internal/model"
	"InvestTrack/internal/source"
	"InvestTrack/internal/store"
)

// ErrValidation marks malformed caller input, rejected before any network
// activity.
var ErrValidation = errors.New("invalid refresh request")

// errBatchTimeout is recorded verbatim on every symbol of a batch whose
// fetch lost the timeout race.
var errBatchTimeout = errors.New("Batch timeout")

// priceNotAvailable is the business outcome for a symbol the upstream
// simply did not return. Not an error value: the batch itself succeeded.
const priceNotAvailable = "Price not available"

// MaxSymbolsPerRequest bounds one refresh operation.
const MaxSymbolsPerRequest = 500

// Options tune one engine instance. Zero values fall back to defaults.
type Options struct {
	BatchSize    int           // symbols per upstream call (default 10)
	BatchTimeout time.Duration // per-batch fetch deadline (default 30s)
	BatchDelay   time.Duration // pause between batches (default 1s)
	MaxAttempts  int           // attempts per failing symbol (default 3)
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 30 * time.Second
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
}

// RunOptions override select engine defaults for a single run. Zero values
// keep the configured engine option.
type RunOptions struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// ProgressFunc receives live progress after every batch.
type ProgressFunc func(p model.RefreshProgress)

// Engine runs batch refreshes against a source and a store.
type Engine struct {
	src  source.Source
	st   store.Store
	opts Options
}

func New(src source.Source, st store.Store, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{src: src, st: st, opts: opts}
}

// Run refreshes the given symbols. The returned result always satisfies
// success + failed == len(symbols). Cancellation is observed only at batch
// boundaries; Run then returns the partial result together with ctx.Err().
// Non-zero RunOptions fields override the engine's defaults for this run
// only.
func (e *Engine) Run(ctx context.Context, symbols []string, run RunOptions, onProgress ProgressFunc) (*model.RefreshResult, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty symbol list", ErrValidation)
	}
	if len(symbols) > MaxSymbolsPerRequest {
		return nil, fmt.Errorf("%w: %d symbols exceeds limit of %d", ErrValidation, len(symbols), MaxSymbolsPerRequest)
	}

	// Per-run overrides act on a copy; the engine's configuration is
	// untouched for concurrent and subsequent runs.
	eng := *e
	if run.BatchSize > 0 {
		eng.opts.BatchSize = run.BatchSize
	}
	if run.BatchTimeout > 0 {
		eng.opts.BatchTimeout = run.BatchTimeout
	}
	return eng.run(ctx, symbols, onProgress)
}

func (e *Engine) run(ctx context.Context, symbols []string, onProgress ProgressFunc) (*model.RefreshResult, error) {
	start := time.Now()
	outcomes := make(map[string]model.SymbolOutcome, len(symbols))

	// Duplicates collapse into one fetch but keep one outcome per input.
	pending := dedup(symbols)

	cancelled := false
	for attempt := 1; attempt <= e.opts.MaxAttempts && len(pending) > 0 && !cancelled; attempt++ {
		if attempt > 1 {
			log.Printf("[INFO] refresh attempt %d/%d for %d failed symbol(s)", attempt, e.opts.MaxAttempts, len(pending))
			if !e.sleep(ctx) {
				cancelled = true
				break
			}
		}
		pending, cancelled = e.runPass(ctx, pending, len(symbols), outcomes, onProgress)
	}

	result := collect(symbols, outcomes, time.Since(start))
	if cancelled {
		return result, ctx.Err()
	}
	return result, nil
}

// runPass processes one full pass over the pending symbols and returns the
// symbols that still failed, plus whether cancellation was observed.
func (e *Engine) runPass(ctx context.Context, pending []string, total int, outcomes map[string]model.SymbolOutcome, onProgress ProgressFunc) ([]string, bool) {
	var failed []string

	batches := chunk(pending, e.opts.BatchSize)
	for i, batch := range batches {
		// Cancellation is polled here, never mid-batch.
		if ctx.Err() != nil {
			return append(failed, flatten(batches[i:])...), true
		}

		quotes, err := e.fetchBatch(ctx, batch)
		now := time.Now()
		for _, sym := range batch {
			var out model.SymbolOutcome
			switch {
			case err != nil:
				out = model.SymbolOutcome{Symbol: sym, Error: err.Error(), Timestamp: now}
			default:
				q, ok := quotes[sym]
				if !ok {
					out = model.SymbolOutcome{Symbol: sym, Error: priceNotAvailable, Timestamp: now}
				} else {
					out = e.storeQuote(sym, q)
				}
			}
			if !out.Success {
				failed = append(failed, sym)
			}
			outcomes[sym] = out
		}

		if onProgress != nil {
			onProgress(progressOf(total, outcomes, batch[len(batch)-1]))
		}

		// Inter-batch delay to respect upstream rate limits.
		if i < len(batches)-1 {
			if !e.sleep(ctx) {
				return append(failed, flatten(batches[i+1:])...), true
			}
		}
	}
	return failed, false
}

// fetchBatch races the source call against the batch timeout. The timer is
// deliberately not derived from ctx: an in-flight call is never preempted
// by cancellation, only abandoned when it loses the race.
func (e *Engine) fetchBatch(ctx context.Context, batch []string) (map[string]source.Quote, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.BatchTimeout)
	defer cancel()

	type fetched struct {
		quotes map[string]source.Quote
		err    error
	}
	ch := make(chan fetched, 1)
	go func() {
		q, err := e.src.FetchMany(fctx, batch)
		ch <- fetched{q, err}
	}()

	select {
	case r := <-ch:
		return r.quotes, r.err
	case <-fctx.Done():
		// Whatever the abandoned call eventually returns is discarded.
		return nil, errBatchTimeout
	}
}

// storeQuote persists one fetched price. A cache-write failure leaves the
// outcome successful with a warning: the price was obtained, only caching
// failed. A history-write failure is logged and never surfaces.
func (e *Engine) storeQuote(sym string, q source.Quote) model.SymbolOutcome {
	now := time.Now()
	out := model.SymbolOutcome{
		Symbol:    sym,
		Success:   true,
		Price:     &q.Price,
		Source:    q.Source,
		Timestamp: now,
	}
	if err := e.st.Upsert(sym, q.Price, q.Source); err != nil {
		log.Printf("[WARN] cache write failed for %s: %v", sym, err)
		out.Error = fmt.Sprintf("cache write failed: %v", err)
		return out
	}
	if err := e.st.AppendHistory(sym, q.Price, q.Source, now); err != nil {
		log.Printf("[WARN] history append failed for %s: %v", sym, err)
	}
	return out
}

// sleep pauses for the inter-batch delay; false means ctx was cancelled.
func (e *Engine) sleep(ctx context.Context) bool {
	t := time.NewTimer(e.opts.BatchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func progressOf(total int, outcomes map[string]model.SymbolOutcome, current string) model.RefreshProgress {
	p := model.RefreshProgress{Total: total, CurrentSymbol: current}
	for _, out := range outcomes {
		p.Completed++
		if !out.Success {
			p.Failed++
		}
	}
	if total > 0 {
		p.Percentage = float64(p.Completed) / float64(total) * 100
	}
	return p
}

// collect materializes outcomes in input order. Symbols a cancelled run
// never reached are reported as failed so counts still add up.
func collect(symbols []string, outcomes map[string]model.SymbolOutcome, dur time.Duration) *model.RefreshResult {
	result := &model.RefreshResult{
		Duration: dur,
		Outcomes: make([]model.SymbolOutcome, 0, len(symbols)),
	}
	now := time.Now()
	for _, sym := range symbols {
		out, ok := outcomes[sym]
		if !ok {
			out = model.SymbolOutcome{Symbol: sym, Error: "Refresh cancelled", Timestamp: now}
		}
		if out.Success {
			result.Success++
		} else {
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, out)
	}
	return result
}

func dedup(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func chunk(in []string, size int) [][]string {
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j])
	}
	return out
}

func flatten(batches [][]string) []string {
	var out []string
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
