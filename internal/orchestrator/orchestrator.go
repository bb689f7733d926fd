// Package orchestrator exposes refresh operations as asynchronous jobs
// identified by an opaque request id. Callers poll the status map rather
// than holding a future; the contract survives process and request
// boundaries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"InvestTrack/internal/engine"
	"InvestTrack/internal/model"

	"github.com/google/uuid"
)

// Runner is the refresh engine as the orchestrator sees it.
type Runner interface {
	Run(ctx context.Context, symbols []string, opts engine.RunOptions, onProgress engine.ProgressFunc) (*model.RefreshResult, error)
}

// UniverseFunc supplies the default symbol set: every symbol currently
// tracked by any investment. Provided by the caller, not the engine.
type UniverseFunc func() []string

// FreshFunc reports whether the cached price for a symbol is still fresh.
// Provided by the caller; nil disables freshness filtering.
type FreshFunc func(symbol string) bool

// StartOptions tune one refresh operation.
type StartOptions struct {
	Symbols      []string      // nil means the full tracked universe
	ForceRefresh bool          // refresh even symbols whose cache entry is fresh
	BatchSize    int           // per-run override, 0 keeps the engine default
	BatchTimeout time.Duration // per-run override, 0 keeps the engine default
	Scheduled    bool          // set by the background scheduler; enforces single-flight
}

const (
	// startDelay separates registration from execution so a status poll
	// immediately after start observes pending.
	startDelay = 50 * time.Millisecond

	retention = time.Hour

	quickPollInterval = 500 * time.Millisecond
	quickMaxPolls     = 600 // 5 minutes
)

// ErrQuickRefreshTimeout is returned when quickRefresh gives up waiting;
// the underlying operation is cancelled before returning.
var ErrQuickRefreshTimeout = errors.New("refresh did not complete in time")

// Orchestrator tracks every active and recently-finished refresh.
type Orchestrator struct {
	runner   Runner
	universe UniverseFunc
	fresh    FreshFunc

	mu          sync.Mutex
	statuses    map[string]*model.RefreshStatus
	cancels     map[string]context.CancelFunc
	scheduledID string // active scheduled run, empty when none

	pollInterval time.Duration // quickRefresh poll cadence, fixed in production
}

func New(runner Runner, universe UniverseFunc, fresh FreshFunc) *Orchestrator {
	return &Orchestrator{
		runner:       runner,
		universe:     universe,
		fresh:        fresh,
		statuses:     make(map[string]*model.RefreshStatus),
		cancels:      make(map[string]context.CancelFunc),
		pollInterval: quickPollInterval,
	}
}

// StartRefresh registers a pending operation and schedules the work
// asynchronously, returning its request id immediately. Unless ForceRefresh
// is set, symbols whose cached price is still fresh are skipped; when every
// requested symbol is fresh the operation completes immediately with
// nothing to do.
func (o *Orchestrator) StartRefresh(opts StartOptions) (string, error) {
	symbols := opts.Symbols
	if len(symbols) == 0 && o.universe != nil {
		symbols = o.universe()
	}
	if len(symbols) == 0 {
		return "", fmt.Errorf("%w: no symbols to refresh", engine.ErrValidation)
	}
	if len(symbols) > engine.MaxSymbolsPerRequest {
		return "", fmt.Errorf("%w: %d symbols exceeds limit of %d", engine.ErrValidation, len(symbols), engine.MaxSymbolsPerRequest)
	}
	if !opts.ForceRefresh && o.fresh != nil {
		symbols = o.skipFresh(symbols)
	}

	o.mu.Lock()
	if opts.Scheduled && o.scheduledID != "" {
		// Single-flight for the scheduler: a cycle that fires while the
		// previous one still runs joins it instead of piling on.
		id := o.scheduledID
		o.mu.Unlock()
		log.Printf("[INFO] scheduled refresh already active (%s), skipping", id)
		return id, nil
	}

	id := uuid.NewString()
	if len(symbols) == 0 {
		// Every requested symbol is fresh: a terminal no-op status.
		now := time.Now()
		o.statuses[id] = &model.RefreshStatus{
			RequestID: id,
			State:     model.RefreshCompleted,
			StartTime: now,
			EndTime:   now,
			Result:    &model.RefreshResult{},
		}
		o.mu.Unlock()
		log.Printf("[INFO] refresh %s: every symbol is fresh, nothing to do", id)
		return id, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.statuses[id] = &model.RefreshStatus{
		RequestID: id,
		State:     model.RefreshPending,
		Progress:  model.RefreshProgress{Total: len(symbols)},
		StartTime: time.Now(),
	}
	o.cancels[id] = cancel
	if opts.Scheduled {
		o.scheduledID = id
	}
	o.mu.Unlock()

	runOpts := engine.RunOptions{BatchSize: opts.BatchSize, BatchTimeout: opts.BatchTimeout}
	go o.execute(ctx, id, symbols, runOpts, opts.Scheduled)
	return id, nil
}

// skipFresh drops symbols whose cached price needs no refresh yet.
func (o *Orchestrator) skipFresh(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if !o.fresh(sym) {
			out = append(out, sym)
		}
	}
	if skipped := len(symbols) - len(out); skipped > 0 {
		log.Printf("[INFO] skipping %d fresh symbol(s)", skipped)
	}
	return out
}

// execute runs the refresh and records every outcome into the status map.
// Nothing escapes here except through RefreshStatus.
func (o *Orchestrator) execute(ctx context.Context, id string, symbols []string, runOpts engine.RunOptions, scheduled bool) {
	time.Sleep(startDelay)

	o.update(id, func(s *model.RefreshStatus) {
		s.State = model.RefreshInProgress
	})

	result, err := o.runner.Run(ctx, symbols, runOpts, func(p model.RefreshProgress) {
		o.update(id, func(s *model.RefreshStatus) {
			s.Progress = p
		})
	})

	o.update(id, func(s *model.RefreshStatus) {
		s.EndTime = time.Now()
		s.Result = result
		switch {
		case err == nil:
			s.State = model.RefreshCompleted
		case errors.Is(err, context.Canceled):
			s.State = model.RefreshCancelled
			s.Error = "refresh cancelled"
		default:
			s.State = model.RefreshFailed
			s.Error = err.Error()
		}
		if result != nil {
			s.Progress.Completed = result.Success + result.Failed
			s.Progress.Failed = result.Failed
			s.Progress.CurrentSymbol = ""
			if s.Progress.Total > 0 {
				s.Progress.Percentage = float64(s.Progress.Completed) / float64(s.Progress.Total) * 100
			}
		}
	})

	o.mu.Lock()
	delete(o.cancels, id)
	if scheduled && o.scheduledID == id {
		o.scheduledID = ""
	}
	o.mu.Unlock()

	if err != nil {
		log.Printf("[WARN] refresh %s finished with error: %v", id, err)
	} else {
		log.Printf("[INFO] refresh %s completed: %d ok, %d failed in %s",
			id, result.Success, result.Failed, result.Duration.Round(time.Millisecond))
	}
}

// GetStatus returns a copy of the status, or nil when unknown. The copy is
// detached from orchestrator state; callers may mutate it freely.
func (o *Orchestrator) GetStatus(id string) *model.RefreshStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[id]
	if !ok {
		return nil
	}
	return cloneStatus(s)
}

// cloneStatus copies a status including its result, so the caller's copy
// shares nothing mutable with the live record.
func cloneStatus(s *model.RefreshStatus) *model.RefreshStatus {
	c := *s
	if s.Result != nil {
		r := *s.Result
		r.Outcomes = append([]model.SymbolOutcome(nil), s.Result.Outcomes...)
		c.Result = &r
	}
	return &c
}

// Cancel requests cancellation of a live operation. It returns false once
// the operation is terminal (or unknown); the current batch is allowed to
// finish either way.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[id]
	if !ok || s.State.Terminal() {
		return false
	}
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	return true
}

// ListActive returns pending and in-progress operations.
func (o *Orchestrator) ListActive() []model.RefreshStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.RefreshStatus
	for _, s := range o.statuses {
		if !s.State.Terminal() {
			out = append(out, *cloneStatus(s))
		}
	}
	return out
}

// CleanupOld purges terminal statuses whose end time is older than the
// retention window. Invoked periodically by an external caller.
func (o *Orchestrator) CleanupOld() int {
	cutoff := time.Now().Add(-retention)
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for id, s := range o.statuses {
		if s.State.Terminal() && !s.EndTime.IsZero() && s.EndTime.Before(cutoff) {
			delete(o.statuses, id)
			removed++
		}
	}
	return removed
}

// QuickRefresh starts a refresh and polls its status until it terminates,
// returning the aggregated result. On its own timeout the underlying
// operation is cancelled.
func (o *Orchestrator) QuickRefresh(symbols []string) (*model.RefreshResult, error) {
	id, err := o.StartRefresh(StartOptions{Symbols: symbols})
	if err != nil {
		return nil, err
	}

	for i := 0; i < quickMaxPolls; i++ {
		time.Sleep(o.pollInterval)
		s := o.GetStatus(id)
		if s == nil {
			return nil, fmt.Errorf("refresh %s vanished", id)
		}
		switch s.State {
		case model.RefreshCompleted:
			return s.Result, nil
		case model.RefreshFailed:
			return nil, fmt.Errorf("refresh %s failed: %s", id, s.Error)
		case model.RefreshCancelled:
			return nil, fmt.Errorf("refresh %s was cancelled", id)
		}
	}

	o.Cancel(id)
	return nil, fmt.Errorf("%w: refresh %s", ErrQuickRefreshTimeout, id)
}

// update applies fn to a status under the lock.
func (o *Orchestrator) update(id string, fn func(*model.RefreshStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.statuses[id]; ok {
		fn(s)
	}
}
