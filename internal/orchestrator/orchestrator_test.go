package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"InvestTrack/internal/engine"
	"InvestTrack/internal/model"

	"github.com/stretchr/testify/require"
)

// stubRunner is a scripted engine stand-in. It records what it was asked
// to run.
type stubRunner struct {
	block  chan struct{} // when non-nil, Run waits for close or cancellation
	result *model.RefreshResult
	err    error

	mu      sync.Mutex
	symbols [][]string
	opts    []engine.RunOptions
}

func (r *stubRunner) Run(ctx context.Context, symbols []string, opts engine.RunOptions, onProgress engine.ProgressFunc) (*model.RefreshResult, error) {
	r.mu.Lock()
	r.symbols = append(r.symbols, append([]string(nil), symbols...))
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return &model.RefreshResult{Failed: len(symbols)}, ctx.Err()
		}
	}
	if onProgress != nil {
		onProgress(model.RefreshProgress{Total: len(symbols), Completed: len(symbols), Percentage: 100})
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &model.RefreshResult{Success: len(symbols)}, nil
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *model.RefreshStatus {
	t.Helper()
	var s *model.RefreshStatus
	require.Eventually(t, func() bool {
		s = o.GetStatus(id)
		return s != nil && s.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func TestStartRefresh_ObservesPendingThenCompleted(t *testing.T) {
	o := New(&stubRunner{}, nil, nil)

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE", "INFY"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// The deliberate start delay means an immediate poll sees pending.
	s := o.GetStatus(id)
	require.NotNil(t, s)
	require.Equal(t, model.RefreshPending, s.State)
	require.Equal(t, 2, s.Progress.Total)

	s = waitTerminal(t, o, id)
	require.Equal(t, model.RefreshCompleted, s.State)
	require.NotNil(t, s.Result)
	require.Equal(t, 2, s.Result.Success)
	require.False(t, s.EndTime.IsZero())
}

func TestStartRefresh_UsesTrackedUniverseByDefault(t *testing.T) {
	o := New(&stubRunner{}, func() []string { return []string{"RELIANCE", "INF209K01157"} }, nil)

	id, err := o.StartRefresh(StartOptions{})
	require.NoError(t, err)
	s := waitTerminal(t, o, id)
	require.Equal(t, 2, s.Result.Success)
}

func TestStartRefresh_RejectsEmptyUniverse(t *testing.T) {
	o := New(&stubRunner{}, func() []string { return nil }, nil)

	_, err := o.StartRefresh(StartOptions{})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestCancel(t *testing.T) {
	block := make(chan struct{})
	o := New(&stubRunner{block: block}, nil, nil)

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := o.GetStatus(id)
		return s != nil && s.State == model.RefreshInProgress
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, o.Cancel(id))

	s := waitTerminal(t, o, id)
	require.Equal(t, model.RefreshCancelled, s.State)
	require.LessOrEqual(t, s.Progress.Completed, s.Progress.Total)

	// Terminal operations cannot be cancelled again.
	require.False(t, o.Cancel(id))
	require.False(t, o.Cancel("no-such-id"))
}

func TestFailedRunIsRecordedNotPropagated(t *testing.T) {
	o := New(&stubRunner{err: errors.New("store exploded")}, nil, nil)

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)

	s := waitTerminal(t, o, id)
	require.Equal(t, model.RefreshFailed, s.State)
	require.Contains(t, s.Error, "store exploded")
}

func TestListActiveAndCleanup(t *testing.T) {
	block := make(chan struct{})
	o := New(&stubRunner{block: block}, nil, nil)

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(o.ListActive()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Active operations survive cleanup.
	require.Zero(t, o.CleanupOld())

	close(block)
	waitTerminal(t, o, id)
	require.Empty(t, o.ListActive())

	// Fresh terminal statuses are retained for an hour.
	require.Zero(t, o.CleanupOld())

	// Age the record past the retention window.
	o.mu.Lock()
	o.statuses[id].EndTime = time.Now().Add(-2 * time.Hour)
	o.mu.Unlock()
	require.Equal(t, 1, o.CleanupOld())
	require.Nil(t, o.GetStatus(id))
}

func TestScheduledRefreshIsSingleFlight(t *testing.T) {
	block := make(chan struct{})
	o := New(&stubRunner{block: block}, nil, nil)

	first, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}, Scheduled: true})
	require.NoError(t, err)

	second, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}, Scheduled: true})
	require.NoError(t, err)
	require.Equal(t, first, second)

	// Manual refreshes are independent of the scheduled one.
	manual, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)
	require.NotEqual(t, first, manual)

	close(block)
	waitTerminal(t, o, first)

	// Once the scheduled run finished, a new cycle may start.
	third, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}, Scheduled: true})
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestStartRefresh_SkipsFreshSymbolsUnlessForced(t *testing.T) {
	r := &stubRunner{}
	o := New(r, nil, func(symbol string) bool { return symbol == "RELIANCE" })

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE", "INFY"}})
	require.NoError(t, err)
	s := waitTerminal(t, o, id)
	require.Equal(t, model.RefreshCompleted, s.State)
	require.Equal(t, 1, s.Progress.Total)

	r.mu.Lock()
	require.Equal(t, [][]string{{"INFY"}}, r.symbols)
	r.mu.Unlock()

	// Forcing bypasses the freshness filter entirely.
	id, err = o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE", "INFY"}, ForceRefresh: true})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	r.mu.Lock()
	require.Equal(t, []string{"RELIANCE", "INFY"}, r.symbols[1])
	r.mu.Unlock()
}

func TestStartRefresh_AllFreshCompletesImmediately(t *testing.T) {
	r := &stubRunner{}
	o := New(r, nil, func(string) bool { return true })

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)

	// No async work: the status is terminal from the start.
	s := o.GetStatus(id)
	require.NotNil(t, s)
	require.Equal(t, model.RefreshCompleted, s.State)
	require.NotNil(t, s.Result)
	require.Zero(t, s.Result.Success+s.Result.Failed)

	r.mu.Lock()
	require.Empty(t, r.symbols)
	r.mu.Unlock()
}

func TestStartRefresh_ForwardsPerRunOptions(t *testing.T) {
	r := &stubRunner{}
	o := New(r, nil, nil)

	id, err := o.StartRefresh(StartOptions{
		Symbols:      []string{"RELIANCE"},
		BatchSize:    5,
		BatchTimeout: 7 * time.Second,
	})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Equal(t, engine.RunOptions{BatchSize: 5, BatchTimeout: 7 * time.Second}, r.opts[0])
}

func TestGetStatus_CopyDoesNotAliasLiveResult(t *testing.T) {
	o := New(&stubRunner{result: &model.RefreshResult{
		Success:  1,
		Outcomes: []model.SymbolOutcome{{Symbol: "RELIANCE", Success: true}},
	}}, nil, nil)

	id, err := o.StartRefresh(StartOptions{Symbols: []string{"RELIANCE"}})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	s := o.GetStatus(id)
	s.Result.Success = 99
	s.Result.Outcomes[0].Symbol = "MUTATED"

	again := o.GetStatus(id)
	require.Equal(t, 1, again.Result.Success)
	require.Equal(t, "RELIANCE", again.Result.Outcomes[0].Symbol)
}

func TestQuickRefresh_Completes(t *testing.T) {
	o := New(&stubRunner{}, nil, nil)
	o.pollInterval = time.Millisecond

	res, err := o.QuickRefresh([]string{"RELIANCE", "INFY"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Success)
}

func TestQuickRefresh_TimesOutAndCancels(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	o := New(&stubRunner{block: block}, nil, nil)
	o.pollInterval = time.Millisecond // 600 polls ~ 600ms instead of 5 minutes

	_, err := o.QuickRefresh([]string{"RELIANCE"})
	require.ErrorIs(t, err, ErrQuickRefreshTimeout)

	// The underlying operation was cancelled on the way out.
	active := o.ListActive()
	require.Eventually(t, func() bool { return len(o.ListActive()) == 0 }, 2*time.Second, 5*time.Millisecond,
		"expected no active refreshes, still running: %v", active)
}

func TestQuickRefresh_SurfacesFailure(t *testing.T) {
	o := New(&stubRunner{err: errors.New("boom")}, nil, nil)
	o.pollInterval = time.Millisecond

	_, err := o.QuickRefresh([]string{"RELIANCE"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}
