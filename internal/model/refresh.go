package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefreshState is the lifecycle state of one refresh operation.
type RefreshState string

const (
	RefreshPending    RefreshState = "pending"
	RefreshInProgress RefreshState = "in_progress"
	RefreshCompleted  RefreshState = "completed"
	RefreshFailed     RefreshState = "failed"
	RefreshCancelled  RefreshState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s RefreshState) Terminal() bool {
	switch s {
	case RefreshCompleted, RefreshFailed, RefreshCancelled:
		return true
	}
	return false
}

// RefreshProgress is live progress for a running refresh.
type RefreshProgress struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	Percentage    float64 `json:"percentage"`
	CurrentSymbol string  `json:"currentSymbol,omitempty"`
}

// RefreshStatus tracks one refresh operation from registration to cleanup.
// Owned by the orchestrator; callers only ever see copies.
type RefreshStatus struct {
	RequestID string          `json:"requestId"`
	State     RefreshState    `json:"status"`
	Progress  RefreshProgress `json:"progress"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime,omitzero"`
	Error     string          `json:"error,omitempty"`
	Result    *RefreshResult  `json:"result,omitempty"`
}

// SymbolOutcome is the per-symbol result of a refresh.
// A persistence warning leaves Success true with Error set.
type SymbolOutcome struct {
	Symbol    string           `json:"symbol"`
	Success   bool             `json:"success"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Source    string           `json:"source,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RefreshResult aggregates one completed refresh operation.
type RefreshResult struct {
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Duration time.Duration   `json:"duration"`
	Outcomes []SymbolOutcome `json:"outcomes"`
}
