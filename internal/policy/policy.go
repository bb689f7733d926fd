// Package policy classifies cached prices by age. The tier boundaries are
// fixed constants rather than caller options so every consumer observes the
// same freshness behavior.
package policy

import "time"

// Tier is the freshness classification of a cache entry.
type Tier int

const (
	// Fresh entries are served directly, no fetch needed.
	Fresh Tier = iota
	// Stale entries are served only as a degraded fallback when a fresh
	// fetch fails; a foreground fetch is still attempted first.
	Stale
	// Expired entries are never served; a failed refresh means no price.
	Expired
)

const (
	// FreshMaxAge is the window in which an entry is servable as-is.
	FreshMaxAge = time.Hour
	// StaleMaxAge is the window in which an entry remains usable as a fallback.
	StaleMaxAge = 24 * time.Hour
)

func (t Tier) String() string {
	switch t {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// Classify maps an entry age onto exactly one tier.
func Classify(age time.Duration) Tier {
	switch {
	case age < FreshMaxAge:
		return Fresh
	case age < StaleMaxAge:
		return Stale
	default:
		return Expired
	}
}

// NeedsFetch reports whether a fetch should be attempted for the tier.
func NeedsFetch(t Tier) bool { return t != Fresh }

// ServableOnFailure reports whether the cached value may still be served
// after a fetch attempt fails.
func ServableOnFailure(t Tier) bool { return t == Stale }
