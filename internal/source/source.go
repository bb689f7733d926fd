package source

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrSourceUnavailable marks transport-level upstream failures. A response
// that merely omits some requested symbols is not an error; those symbols
// are simply absent from the returned map.
var ErrSourceUnavailable = errors.New("price source unavailable")

// Source tags recorded on cache entries and history rows.
const (
	SourceQuoteAPI = "QUOTE_API"
	SourceNAVFeed  = "NAV_FEED"
)

// Quote is one fetched price with its origin tag.
type Quote struct {
	Price  decimal.Decimal
	Source string
}

// Source fetches prices for a heterogeneous mix of equities and funds in
// bulk. The returned map is keyed by the caller's original identifiers.
type Source interface {
	Name() string
	FetchMany(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// IsFundIdentifier reports whether a symbol looks like a fund ISIN
// (two-letter country code followed by nine alphanumerics and a check
// digit). Everything else is treated as an equity ticker.
func IsFundIdentifier(symbol string) bool {
	if len(symbol) != 12 {
		return false
	}
	for i, r := range symbol {
		switch {
		case i < 2:
			if !unicode.IsUpper(r) {
				return false
			}
		case i == 11:
			if !unicode.IsDigit(r) {
				return false
			}
		default:
			if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

// Canonicalize maps a caller symbol onto the upstream service's expected
// form: bare equity tickers gain the exchange namespace, fund identifiers
// gain the MF namespace, and already-namespaced inputs pass through.
func Canonicalize(symbol, exchange string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	if IsFundIdentifier(symbol) {
		return "MF:" + symbol
	}
	return exchange + ":" + symbol
}
