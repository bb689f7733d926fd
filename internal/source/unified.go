package source

import (
	"context"
	"log"
)

// Adapter is the unified price source. It canonicalizes the caller's mixed
// equity/fund symbol list, issues one bulk call against the quote endpoint,
// and maps response keys back to the original identifiers.
//
// When fund identifiers are omitted from the bulk response and a NAV feed
// is configured, the adapter fills the gaps from the feed. A feed failure
// at that point is logged, never fatal: the primary call already succeeded
// and the affected symbols just stay absent.
type Adapter struct {
	Quotes   *QuoteAPIClient
	NAV      *NAVFeedClient // optional
	Exchange string
}

func NewAdapter(quotes *QuoteAPIClient, nav *NAVFeedClient, exchange string) *Adapter {
	return &Adapter{Quotes: quotes, NAV: nav, Exchange: exchange}
}

func (a *Adapter) Name() string { return "unified" }

// FetchMany fetches prices for all symbols in one bulk request. Symbols the
// upstream does not know are absent from the returned map.
func (a *Adapter) FetchMany(ctx context.Context, symbols []string) (map[string]Quote, error) {
	// Canonical form -> original identifiers. Duplicate originals may map
	// to one canonical symbol; each original gets its own result key.
	byCanonical := make(map[string][]string, len(symbols))
	canonical := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		key := Canonicalize(sym, a.Exchange)
		if _, seen := byCanonical[key]; !seen {
			canonical = append(canonical, key)
		}
		byCanonical[key] = append(byCanonical[key], sym)
	}

	prices, err := a.Quotes.FetchBulk(ctx, canonical)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Quote, len(symbols))
	for key, price := range prices {
		for _, orig := range byCanonical[key] {
			out[orig] = Quote{Price: price, Source: SourceQuoteAPI}
		}
	}

	a.fillFundGaps(ctx, symbols, out)
	return out, nil
}

// fillFundGaps resolves requested fund identifiers that the quote endpoint
// omitted by scanning the NAV bulk feed.
func (a *Adapter) fillFundGaps(ctx context.Context, symbols []string, out map[string]Quote) {
	if a.NAV == nil {
		return
	}
	var missing []string
	for _, sym := range symbols {
		if _, ok := out[sym]; !ok && IsFundIdentifier(sym) {
			missing = append(missing, sym)
		}
	}
	if len(missing) == 0 {
		return
	}

	records, err := a.NAV.FetchByISIN(ctx, missing)
	if err != nil {
		log.Printf("[WARN] nav feed supplement failed for %d fund(s): %v", len(missing), err)
		return
	}
	for isin, rec := range records {
		out[isin] = Quote{Price: rec.NAV, Source: SourceNAVFeed}
	}
}
