// Package service is the consumer-facing read path: serve from cache when
// the policy allows, fetch through the unified source otherwise, degrade to
// stale values only when the policy permits.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"InvestTrack/internal/model"
	"InvestTrack/internal/policy"
	"InvestTrack/internal/source"
	"InvestTrack/internal/store"
)

// PriceService answers price lookups for the UI/API layer.
type PriceService struct {
	src source.Source
	st  store.Store
}

func New(src source.Source, st store.Store) *PriceService {
	return &PriceService{src: src, st: st}
}

// GetPrice returns the price for one symbol, or (nil, nil) when no price is
// available. Fresh entries are served without any network call. Stale
// entries trigger a foreground fetch and fall back to the cached value
// tagged _STALE when the fetch fails. Expired entries are never served: a
// failed refresh means absent.
func (p *PriceService) GetPrice(ctx context.Context, symbol string) (*model.PriceCacheEntry, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	entry, err := p.st.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	tier := policy.Expired // a miss behaves like an expired entry
	if entry != nil {
		tier = policy.Classify(entry.Age(time.Now()))
	}
	if !policy.NeedsFetch(tier) {
		return entry, nil
	}

	fetched, err := p.fetchAndStore(ctx, symbol)
	if err == nil && fetched != nil {
		return fetched, nil
	}
	if err != nil {
		log.Printf("[WARN] fetch %s: %v", symbol, err)
	}

	if entry != nil && policy.ServableOnFailure(tier) {
		return entry.AsStale(), nil
	}
	return nil, nil
}

// BatchGetPrices resolves many symbols with the same policy as GetPrice,
// but with a single bulk fetch for all symbols that need one. Symbols with
// no available price are absent from the returned map.
func (p *PriceService) BatchGetPrices(ctx context.Context, symbols []string) (map[string]*model.PriceCacheEntry, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("empty symbol list")
	}

	out := make(map[string]*model.PriceCacheEntry, len(symbols))
	cached := make(map[string]*model.PriceCacheEntry, len(symbols))
	tiers := make(map[string]policy.Tier, len(symbols))
	var toFetch []string

	now := time.Now()
	for _, sym := range symbols {
		if _, seen := tiers[sym]; seen {
			continue
		}
		entry, err := p.st.Get(sym)
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		tier := policy.Expired
		if entry != nil {
			tier = policy.Classify(entry.Age(now))
			cached[sym] = entry
		}
		tiers[sym] = tier
		if !policy.NeedsFetch(tier) {
			out[sym] = entry
			continue
		}
		toFetch = append(toFetch, sym)
	}

	if len(toFetch) > 0 {
		quotes, err := p.src.FetchMany(ctx, toFetch)
		if err != nil {
			log.Printf("[WARN] bulk fetch of %d symbol(s) failed: %v", len(toFetch), err)
			quotes = nil
		}
		for _, sym := range toFetch {
			if q, ok := quotes[sym]; ok {
				out[sym] = p.persist(sym, q)
				continue
			}
			if entry, ok := cached[sym]; ok && policy.ServableOnFailure(tiers[sym]) {
				out[sym] = entry.AsStale()
			}
		}
	}
	return out, nil
}

// fetchAndStore fetches one symbol through the bulk source and caches it.
func (p *PriceService) fetchAndStore(ctx context.Context, symbol string) (*model.PriceCacheEntry, error) {
	quotes, err := p.src.FetchMany(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, nil // upstream has no price; a business outcome, not an error
	}
	return p.persist(symbol, q), nil
}

// persist writes a fetched quote through the store. Persistence failures
// never discard the price: the caller still gets the fetched value.
func (p *PriceService) persist(symbol string, q source.Quote) *model.PriceCacheEntry {
	now := time.Now()
	if err := p.st.Upsert(symbol, q.Price, q.Source); err != nil {
		log.Printf("[WARN] cache write failed for %s: %v", symbol, err)
	} else if err := p.st.AppendHistory(symbol, q.Price, q.Source, now); err != nil {
		log.Printf("[WARN] history append failed for %s: %v", symbol, err)
	}
	return &model.PriceCacheEntry{Symbol: symbol, Price: q.Price, Source: q.Source, LastUpdated: now}
}

// GetCacheStats summarizes the cache table.
func (p *PriceService) GetCacheStats() (model.CacheStats, error) {
	return p.st.Stats()
}

// ClearAllCaches drops every cache entry. History is retained.
func (p *PriceService) ClearAllCaches() error {
	log.Println("[INFO] clearing price cache")
	return p.st.DeleteAll()
}

// ClearSymbols drops cache entries for specific symbols (orphan cleanup).
func (p *PriceService) ClearSymbols(symbols []string) error {
	return p.st.DeleteWhere(symbols)
}

// ListCached returns every cache entry.
func (p *PriceService) ListCached() ([]model.PriceCacheEntry, error) {
	return p.st.ListAll()
}
