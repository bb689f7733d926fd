// Package api is the thin HTTP JSON surface over the price service and the
// refresh orchestrator. No business logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"InvestTrack/internal/engine"
	"InvestTrack/internal/orchestrator"
	"InvestTrack/internal/service"
)

// Handler routes the inbound API.
type Handler struct {
	prices *service.PriceService
	orch   *orchestrator.Orchestrator
}

func NewHandler(prices *service.PriceService, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{prices: prices, orch: orch}
}

// Routes builds the HTTP mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/prices/{symbol}", h.getPrice)
	mux.HandleFunc("POST /api/prices/batch", h.batchGetPrices)
	mux.HandleFunc("POST /api/refresh", h.startRefresh)
	mux.HandleFunc("GET /api/refresh", h.listActive)
	mux.HandleFunc("GET /api/refresh/{id}", h.getRefreshStatus)
	mux.HandleFunc("DELETE /api/refresh/{id}", h.cancelRefresh)
	mux.HandleFunc("GET /api/cache/stats", h.cacheStats)
	mux.HandleFunc("DELETE /api/cache", h.clearCache)
	return mux
}

func (h *Handler) getPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	entry, err := h.prices.GetPrice(r.Context(), symbol)
	if err != nil {
		log.Printf("[ERROR] get price %s: %v", symbol, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "no price available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type batchRequest struct {
	Symbols []string `json:"symbols"`
}

func (h *Handler) batchGetPrices(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.Symbols) == 0 {
		http.Error(w, "symbols cannot be empty", http.StatusBadRequest)
		return
	}
	if len(req.Symbols) > engine.MaxSymbolsPerRequest {
		http.Error(w, "too many symbols", http.StatusBadRequest)
		return
	}
	prices, err := h.prices.BatchGetPrices(r.Context(), req.Symbols)
	if err != nil {
		log.Printf("[ERROR] batch prices: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

type refreshRequest struct {
	Symbols    []string `json:"symbols,omitempty"`
	Force      bool     `json:"forceRefresh,omitempty"`
	BatchSize  int      `json:"batchSize,omitempty"`
	TimeoutSec int      `json:"timeoutSec,omitempty"`
}

func (h *Handler) startRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	id, err := h.orch.StartRefresh(orchestrator.StartOptions{
		Symbols:      req.Symbols,
		ForceRefresh: req.Force,
		BatchSize:    req.BatchSize,
		BatchTimeout: time.Duration(req.TimeoutSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, engine.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("[ERROR] start refresh: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"requestId": id})
}

func (h *Handler) getRefreshStatus(w http.ResponseWriter, r *http.Request) {
	status := h.orch.GetStatus(r.PathValue("id"))
	if status == nil {
		http.Error(w, "unknown request id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) cancelRefresh(w http.ResponseWriter, r *http.Request) {
	cancelled := h.orch.Cancel(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": h.orch.ListActive()})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.prices.GetCacheStats()
	if err != nil {
		log.Printf("[ERROR] cache stats: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.prices.ClearAllCaches(); err != nil {
		log.Printf("[ERROR] clear cache: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] encode response: %v", err)
	}
}
