package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"InvestTrack/internal/api"
	"InvestTrack/internal/config"
	"InvestTrack/internal/engine"
	"InvestTrack/internal/orchestrator"
	"InvestTrack/internal/policy"
	"InvestTrack/internal/scheduler"
	"InvestTrack/internal/service"
	"InvestTrack/internal/source"
	"InvestTrack/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] InvestTrack starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init store
	var st store.Store
	if cfg.Database.SQLitePath != "" {
		ss, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite store failed, using in-memory: %v", err)
			st = store.NewMemoryStore()
		} else {
			st = ss
			defer ss.Close()
		}
	} else {
		st = store.NewMemoryStore()
	}

	// Init unified price source
	quotes := source.NewQuoteAPIClient(cfg.QuoteAPI.Endpoint, cfg.QuoteAPI.APIKey)
	var nav *source.NAVFeedClient
	if cfg.NAVFeed.URL != "" {
		nav = source.NewNAVFeedClient(cfg.NAVFeed.URL)
	}
	src := source.NewAdapter(quotes, nav, cfg.QuoteAPI.Exchange)
	log.Printf("[INFO] price source: %s", src.Name())

	// Init refresh engine and orchestrator
	eng := engine.New(src, st, engine.Options{
		BatchSize:    cfg.Refresh.BatchSize,
		BatchTimeout: cfg.BatchTimeout(),
		BatchDelay:   cfg.BatchDelay(),
		MaxAttempts:  cfg.Refresh.MaxAttempts,
	})
	universe := func() []string {
		entries, err := st.ListAll()
		if err != nil {
			log.Printf("[WARN] list cached symbols: %v", err)
			return nil
		}
		symbols := make([]string, 0, len(entries))
		for _, e := range entries {
			symbols = append(symbols, e.Symbol)
		}
		return symbols
	}
	fresh := func(symbol string) bool {
		entry, err := st.Get(symbol)
		if err != nil || entry == nil {
			return false
		}
		return !policy.NeedsFetch(policy.Classify(entry.Age(time.Now())))
	}
	orch := orchestrator.New(eng, universe, fresh)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.New(orch)
	if err := sched.Start(cfg.RefreshInterval()); err != nil {
		log.Fatalf("[FATAL] start scheduler: %v", err)
	}
	defer sched.Stop()

	// Periodic cleanup of finished refresh records
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Refresh.CleanupIntervalMin) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := orch.CleanupOld(); n > 0 {
					log.Printf("[INFO] cleaned up %d finished refresh record(s)", n)
				}
			}
		}
	}()

	// HTTP server
	handler := api.NewHandler(service.New(src, st), orch)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[INFO] HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[FATAL] http server: %v", err)
		}
	}()

	log.Println("[INFO] InvestTrack is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	log.Println("[INFO] InvestTrack stopped")
}
