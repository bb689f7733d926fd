// Package scheduler triggers a full-universe price refresh on a fixed
// interval, delegating the actual work to the orchestrator.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"InvestTrack/internal/orchestrator"

	"github.com/robfig/cron/v3"
)

// Scheduler drives periodic refresh cycles. A failed cycle is logged and
// swallowed; the schedule continues undisturbed.
type Scheduler struct {
	orch *orchestrator.Orchestrator

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(orch *orchestrator.Orchestrator) *Scheduler {
	return &Scheduler{orch: orch}
}

// Start begins the refresh cadence: one cycle immediately, then one per
// interval. Calling Start while running is a no-op; the original interval
// is kept.
func (s *Scheduler) Start(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		log.Println("[INFO] scheduler already running, ignoring start")
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.runCycle); err != nil {
		return fmt.Errorf("register refresh cycle: %w", err)
	}

	s.cron = c
	s.running = true
	c.Start()
	log.Printf("[INFO] scheduler started, interval %s", interval)

	go s.runCycle()
	return nil
}

// Stop halts future cycles. An in-flight refresh is not aborted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.running = false
	log.Println("[INFO] scheduler stopped")
}

// Running reports whether the cadence is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runCycle() {
	id, err := s.orch.StartRefresh(orchestrator.StartOptions{Scheduled: true})
	if err != nil {
		log.Printf("[ERROR] scheduled refresh: %v", err)
		return
	}
	log.Printf("[INFO] scheduled refresh cycle started: %s", id)
}
