/*
scheduler.go - Automated batch re-analysis scheduler

PURPOSE:
  Periodically recomputes the expiration classification for every
  account at the configured default window and replaces the persisted
  cache, so the dashboard's risk panel stays current without on-demand
  recomputation.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - One account at a time; cancellation is honored between accounts
  - An account that cannot be analyzed counts as failed and the batch
    continues
  - Records analysis runs for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAnalysisScheduler(store, handler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRefresh endpoint (manual batch)
  - monitor/expiry.go: Per-account refresh
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian/deploy-assistant/entitlement"
	"github.com/meridian/deploy-assistant/logging"
	"github.com/meridian/deploy-assistant/monitor"
	"github.com/meridian/deploy-assistant/store/sqlite"
)

// AnalysisScheduler handles automated batch re-analysis.
type AnalysisScheduler struct {
	Store         *sqlite.Store
	Expiry        *monitor.ExpiryMonitor
	Log           *logging.Logger
	WindowDays    int
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAnalysisScheduler creates a new scheduler.
func NewAnalysisScheduler(store *sqlite.Store, expiry *monitor.ExpiryMonitor, log *logging.Logger) *AnalysisScheduler {
	return &AnalysisScheduler{
		Store:         store,
		Expiry:        expiry,
		Log:           log,
		WindowDays:    30,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *AnalysisScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Log.Info("scheduler started", "interval", s.CheckInterval, "window", s.WindowDays)
}

// Stop stops the scheduler.
func (s *AnalysisScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("scheduler stopped")
	}
}

func (s *AnalysisScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *AnalysisScheduler) runOnce() {
	run, err := s.RunBatch(context.Background(), s.WindowDays)
	if err != nil {
		s.Log.Error("batch re-analysis failed", "error", err)
		return
	}
	s.Log.Info("batch re-analysis complete",
		"run", run.ID,
		"accounts", run.AccountsTotal,
		"failed", run.AccountsFailed,
		"atRisk", run.AtRisk,
		"extended", run.Extended,
	)
}

// RunBatch recomputes the expiration cache for every account at the
// given window and records the run. Accounts that cannot be analyzed
// are counted and skipped; only listing accounts or persisting the run
// record fails the batch.
func (s *AnalysisScheduler) RunBatch(ctx context.Context, windowDays int) (*sqlite.AnalysisRun, error) {
	startTime := time.Now().UTC()
	run := sqlite.AnalysisRun{
		ID:         "run-" + uuid.NewString(),
		WindowDays: windowDays,
		Status:     "running",
		StartedAt:  &startTime,
		CreatedAt:  startTime,
	}
	if err := s.Store.SaveAnalysisRun(ctx, run); err != nil {
		return nil, err
	}

	accounts, err := s.Store.ListAccounts(ctx)
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		s.finishRun(ctx, &run)
		return nil, err
	}
	run.AccountsTotal = len(accounts)

	for _, accountID := range accounts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			run.Status = "failed"
			run.Error = ctxErr.Error()
			s.finishRun(ctx, &run)
			return nil, ctxErr
		}

		entry, err := s.Expiry.Refresh(ctx, accountID, windowDays)
		if err != nil {
			run.AccountsFailed++
			s.Log.Warn("account re-analysis failed", "account", accountID, "error", err)
			continue
		}
		for _, r := range entry.Records {
			switch r.Status {
			case entitlement.StatusAtRisk:
				run.AtRisk++
			case entitlement.StatusExtended:
				run.Extended++
			}
		}
	}

	run.Status = "completed"
	if err := s.finishRun(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *AnalysisScheduler) finishRun(ctx context.Context, run *sqlite.AnalysisRun) error {
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	return s.Store.SaveAnalysisRun(ctx, *run)
}

// RunNow triggers an immediate batch (for testing/admin).
func (s *AnalysisScheduler) RunNow() {
	s.runOnce()
}

// GetNextRunTime returns when the next scheduled run will occur.
func (s *AnalysisScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
