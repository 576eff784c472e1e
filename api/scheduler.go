/*
scheduler.go - Year-start balance initializer

PURPOSE:
  Periodically makes sure every employee has the current year's ledger
  rows. Balances are granted once per (employee, category, year), so
  running it repeatedly is safe: already-initialized employees are skipped.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Fans out over employees with errgroup, at most Workers at a time
  - AlreadyInitializedError counts as skipped, not failed
  - Records one audit entry per employee that got new balances

USAGE:
  init := NewBalanceInitializer(handler)
  init.Interval = 6 * time.Hour
  init.Start()
  // ... later
  init.Stop()

SEE ALSO:
  - handlers.go: InitializeBalances endpoint (manual initialization)
  - leave/ledger.go: LeaveLedger.Initialize
*/
package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/generic"
)

const initializerActor = "system:balance-initializer"

// BalanceInitializer grants the current year's balances to every employee.
type BalanceInitializer struct {
	Handler  *Handler
	Interval time.Duration
	Workers  int

	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// RunSummary counts the outcome of one pass.
type RunSummary struct {
	Year        int
	Initialized int
	Skipped     int
	Failed      int
}

func NewBalanceInitializer(h *Handler) *BalanceInitializer {
	return &BalanceInitializer{
		Handler:  h,
		Interval: time.Hour,
		Workers:  4,
	}
}

// Start runs a pass immediately and then every Interval. A zero Interval
// disables the initializer.
func (bi *BalanceInitializer) Start() {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	log := bi.Handler.Logger
	if bi.active {
		return
	}
	if bi.Interval <= 0 {
		log.Info("balance initializer disabled")
		return
	}

	bi.stop = make(chan struct{})
	bi.active = true
	bi.wg.Add(1)
	go bi.run()

	log.Info("balance initializer started", "interval", bi.Interval, "workers", bi.Workers)
}

// Stop stops the initializer and waits for a running pass to finish.
func (bi *BalanceInitializer) Stop() {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	if !bi.active {
		return
	}
	close(bi.stop)
	bi.wg.Wait()
	bi.active = false
	bi.Handler.Logger.Info("balance initializer stopped")
}

func (bi *BalanceInitializer) run() {
	defer bi.wg.Done()

	ticker := time.NewTicker(bi.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-bi.stop
		cancel()
	}()

	bi.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			bi.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow initializes the current year for every employee and returns the
// counts. Per-employee failures are logged and counted, never returned.
func (bi *BalanceInitializer) RunNow(ctx context.Context) RunSummary {
	h := bi.Handler
	year := generic.Today(h.Clock).Year()
	summary := RunSummary{Year: year}

	employees, err := h.Store.ListEmployees(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "balance initializer: list employees failed", "error", err)
		return summary
	}

	var initialized, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(bi.Workers, 1))
	for _, emp := range employees {
		emp := emp
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			created, err := h.Ledger.Initialize(gctx, emp, year, nil, initializerActor)
			var already *generic.AlreadyInitializedError
			switch {
			case err != nil && !errors.As(err, &already):
				failed.Add(1)
				h.Logger.ErrorContext(gctx, "balance initializer: initialize failed",
					"employee_id", emp.ID, "year", year, "error", err)
				return nil
			case len(created) == 0:
				skipped.Add(1)
				return nil
			}
			initialized.Add(1)
			auditErr := h.Store.Append(gctx, generic.AuditEntry{
				ID:         uuid.NewString(),
				Timestamp:  h.Clock.Now(),
				ActorID:    initializerActor,
				Action:     generic.AuditBalanceInitialized,
				EmployeeID: emp.ID,
				Details:    map[string]any{"year": year, "created": len(created), "policy": h.Tables.Policies.Version()},
			})
			if auditErr != nil {
				h.Logger.ErrorContext(gctx, "audit append failed", "employee_id", emp.ID, "error", auditErr)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Initialized = int(initialized.Load())
	summary.Skipped = int(skipped.Load())
	summary.Failed = int(failed.Load())
	if summary.Initialized > 0 || summary.Failed > 0 {
		h.Logger.InfoContext(ctx, "balance initializer pass complete",
			"year", year, "initialized", summary.Initialized, "skipped", summary.Skipped, "failed", summary.Failed)
	}
	return summary
}
