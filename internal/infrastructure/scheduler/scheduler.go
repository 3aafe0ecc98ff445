// Package scheduler runs periodic reconciliation sweeps over the stock
// balance projections.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweepStatus represents the status of a sweep
type SweepStatus string

const (
	SweepStatusRunning SweepStatus = "RUNNING"
	SweepStatusSuccess SweepStatus = "SUCCESS"
	SweepStatusFailed  SweepStatus = "FAILED"
)

// Reconciler compares projections with their batches and repairs drift.
// The FIFO engine satisfies it.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*inventory.ReconciliationReport, error)
	Repair(ctx context.Context, report *inventory.ReconciliationReport) (*inventory.ReconciliationReport, error)
}

// Sweep is one pass over every balance
type Sweep struct {
	ID          uuid.UUID   `json:"id"`
	Status      SweepStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Checked     int         `json:"checked"`
	Drifted     int         `json:"drifted"`
	Repaired    int         `json:"repaired"`
	Error       string      `json:"error,omitempty"`
}

func newSweep() *Sweep {
	return &Sweep{ID: uuid.New(), Status: SweepStatusRunning, StartedAt: time.Now()}
}

func (s *Sweep) complete() {
	s.Status = SweepStatusSuccess
	s.CompletedAt = time.Now()
}

func (s *Sweep) fail(err error) {
	s.Status = SweepStatusFailed
	s.CompletedAt = time.Now()
	s.Error = err.Error()
}

// Remaining returns the number of balances still out of sync after the sweep
func (s *Sweep) Remaining() int {
	return s.Drifted - s.Repaired
}

// Config holds scheduler configuration
type Config struct {
	Interval     time.Duration
	SweepTimeout time.Duration
	Repair       bool
	// RunImmediately starts the first sweep without waiting one interval
	RunImmediately bool
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		SweepTimeout:   2 * time.Minute,
		RunImmediately: true,
	}
}

func (c Config) validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.SweepTimeout < 0 {
		return fmt.Errorf("%w: sweep timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SweepFunc observes every finished sweep
type SweepFunc func(*Sweep)

// ReconcileScheduler sweeps all balances on a fixed interval. Sweeps never
// overlap; a tick arriving while a sweep runs is skipped.
type ReconcileScheduler struct {
	config     Config
	reconciler Reconciler
	logger     *zap.Logger
	onSweep    SweepFunc

	sweepMu   sync.Mutex
	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	last      *Sweep
	sweeps    int
}

// NewReconcileScheduler creates a scheduler; onSweep may be nil
func NewReconcileScheduler(config Config, reconciler Reconciler, onSweep SweepFunc, logger *zap.Logger) (*ReconcileScheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if reconciler == nil {
		return nil, fmt.Errorf("%w: reconciler is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileScheduler{
		config:     config,
		reconciler: reconciler,
		onSweep:    onSweep,
		logger:     logger.Named("reconcile_scheduler"),
	}, nil
}

// Start starts the sweep loop
func (s *ReconcileScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("reconcile scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("repair", s.config.Repair),
	)
	return nil
}

// Stop cancels the loop and waits for a running sweep to finish
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconcile scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("reconcile scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop is active
func (s *ReconcileScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastSweep returns a copy of the most recent finished sweep, or nil
func (s *ReconcileScheduler) LastSweep() *Sweep {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	last := *s.last
	return &last
}

// Sweeps returns the number of finished sweeps
func (s *ReconcileScheduler) Sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func (s *ReconcileScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunImmediately {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ReconcileScheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) && ctx.Err() == nil {
		s.logger.Error("reconciliation sweep failed", zap.Error(err))
	}
}

// RunOnce performs one sweep now. Drifted balances are repaired when the
// scheduler is configured to; a repair refused because the balance moved
// since the report is left for the next sweep.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (*Sweep, error) {
	if !s.sweepMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	if s.config.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SweepTimeout)
		defer cancel()
	}

	sweep := newSweep()
	log := s.logger.With(zap.String("sweep_id", sweep.ID.String()))

	reports, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		sweep.fail(err)
		s.finish(sweep)
		return sweep, fmt.Errorf("failed to reconcile balances: %w", err)
	}

	sweep.Checked = len(reports)
	for _, report := range reports {
		if report.InSync() {
			continue
		}
		sweep.Drifted++
		log.Warn("balance drifted from its batches",
			zap.String("key", report.Key().String()),
			zap.String("quantity_drift", report.QuantityDrift.String()),
			zap.String("value_drift", report.ValueDrift.String()))

		if !s.config.Repair {
			continue
		}
		repaired, err := s.reconciler.Repair(ctx, report)
		if err != nil {
			log.Warn("repair failed", zap.String("key", report.Key().String()), zap.Error(err))
			continue
		}
		if repaired.InSync() {
			sweep.Repaired++
		}
	}

	sweep.complete()
	s.finish(sweep)
	log.Info("reconciliation sweep finished",
		zap.Int("checked", sweep.Checked),
		zap.Int("drifted", sweep.Drifted),
		zap.Int("repaired", sweep.Repaired),
		zap.Duration("took", sweep.CompletedAt.Sub(sweep.StartedAt)))
	return sweep, nil
}

func (s *ReconcileScheduler) finish(sweep *Sweep) {
	s.mu.Lock()
	s.last = sweep
	s.sweeps++
	s.mu.Unlock()

	if s.onSweep != nil {
		s.onSweep(sweep)
	}
}
