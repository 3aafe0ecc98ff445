package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// Reconcile compares the balance projection of an item@warehouse with its
// batches. It never writes; drift is reported for an explicit Repair.
func (e *FIFOEngine) Reconcile(ctx context.Context, itemID, warehouseID string) (*inventory.ReconciliationReport, error) {
	key := inventory.ItemKey{ItemID: itemID, WarehouseID: warehouseID}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	reader := e.scope.Reader()
	balance, err := reader.FindBalance(ctx, key)
	if err != nil {
		return nil, err
	}
	batches, err := reader.FindBatches(ctx, key)
	if err != nil {
		return nil, err
	}
	unreconciled, err := reader.CountUnreconciled(ctx, key)
	if err != nil {
		return nil, err
	}

	report := inventory.NewReconciliationReport(balance, batches, unreconciled)
	if !report.InSync() {
		e.logger.Warn("balance projection drifted from batches",
			zap.String("item_id", key.ItemID),
			zap.String("warehouse_id", key.WarehouseID),
			zap.String("quantity_drift", report.QuantityDrift.String()),
			zap.String("value_drift", report.ValueDrift.String()),
			zap.Int64("unreconciled_movements", unreconciled))
	}
	return report, nil
}

// ReconcileAll reconciles every item@warehouse that has a balance
func (e *FIFOEngine) ReconcileAll(ctx context.Context) ([]*inventory.ReconciliationReport, error) {
	keys, err := e.scope.Reader().ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*inventory.ReconciliationReport, 0, len(keys))
	for _, key := range keys {
		report, err := e.Reconcile(ctx, key.ItemID, key.WarehouseID)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile %s: %w", key, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Repair resets the balance projection to the batch sums of report. It only
// applies when the stored state still matches the report; otherwise it fails
// with shared.ErrConcurrencyConflict and the caller reconciles again.
// The returned report describes the state after the repair.
func (e *FIFOEngine) Repair(ctx context.Context, report *inventory.ReconciliationReport) (*inventory.ReconciliationReport, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: report is required", shared.ErrInvalidInput)
	}
	key := report.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	unlock, err := shared.AcquireLock(ctx, e.locker, key.LockKey(), e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var after *inventory.ReconciliationReport
	err = e.scope.Execute(ctx, func(repo inventory.StockWriteRepository) error {
		if _, err := repo.FindBalance(ctx, key); err != nil {
			return err
		}
		balance, err := repo.LockBalance(ctx, key)
		if err != nil {
			return err
		}
		batches, err := repo.FindOpenBatches(ctx, key)
		if err != nil {
			return err
		}
		unreconciled, err := repo.CountUnreconciled(ctx, key)
		if err != nil {
			return err
		}

		current := inventory.NewReconciliationReport(balance, batches, unreconciled)
		if !current.SameState(report) {
			return fmt.Errorf("%w: %s changed since the report was generated", shared.ErrConcurrencyConflict, key)
		}
		if current.InSync() {
			after = current
			return nil
		}

		report.ApplyTo(balance)
		if err := repo.SaveBalance(ctx, balance); err != nil {
			return err
		}
		after = inventory.NewReconciliationReport(balance, batches, unreconciled)
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			e.logger.Info("repair skipped, state changed", zap.String("key", key.String()))
		}
		return nil, err
	}

	if !report.InSync() {
		e.logger.Warn("balance projection repaired",
			zap.String("item_id", key.ItemID),
			zap.String("warehouse_id", key.WarehouseID),
			zap.String("quantity_drift", report.QuantityDrift.String()),
			zap.String("value_drift", report.ValueDrift.String()))
	}
	return after, nil
}
