package inventory

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// ShortfallHandler reacts to stock consumed beyond the batches. It attaches
// the current reconciliation diff and hands an alert to the notifier; it
// never repairs anything itself.
type ShortfallHandler struct {
	logger     *zap.Logger
	notifier   ShortfallNotifier
	reconciler Reconciler
}

// ShortfallNotifier delivers shortfall alerts
type ShortfallNotifier interface {
	NotifyShortfall(ctx context.Context, alert ShortfallAlert) error
}

// Reconciler produces a reconciliation report for an item@warehouse
type Reconciler interface {
	Reconcile(ctx context.Context, itemID, warehouseID string) (*inventory.ReconciliationReport, error)
}

// ShortfallAlert describes a negative-stock consumption awaiting reconciliation
type ShortfallAlert struct {
	ItemID                string `json:"item_id"`
	WarehouseID           string `json:"warehouse_id"`
	TransactionID         string `json:"transaction_id"`
	Quantity              string `json:"quantity"`
	UnitCostBase          string `json:"unit_cost_base"`
	CostPolicy            string `json:"cost_policy"`
	BalanceQuantity       string `json:"balance_quantity"`
	QuantityDrift         string `json:"quantity_drift,omitempty"`
	UnreconciledMovements int64  `json:"unreconciled_movements"`
}

// NewShortfallHandler creates a handler for shortfall events
func NewShortfallHandler(logger *zap.Logger) *ShortfallHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortfallHandler{logger: logger.Named("shortfall_handler")}
}

// WithNotifier sets the notifier for alerts
func (h *ShortfallHandler) WithNotifier(notifier ShortfallNotifier) *ShortfallHandler {
	h.notifier = notifier
	return h
}

// WithReconciler enables attaching the reconciliation diff to alerts
func (h *ShortfallHandler) WithReconciler(r Reconciler) *ShortfallHandler {
	h.reconciler = r
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *ShortfallHandler) EventTypes() []string {
	return []string{inventory.EventTypeShortfallRecorded}
}

// Handle processes a ShortfallRecordedEvent
func (h *ShortfallHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	shortfall, ok := event.(*inventory.ShortfallRecordedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeShortfallRecorded),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeShortfallRecorded, event.EventType())
	}

	alert := ShortfallAlert{
		ItemID:          shortfall.ItemID,
		WarehouseID:     shortfall.WarehouseID,
		TransactionID:   shortfall.TransactionID.String(),
		Quantity:        shortfall.Quantity.String(),
		UnitCostBase:    shortfall.UnitCostBase.String(),
		CostPolicy:      string(shortfall.CostPolicy),
		BalanceQuantity: shortfall.BalanceQuantity.String(),
	}

	if h.reconciler != nil {
		report, err := h.reconciler.Reconcile(ctx, shortfall.ItemID, shortfall.WarehouseID)
		if err != nil {
			h.logger.Debug("failed to reconcile for shortfall alert", zap.Error(err))
		} else {
			alert.QuantityDrift = report.QuantityDrift.String()
			alert.UnreconciledMovements = report.UnreconciledMovements
		}
	}

	h.logger.Warn("negative stock recorded",
		zap.String("item_id", alert.ItemID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("quantity", alert.Quantity),
		zap.String("balance_quantity", alert.BalanceQuantity),
		zap.String("cost_policy", alert.CostPolicy),
	)

	if h.notifier != nil {
		if err := h.notifier.NotifyShortfall(ctx, alert); err != nil {
			// the stock change is committed; a lost alert is logged, not retried
			h.logger.Error("failed to send shortfall alert",
				zap.String("item_id", alert.ItemID),
				zap.Error(err),
			)
		}
	}
	return nil
}

var _ shared.EventHandler = (*ShortfallHandler)(nil)

// LoggingShortfallNotifier writes alerts to the log
type LoggingShortfallNotifier struct {
	logger *zap.Logger
}

// NewLoggingShortfallNotifier creates a new logging notifier
func NewLoggingShortfallNotifier(logger *zap.Logger) *LoggingShortfallNotifier {
	return &LoggingShortfallNotifier{logger: logger}
}

// NotifyShortfall logs the alert
func (n *LoggingShortfallNotifier) NotifyShortfall(_ context.Context, alert ShortfallAlert) error {
	n.logger.Warn("SHORTFALL ALERT",
		zap.String("item_id", alert.ItemID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("quantity", alert.Quantity),
		zap.String("quantity_drift", alert.QuantityDrift),
		zap.Int64("unreconciled_movements", alert.UnreconciledMovements),
	)
	return nil
}

var _ ShortfallNotifier = (*LoggingShortfallNotifier)(nil)
