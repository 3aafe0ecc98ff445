package operations

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObjectCode names the kind of business document a command acts on
type ObjectCode string

const (
	ObjectSupplyReceipt   ObjectCode = "SUPPLY_RECEIPT"
	ObjectSale            ObjectCode = "SALE"
	ObjectSaleReturn      ObjectCode = "SALE_RETURN"
	ObjectStockAdjustment ObjectCode = "STOCK_ADJUSTMENT"
	ObjectAnyDocument     ObjectCode = "ANY_DOCUMENT"
)

// ActionCode names what is done to the document
type ActionCode string

const (
	ActionPost    ActionCode = "POST"
	ActionReverse ActionCode = "REVERSE"
)

// Route is the dispatch table key
type Route struct {
	Object ObjectCode `json:"object"`
	Action ActionCode `json:"action"`
}

// String returns OBJECT/ACTION
func (r Route) String() string {
	return string(r.Object) + "/" + string(r.Action)
}

// Command is a business operation routed through the Dispatcher.
// The set of commands is closed; only this package can add variants.
type Command interface {
	Route() Route
	documentID() string
}

// SupplyReceiptLine is one received item
type SupplyReceiptLine struct {
	LineID   string          `json:"line_id,omitempty"`
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Currency string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// SupplyReceiptCommand receives goods from a supplier into one warehouse
type SupplyReceiptCommand struct {
	DocID         string              `json:"doc_id" validate:"required"`
	LegalEntityID string              `json:"legal_entity_id"`
	WarehouseID   string              `json:"warehouse_id" validate:"required"`
	ReceivedAt    time.Time           `json:"received_at"`
	Lines         []SupplyReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

// SaleLine is one sold item
type SaleLine struct {
	LineID    string          `json:"line_id,omitempty"`
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Currency  string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// SaleCommand ships goods to a customer and books revenue and cost of goods
type SaleCommand struct {
	DocID         string     `json:"doc_id" validate:"required"`
	LegalEntityID string     `json:"legal_entity_id"`
	WarehouseID   string     `json:"warehouse_id" validate:"required"`
	PostingDate   time.Time  `json:"posting_date"`
	AllowNegative bool       `json:"allow_negative,omitempty"`
	Lines         []SaleLine `json:"lines" validate:"required,min=1,dive"`
}

// SaleReturnLine is one returned item. UnitCost values the goods coming back.
type SaleReturnLine struct {
	LineID       string          `json:"line_id,omitempty"`
	ItemID       string          `json:"item_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Currency     string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	UnitCost     decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	CostCurrency string          `json:"cost_currency,omitempty" validate:"omitempty,len=3"` // empty means the ledger base currency
}

// SaleReturnCommand takes goods back from a customer
type SaleReturnCommand struct {
	DocID         string           `json:"doc_id" validate:"required"`
	LegalEntityID string           `json:"legal_entity_id"`
	WarehouseID   string           `json:"warehouse_id" validate:"required"`
	PostingDate   time.Time        `json:"posting_date"`
	Lines         []SaleReturnLine `json:"lines" validate:"required,min=1,dive"`
}

// StockAdjustmentCommand corrects the quantity of one item@warehouse.
// A positive adjustment without UnitCost is valued at the last known cost.
type StockAdjustmentCommand struct {
	DocID         string           `json:"doc_id" validate:"required"`
	LineID        string           `json:"line_id,omitempty"`
	LegalEntityID string           `json:"legal_entity_id"`
	ItemID        string           `json:"item_id" validate:"required"`
	WarehouseID   string           `json:"warehouse_id" validate:"required"`
	Quantity      decimal.Decimal  `json:"quantity" validate:"ne=0"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
	Currency      string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	PostingDate   time.Time        `json:"posting_date"`
	Reason        string           `json:"reason,omitempty"`
}

// ReversalCommand reverses the ledger entries of a posted document
type ReversalCommand struct {
	DocType       string    `json:"doc_type" validate:"required"`
	DocID         string    `json:"doc_id" validate:"required"`
	ReversalDocID string    `json:"reversal_doc_id" validate:"required"`
	PostingDate   time.Time `json:"posting_date"`
}

// Route implements Command
func (SupplyReceiptCommand) Route() Route { return Route{ObjectSupplyReceipt, ActionPost} }

// Route implements Command
func (SaleCommand) Route() Route { return Route{ObjectSale, ActionPost} }

// Route implements Command
func (SaleReturnCommand) Route() Route { return Route{ObjectSaleReturn, ActionPost} }

// Route implements Command
func (StockAdjustmentCommand) Route() Route { return Route{ObjectStockAdjustment, ActionPost} }

// Route implements Command
func (ReversalCommand) Route() Route { return Route{ObjectAnyDocument, ActionReverse} }

func (c SupplyReceiptCommand) documentID() string   { return c.DocID }
func (c SaleCommand) documentID() string            { return c.DocID }
func (c SaleReturnCommand) documentID() string      { return c.DocID }
func (c StockAdjustmentCommand) documentID() string { return c.DocID }
func (c ReversalCommand) documentID() string        { return c.DocID }

// DocumentID returns the id of the document cmd acts on
func DocumentID(cmd Command) string {
	return cmd.documentID()
}
