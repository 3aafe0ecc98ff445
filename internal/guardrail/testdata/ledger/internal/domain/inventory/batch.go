package inventory

type StockBatch struct{ ID string }

type InventoryBalance struct{ ItemID string }

func NewStockBatch(id string) *StockBatch { return &StockBatch{ID: id} }
