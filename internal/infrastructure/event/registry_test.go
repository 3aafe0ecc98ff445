package event

import (
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	consumed := newRecordingHandler()
	all := newRecordingHandler()

	r.Register(consumed, "inventory.stock_consumed", "inventory.shortfall_recorded")
	r.Register(consumed, "inventory.stock_consumed")
	r.Register(all)
	r.Register(all)

	assert.Equal(t, []shared.EventHandler{consumed, all}, r.Handlers("inventory.stock_consumed"))
	assert.Equal(t, []shared.EventHandler{all}, r.Handlers("finance.entries_posted"))
	assert.Equal(t, 2, r.Len())

	r.Unregister(consumed)
	assert.Equal(t, []shared.EventHandler{all}, r.Handlers("inventory.shortfall_recorded"))
	assert.Equal(t, 1, r.Len())

	r.Unregister(all)
	assert.Empty(t, r.Handlers("inventory.stock_consumed"))
	assert.Equal(t, 0, r.Len())
}
