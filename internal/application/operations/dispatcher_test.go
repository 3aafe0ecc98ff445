package operations

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to the typed handler", func(t *testing.T) {
		d := NewDispatcher(zaptest.NewLogger(t))
		var got SaleCommand
		require.NoError(t, Register(d, func(_ context.Context, cmd SaleCommand) (*Result, error) {
			got = cmd
			return &Result{Route: cmd.Route(), DocID: cmd.DocID}, nil
		}))

		res, err := d.Dispatch(ctx, SaleCommand{DocID: "so-1"})
		require.NoError(t, err)
		assert.Equal(t, "so-1", got.DocID)
		assert.Equal(t, Route{ObjectSale, ActionPost}, res.Route)
	})

	t.Run("unknown route", func(t *testing.T) {
		d := NewDispatcher(nil)
		_, err := d.Dispatch(ctx, ReversalCommand{DocType: "SALE", DocID: "so-1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrHandlerNotRegistered))
		assert.Contains(t, err.Error(), "ANY_DOCUMENT/REVERSE")
	})

	t.Run("nil command", func(t *testing.T) {
		d := NewDispatcher(nil)
		_, err := d.Dispatch(ctx, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("duplicate registration", func(t *testing.T) {
		d := NewDispatcher(nil)
		h := func(context.Context, SaleCommand) (*Result, error) { return &Result{}, nil }
		require.NoError(t, Register(d, h))
		assert.True(t, errors.Is(Register(d, h), shared.ErrAlreadyExists))
	})

	t.Run("frozen dispatcher rejects registration", func(t *testing.T) {
		d := NewDispatcher(nil)
		d.Freeze()
		err := Register(d, func(context.Context, SaleCommand) (*Result, error) { return &Result{}, nil })
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		assert.Empty(t, d.Routes())
	})

	t.Run("nil handler", func(t *testing.T) {
		d := NewDispatcher(nil)
		var h Handler[SaleCommand]
		assert.True(t, errors.Is(Register(d, h), shared.ErrInvalidInput))
	})
}

func TestNewDefaultDispatcher(t *testing.T) {
	f := newOpsFixture(t)
	d, err := NewDefaultDispatcher(f.service, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []Route{
		{ObjectAnyDocument, ActionReverse},
		{ObjectSale, ActionPost},
		{ObjectSaleReturn, ActionPost},
		{ObjectStockAdjustment, ActionPost},
		{ObjectSupplyReceipt, ActionPost},
	}, d.Routes())

	err = Register(d, func(context.Context, SaleCommand) (*Result, error) { return nil, nil })
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	res, err := d.Dispatch(context.Background(), supplyReceipt("po-1"))
	require.NoError(t, err)
	require.NotNil(t, res.Posting)
	assert.Equal(t, "po-1", res.DocID)
}
