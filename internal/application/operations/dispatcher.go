package operations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Handler executes one kind of command
type Handler[C Command] func(ctx context.Context, cmd C) (*Result, error)

type route func(ctx context.Context, cmd Command) (*Result, error)

// Dispatcher maps (ObjectCode, ActionCode) to a typed handler. Routes are
// registered at startup; after Freeze the table is read-only.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Route]route
	frozen   bool
	logger   *zap.Logger
}

// NewDispatcher creates an empty Dispatcher
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[Route]route),
		logger:   log.Named("dispatcher"),
	}
}

// Register binds the route of C to h. The route is taken from the zero value
// of C, so a handler can only be bound to the route its command declares.
func Register[C Command](d *Dispatcher, h Handler[C]) error {
	if h == nil {
		return fmt.Errorf("%w: handler cannot be nil", shared.ErrInvalidInput)
	}
	var zero C
	r := zero.Route()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return fmt.Errorf("%w: dispatcher is frozen, cannot register %s", shared.ErrInvalidState, r)
	}
	if _, exists := d.handlers[r]; exists {
		return fmt.Errorf("%w: route %s already registered", shared.ErrAlreadyExists, r)
	}
	d.handlers[r] = func(ctx context.Context, cmd Command) (*Result, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("%w: route %s expects %T, got %T", shared.ErrInvalidInput, r, zero, cmd)
		}
		return h(ctx, typed)
	}
	return nil
}

// Freeze forbids further registration
func (d *Dispatcher) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Dispatch runs the handler registered for the command's route. The handler
// sees a context tagged with the command's document.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (res *Result, err error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: command cannot be nil", shared.ErrInvalidInput)
	}
	r := cmd.Route()
	ctx, span := telemetry.StartSpan(ctx, "operations.dispatch",
		attribute.String("route", r.String()),
		attribute.String("doc_id", cmd.documentID()),
	)
	defer func() { telemetry.EndSpan(span, err) }()
	ctx, log := logger.WithDocument(ctx, d.logger, string(r.Object), cmd.documentID())

	d.mu.RLock()
	h, ok := d.handlers[r]
	d.mu.RUnlock()

	if !ok {
		log.Warn("no handler for route", zap.String("route", r.String()))
		return nil, fmt.Errorf("%w: %s", shared.ErrHandlerNotRegistered, r)
	}
	res, err = h(ctx, cmd)
	if err != nil {
		log.Debug("dispatch failed", zap.String("route", r.String()), zap.Error(err))
	}
	return res, err
}

// Routes returns the registered routes in a stable order
func (d *Dispatcher) Routes() []Route {
	d.mu.RLock()
	defer d.mu.RUnlock()

	routes := make([]Route, 0, len(d.handlers))
	for r := range d.handlers {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].String() < routes[j].String() })
	return routes
}

// NewDefaultDispatcher registers every use case of s and freezes the table
func NewDefaultDispatcher(s *Service, log *zap.Logger) (*Dispatcher, error) {
	d := NewDispatcher(log)
	for _, register := range []func() error{
		func() error { return Register(d, s.ReceiveSupply) },
		func() error { return Register(d, s.PostSale) },
		func() error { return Register(d, s.PostSaleReturn) },
		func() error { return Register(d, s.AdjustStock) },
		func() error { return Register(d, s.ReverseDocument) },
	} {
		if err := register(); err != nil {
			return nil, err
		}
	}
	d.Freeze()
	return d, nil
}
