package operations

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
)

// Envelope is the serialized form of a command: the route that selects the
// command type and the command itself
type Envelope struct {
	Object  ObjectCode      `json:"object"`
	Action  ActionCode      `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

var payloadDecoders = map[Route]func(json.RawMessage) (Command, error){
	{ObjectSupplyReceipt, ActionPost}:   decodePayload[SupplyReceiptCommand],
	{ObjectSale, ActionPost}:            decodePayload[SaleCommand],
	{ObjectSaleReturn, ActionPost}:      decodePayload[SaleReturnCommand],
	{ObjectStockAdjustment, ActionPost}: decodePayload[StockAdjustmentCommand],
	{ObjectAnyDocument, ActionReverse}:  decodePayload[ReversalCommand],
}

// NewEnvelope wraps cmd for transport
func NewEnvelope(cmd Command) (Envelope, error) {
	if cmd == nil {
		return Envelope{}, fmt.Errorf("%w: command cannot be nil", shared.ErrInvalidInput)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s command: %w", cmd.Route(), err)
	}
	r := cmd.Route()
	return Envelope{Object: r.Object, Action: r.Action, Payload: payload}, nil
}

// Route returns the route named by the envelope
func (e Envelope) Route() Route {
	return Route{Object: e.Object, Action: e.Action}
}

// Decode returns the typed command carried by the envelope. Unknown routes
// fail with ErrHandlerNotRegistered; unknown payload fields are rejected.
func (e Envelope) Decode() (Command, error) {
	r := e.Route()
	decode, ok := payloadDecoders[r]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrHandlerNotRegistered, r)
	}
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s command has no payload", shared.ErrInvalidInput, r)
	}
	cmd, err := decode(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", shared.ErrInvalidInput, r, err)
	}
	return cmd, nil
}

func decodePayload[C Command](raw json.RawMessage) (Command, error) {
	var cmd C
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
