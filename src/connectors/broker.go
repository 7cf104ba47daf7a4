package connectors

import "context"

// SubmitOrderRequest is the broker-neutral order submission payload built by
// the trigger service.
type SubmitOrderRequest struct {
	ClientOrderID string   `json:"client_order_id"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	OrderType     string   `json:"order_type"`
	Quantity      float64  `json:"quantity"`
	LimitPrice    *float64 `json:"limit_price,omitempty"`
	StopPrice     *float64 `json:"stop_price,omitempty"`

	// Bracket legs, only set when the broker supports combined orders.
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
}

// SubmitOrderResult carries the broker-assigned identifiers. LegBrokerIDs is
// populated for bracket/OCO submissions where the broker creates one id per
// leg.
type SubmitOrderResult struct {
	BrokerOrderID string   `json:"broker_order_id"`
	LegBrokerIDs  []string `json:"leg_broker_ids,omitempty"`
}

// BrokerGateway is the contract the execution engine holds against a broker
// adapter. Implementations must be safe for concurrent use and must time out
// on their own: callers never hold in-process locks across these calls.
type BrokerGateway interface {
	Submit(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error)
	Cancel(ctx context.Context, brokerOrderID string) error
	SupportsBracketOrders() bool
}

// PriceOracle exposes current market prices. A nil price means the price is
// unavailable right now, which callers treat as a defined "unknown" result.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, symbol string) (*float64, error)
	CurrentPrices(ctx context.Context, symbols []string) (map[string]*float64, error)
}
