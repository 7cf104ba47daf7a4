package model

import "time"

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

const (
	OrderTypeMarket    = "market"
	OrderTypeLimit     = "limit"
	OrderTypeStop      = "stop"
	OrderTypeStopLimit = "stop_limit"
	OrderTypeOCO       = "oco"
)

const (
	OpenTypeAutomatic = "AUTOMATIC"
	OpenTypeManual    = "MANUAL"
)

// Order status constants represent the lifecycle of a broker-facing order.
const (
	OrderStatusUnknown         = "UNKNOWN"
	OrderStatusPending         = "PENDING"
	OrderStatusOpen            = "OPEN"
	OrderStatusNew             = "NEW"
	OrderStatusAccepted        = "ACCEPTED"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusError           = "ERROR"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusWaitingTrigger  = "WAITING_TRIGGER"
	OrderStatusClosed          = "CLOSED"
)

// IsExecutedStatus reports whether the status means the order has (at least
// partially) filled at the broker.
func IsExecutedStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// IsOpenStatus reports whether the order is still live and unfilled from the
// broker's point of view, including orders not yet submitted.
func IsOpenStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusOpen, OrderStatusNew,
		OrderStatusAccepted, OrderStatusWaitingTrigger:
		return true
	}
	return false
}

// IsTerminalStatus reports whether the status is final. A terminal order never
// transitions again. ERROR is deliberately not terminal: it is recoverable via
// an explicit retry back to PENDING.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired, OrderStatusClosed:
		return true
	}
	return false
}

// Order represents one broker-facing trading instruction.
type Order struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	AccountID     uint   `gorm:"index" json:"account_id"`
	TransactionID *uint  `gorm:"index" json:"transaction_id,omitempty"`
	Symbol        string `gorm:"size:100" json:"symbol"`
	Side          string `gorm:"size:10" json:"side"`
	OrderType     string `gorm:"size:20" json:"order_type"`

	Quantity       float64  `json:"quantity"`
	FilledQuantity float64  `json:"filled_quantity"`
	FillPrice      *float64 `json:"fill_price,omitempty"`
	LimitPrice     *float64 `json:"limit_price,omitempty"`
	StopPrice      *float64 `json:"stop_price,omitempty"`

	Status        string `gorm:"size:50;not null;default:PENDING;index" json:"status"`
	BrokerOrderID string `gorm:"size:255;index" json:"broker_order_id,omitempty"`

	// Dependency fields. DependsOnOrder chains this order to a parent whose
	// status must reach DependsOrderStatusTrigger before this order may be
	// submitted to the broker. ParentOrderID is a distinct relation grouping
	// OCO siblings under a shared parent.
	DependsOnOrder            *uint      `gorm:"index" json:"depends_on_order,omitempty"`
	DependsOrderStatusTrigger *string    `gorm:"size:50" json:"depends_order_status_trigger,omitempty"`
	ParentOrderID             *uint      `gorm:"index" json:"parent_order_id,omitempty"`
	LegsBrokerIDs             StringList `gorm:"type:text" json:"legs_broker_ids,omitempty"`

	// Provenance.
	RecommendationID *uint          `gorm:"index" json:"recommendation_id,omitempty"`
	Comment          string         `gorm:"size:512" json:"comment,omitempty"`
	OpenType         string         `gorm:"size:20;not null;default:AUTOMATIC" json:"open_type"`
	Metadata         *OrderMetadata `gorm:"type:text" json:"metadata,omitempty"`
	ErrorMessage     string         `gorm:"size:1024" json:"error_message,omitempty"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// One-to-many relation: one order can have many audit log entries.
	Logs []OrderLog `gorm:"foreignKey:OrderID" json:"order_logs,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsProtective reports whether the order is a protective leg (take-profit or
// stop-loss) chained to an entry order rather than opening exposure itself.
func (o *Order) IsProtective() bool {
	return o.DependsOnOrder != nil
}

// RemainingQuantity returns the quantity not yet filled at the broker.
func (o *Order) RemainingQuantity() float64 {
	remaining := o.Quantity - o.FilledQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}
