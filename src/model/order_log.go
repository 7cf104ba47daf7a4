package model

import "time"

// OrderLog stores an audit snapshot of an order at the moment something
// changed: creation, a status transition, or a repricing. Log rows are written
// in the same database transaction as the change they describe.
type OrderLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Foreign key to Order
	OrderID uint   `gorm:"index" json:"order_id"`
	Order   *Order `gorm:"constraint:OnDelete:CASCADE" json:"order,omitempty"`

	// Snapshot of the order at the moment of this log entry
	AccountID  uint     `gorm:"index" json:"account_id"`
	Symbol     string   `gorm:"size:100" json:"symbol"`
	Side       string   `gorm:"size:10" json:"side"`
	OrderType  string   `gorm:"size:20" json:"order_type"`
	Quantity   float64  `json:"quantity"`
	FilledQty  float64  `json:"filled_qty"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	StopPrice  *float64 `json:"stop_price,omitempty"`

	Status    string    `gorm:"size:50;not null" json:"status"`
	Reason    string    `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for order logs.
func (OrderLog) TableName() string {
	return "order_logs"
}
