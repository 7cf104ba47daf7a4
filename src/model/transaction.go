package model

import "time"

// Transaction status constants. CLOSED is terminal; CLOSING may be retried
// back to OPENED or WAITING when a closing instruction fails.
const (
	TransactionStatusWaiting = "WAITING"
	TransactionStatusOpened  = "OPENED"
	TransactionStatusClosing = "CLOSING"
	TransactionStatusClosed  = "CLOSED"
)

// Transaction groups one or more orders (an entry plus its protective legs)
// under a single economic position.
type Transaction struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	AccountID  uint     `gorm:"index" json:"account_id"`
	Symbol     string   `gorm:"size:100" json:"symbol"`
	Quantity   float64  `json:"quantity"` // signed: positive long, negative short
	OpenPrice  *float64 `json:"open_price,omitempty"`
	ClosePrice *float64 `json:"close_price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`

	Status   string `gorm:"size:50;not null;default:WAITING;index" json:"status"`
	ExpertID *uint  `gorm:"index" json:"expert_id,omitempty"`

	OpenDate  *time.Time `json:"open_date,omitempty"`
	CloseDate *time.Time `json:"close_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// A transaction owns its child orders: deleting the transaction deletes
	// the orders with it.
	Orders []Order `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"orders,omitempty"`
}

// TableName allows you to control the exact table name for transactions.
func (Transaction) TableName() string {
	return "transactions"
}

// IsTerminalTransactionStatus reports whether the transaction status is final.
func IsTerminalTransactionStatus(status string) bool {
	return status == TransactionStatusClosed
}
