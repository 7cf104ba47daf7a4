package model

import "time"

// Account holds the broker-facing settings for one trading account. API
// credentials are stored encrypted and only decrypted when an account adapter
// is constructed.
type Account struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"size:100;not null" json:"name"`
	Broker string `gorm:"size:50;not null" json:"broker"`

	BaseURL            string `gorm:"size:255" json:"base_url,omitempty"`
	APIKeyEncrypted    string `gorm:"column:api_key;type:text" json:"-"`
	APISecretEncrypted string `gorm:"column:api_secret;type:text" json:"-"`

	// SupportsBracketOrders marks brokers that accept a single combined
	// take-profit/stop-loss order.
	SupportsBracketOrders bool `json:"supports_bracket_orders"`

	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for accounts.
func (Account) TableName() string {
	return "accounts"
}

// ExpertInstance is one configured LLM expert attached to an account. Only the
// settings consumed by the execution engine are modeled here.
type ExpertInstance struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"index" json:"account_id"`
	Name      string `gorm:"size:100;not null" json:"name"`

	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for expert instances.
func (ExpertInstance) TableName() string {
	return "expert_instances"
}

// Recommendation links an order back to the expert run that produced it. This
// is the second attribution path next to the transaction-owned one.
type Recommendation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExpertInstanceID uint      `gorm:"index" json:"expert_instance_id"`
	Symbol           string    `gorm:"size:100" json:"symbol"`
	Action           string    `gorm:"size:20" json:"action"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for recommendations.
func (Recommendation) TableName() string {
	return "recommendations"
}
