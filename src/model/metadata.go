package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TakeProfitDeferred captures a take-profit expressed as a percentage at order
// creation time, before the entry fill price is known. The absolute limit
// price is computed from the parent's fill price at activation.
type TakeProfitDeferred struct {
	Percent float64 `json:"percent"`
}

// StopLossDeferred is the stop-loss counterpart of TakeProfitDeferred.
type StopLossDeferred struct {
	Percent float64 `json:"percent"`
}

// OrderMetadata carries recalculation hints attached to an order. It replaces
// the schema-free key/value payload with a small set of typed variants decoded
// at the point of use.
type OrderMetadata struct {
	TakeProfit *TakeProfitDeferred `json:"take_profit,omitempty"`
	StopLoss   *StopLossDeferred   `json:"stop_loss,omitempty"`
}

// Value implements driver.Valuer so the metadata is stored as a JSON column.
func (m OrderMetadata) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *OrderMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = OrderMetadata{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}
}

// StringList stores a slice of broker-assigned leg identifiers as JSON.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported list column type %T", value)
	}
}
