package model

import (
	"strconv"
	"time"
)

// Task type constants enumerate the background work the queue can schedule.
const (
	TaskTypeAnalysis            = "analysis"
	TaskTypeSmartRiskManager    = "smart_risk_manager"
	TaskTypeInstrumentExpansion = "instrument_expansion"
)

// Task status constants.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// PersistedTask mirrors an in-memory queue item in durable storage. Rows exist
// only to support crash recovery: they are deleted once the task reaches a
// terminal state and has been reported.
type PersistedTask struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TaskID   string `gorm:"size:100;uniqueIndex" json:"task_id"`
	TaskType string `gorm:"size:50;not null;index" json:"task_type"`
	Status   string `gorm:"size:20;not null;default:pending;index" json:"status"`
	Priority int    `gorm:"not null" json:"priority"` // lower = more urgent

	ExpertInstanceID uint  `gorm:"index" json:"expert_instance_id"`
	AccountID        *uint `gorm:"index" json:"account_id,omitempty"`

	// Type-specific payload.
	Symbol                 string `gorm:"size:100" json:"symbol,omitempty"`
	Subtype                string `gorm:"size:100" json:"subtype,omitempty"`
	BatchID                string `gorm:"size:100" json:"batch_id,omitempty"`
	ExpansionType          string `gorm:"size:100" json:"expansion_type,omitempty"`
	BypassBalanceCheck     bool   `json:"bypass_balance_check"`
	BypassTransactionCheck bool   `json:"bypass_transaction_check"`

	ErrorMessage string `gorm:"size:1024" json:"error_message,omitempty"`

	// QueueCounter preserves submission order within a priority so restored
	// tasks come back in the exact order they were enqueued.
	QueueCounter uint64     `gorm:"not null;index" json:"queue_counter"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// TableName allows you to control the exact table name for persisted tasks.
func (PersistedTask) TableName() string {
	return "persisted_tasks"
}

// IdentityKey returns the type+identity tuple used to reject duplicate active
// scheduling of the same logical work.
func (t *PersistedTask) IdentityKey() string {
	key := t.TaskType + "|" + strconv.FormatUint(uint64(t.ExpertInstanceID), 10)
	switch t.TaskType {
	case TaskTypeInstrumentExpansion:
		key += "|" + t.ExpansionType
	case TaskTypeAnalysis:
		key += "|" + t.Symbol + "|" + t.Subtype
	}
	return key
}
