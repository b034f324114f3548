package model

import "time"

// Transaction types, matching the numeric codes the reporting fold
// switches on.
const (
	TransactionScan          = 1
	TransactionActionApplied = 2
	TransactionLockoutChange = 3
)

// Transaction is one immutable record in the append-only local log.
// Data holds the JSON-encoded event payload.
type Transaction struct {
	ID   int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type int       `gorm:"column:transaction_type;not null" json:"type"`
	Time time.Time `gorm:"column:transaction_time;not null;index" json:"time"`
	Data string    `gorm:"column:transaction_data" json:"data"`
}

func (Transaction) TableName() string { return "transactions" }
