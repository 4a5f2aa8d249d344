package model

import "time"

// TradingGateRowID is the primary key of the single gate row. Exactly one
// row exists at all times.
const TradingGateRowID = 1

// TradingGate is the global kill switch consulted before any
// order-submitting operation.
type TradingGate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Active    bool      `gorm:"not null;default:false" json:"active"`
	Reason    string    `gorm:"size:512" json:"reason"`
	ChangedAt time.Time `gorm:"not null" json:"changed_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TradingGate) TableName() string {
	return "trading_gate"
}

// GateTransition is the append-only audit trail of gate flips. A row is
// written in the same transaction as the gate update, before any externally
// visible response.
type GateTransition struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Active    bool      `gorm:"not null" json:"active"`
	Reason    string    `gorm:"size:512" json:"reason"`
	ChangedBy string    `gorm:"size:128" json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (GateTransition) TableName() string {
	return "gate_transitions"
}
