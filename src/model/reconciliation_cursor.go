package model

import "time"

// CursorOrders names the high-water mark over venue order updates.
const CursorOrders = "orders"

// ReconciliationCursor is a per-entity high-water mark used to avoid
// reprocessing unchanged venue records on each poll. It is advanced only
// after a cycle completes without unrecoverable errors.
type ReconciliationCursor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:32;not null;uniqueIndex" json:"name"`
	Watermark time.Time `gorm:"not null" json:"watermark"`
	PageToken string    `gorm:"size:256" json:"page_token"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReconciliationCursor) TableName() string {
	return "reconciliation_cursors"
}
