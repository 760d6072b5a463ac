package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records engine transitions worth keeping outside the snapshot:
// quest completions and failures, event resolutions, admin actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PilotID   *int64         `gorm:"index:idx_audit_pilot" json:"pilot_id"`
	AccountID *int64         `json:"account_id"`
	PilotName string         `gorm:"size:32" json:"pilot_name"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Detail    datatypes.JSON `json:"detail"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
