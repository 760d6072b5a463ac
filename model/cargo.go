package model

import "time"

// CargoItem is a single item stack in a pilot's hold. Rows are written by the
// reward sink when a quest or event grants items.
type CargoItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PilotID   int64     `gorm:"uniqueIndex:idx_pilot_item;not null" json:"pilot_id"`
	ItemID    string    `gorm:"uniqueIndex:idx_pilot_item;size:64;not null" json:"item_id"`
	Qty       int       `gorm:"default:1" json:"qty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
