package model

import (
	"time"

	"gorm.io/datatypes"
)

// Pilot is a player's spacefaring character. Skills and faction reputation
// are open-ended string-keyed maps stored as JSON columns; the engine treats
// them as the live state read by every requirement check.
type Pilot struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  int64          `gorm:"index:idx_account_pilot;not null" json:"account_id"`
	Name       string         `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Level      int            `gorm:"default:1" json:"level"`
	Experience int64          `gorm:"default:0" json:"experience"`
	Credits    int64          `gorm:"default:0" json:"credits"`
	Skills     datatypes.JSON `json:"skills"`     // {"combat": 3, "trading": 1, ...}
	Reputation datatypes.JSON `json:"reputation"` // {"traders_guild": 25, ...}
	Location   string         `gorm:"size:64" json:"location"`
	Docked     bool           `gorm:"default:true" json:"docked"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
