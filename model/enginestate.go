package model

import (
	"time"

	"gorm.io/datatypes"
)

// EngineState holds the serialized progression-engine snapshot for one pilot:
// quest sets, objective progress, flags, arc status, event history and
// cooldown bookkeeping. One row per pilot, overwritten on every save.
type EngineState struct {
	PilotID   int64          `gorm:"primaryKey" json:"pilot_id"`
	Version   int            `gorm:"not null" json:"version"`
	Snapshot  datatypes.JSON `json:"snapshot"`
	SavedAt   time.Time      `gorm:"autoUpdateTime" json:"saved_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (EngineState) TableName() string { return "engine_states" }
