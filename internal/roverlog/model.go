package roverlog

import (
	"time"

	"github.com/aura-rover/aura-backend/internal/shared"
)

// Categories the rover and backend report against. The summary and
// bot answer paths key off these.
const (
	CategoryFire     = "fire"
	CategoryGas      = "gas"
	CategoryEdge     = "edge"
	CategoryObstacle = "obstacle"
	CategoryFaceRec  = "face_recognition"
	CategoryPatrol   = "patrol"
)

type Entry struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	Level     string         `json:"level"`
	Source    string         `json:"source,omitempty"`
	Category  string         `json:"category,omitempty" gorm:"index"`
	Message   string         `json:"message"`
	Data      shared.JSONMap `json:"data,omitempty" gorm:"type:json"`
}

func (Entry) TableName() string { return "system_logs" }
