// models/gorm_models.go
package models

import (
	"time"
)

// GormDocument is the row backing one versioned key-value document.
type GormDocument struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;size:255;not null"`
	Version   int    `gorm:"not null;default:1"`
	Data      string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name so every storage backend shares it.
func (GormDocument) TableName() string {
	return "soundbeats_documents"
}
