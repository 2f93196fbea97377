package storage

import (
	"time"

	"gorm.io/gorm"
)

// ApplyRecord is one successfully applied wallpaper change.
type ApplyRecord struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	Phase    string `json:"phase"`
	Instance string `json:"instance"`
	File     string `json:"file"`
}
