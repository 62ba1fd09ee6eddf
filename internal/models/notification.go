package models

import (
	"time"
)

type PotNotification struct {
	ID        string     `gorm:"type:char(36);primaryKey" json:"id"`
	PotID     string     `gorm:"type:char(36);index" json:"pot_id"`
	UserID    string     `gorm:"size:64;not null;index" json:"user_id"`
	Type      string     `gorm:"size:50;not null;index" json:"type"`
	Title     string     `gorm:"size:255" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	Metadata  string     `gorm:"type:text" json:"metadata"` // JSON payload
	IsRead    bool       `gorm:"not null" json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

func (PotNotification) TableName() string {
	return "pot_notifications"
}
