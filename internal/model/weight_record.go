package model

import "time"

// WeightRecord is one persisted scale reading.
type WeightRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Weight     float64   `gorm:"not null" json:"weight"`
	ObservedAt time.Time `gorm:"not null;index" json:"observedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}
