package models

import "time"

const (
	CourtStatusAvailable = "available"
	CourtStatusOccupied  = "occupied"
)

type Court struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	SessionID   string    `json:"session_id" gorm:"not null;index"`
	CourtName   string    `json:"court_name" gorm:"not null"`
	CourtNumber int       `json:"court_number" gorm:"not null"`
	Status      string    `json:"status" gorm:"default:'available'"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *Court) IsAvailable() bool {
	return c.Status == CourtStatusAvailable
}
