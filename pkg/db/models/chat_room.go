package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatRoom struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProfessionalID uuid.UUID  `gorm:"column:professional_id;type:uuid;not null"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	HireID         *uuid.UUID `gorm:"column:hire_id;type:uuid"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *ChatRoom) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
