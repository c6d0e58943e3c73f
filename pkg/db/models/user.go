package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// User is the paying account; only the subscription columns are owned here.
type User struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Email                 string                 `gorm:"column:email;not null"`
	Name                  string                 `gorm:"column:name;not null"`
	SubscriptionPlan      enums.SubscriptionPlan `gorm:"column:subscription_plan;not null;default:'BASIC'"`
	SubscriptionExpiresAt *time.Time             `gorm:"column:subscription_expires_at"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
