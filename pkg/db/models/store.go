package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

// Store is a marketplace storefront with a paid plan tier.
type Store struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID   uuid.UUID           `gorm:"column:owner_user_id;type:uuid;not null"`
	Name          string              `gorm:"column:name;not null"`
	PlanTier      enums.StorePlanTier `gorm:"column:plan_tier;not null;default:'free'"`
	PlanExpiresAt *time.Time          `gorm:"column:plan_expires_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
