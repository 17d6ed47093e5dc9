package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/enums"
)

// Notification is an in-app message addressed to a single customer.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	OrderID   *uuid.UUID             `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	EventID   uuid.UUID              `gorm:"column:event_id;type:uuid;not null;uniqueIndex" json:"event_id"`
	Type      enums.NotificationType `gorm:"column:type;not null" json:"type"`
	Title     string                 `gorm:"column:title;not null" json:"title"`
	Message   string                 `gorm:"column:message;not null" json:"message"`
	Link      *string                `gorm:"column:link" json:"link,omitempty"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
