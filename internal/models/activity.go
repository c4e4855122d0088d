package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is an audit entry for lifecycle and grading actions. AssignmentID
// scopes the entry to an assignment's trail regardless of the entity touched.
type ActivityLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AssignmentID *uint             `gorm:"index" json:"assignment_id"`
	ActorID      uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole    string            `gorm:"size:32;not null" json:"actor_role"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	EntityType   string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID     *uint             `json:"entity_id"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
