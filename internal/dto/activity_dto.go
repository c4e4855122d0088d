package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// ActivityTrailRequest pages backwards through an assignment's audit trail.
type ActivityTrailRequest struct {
	BeforeID uint `query:"before_id"`
	Limit    int  `query:"limit" validate:"gte=0,lte=200"`
}

// ActivityResponse is one audit entry as shown to teachers.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ActivityTrailResponse wraps a page of the trail. NextBeforeID is zero on the last page.
type ActivityTrailResponse struct {
	AssignmentID uint               `json:"assignment_id"`
	Items        []ActivityResponse `json:"items"`
	NextBeforeID uint               `json:"next_before_id,omitempty"`
	ServerTime   time.Time          `json:"server_time"`
}

// NewActivityTrailResponse converts log entries; a full page advertises the cursor for the next one.
func NewActivityTrailResponse(assignmentID uint, entries []models.ActivityLog, limit int, now time.Time) ActivityTrailResponse {
	items := make([]ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		metadata := map[string]interface{}{}
		for key, value := range entry.Metadata {
			metadata[key] = value
		}
		items = append(items, ActivityResponse{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			ActorRole:  entry.ActorRole,
			Action:     entry.Action,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Metadata:   metadata,
			CreatedAt:  entry.CreatedAt,
		})
	}

	response := ActivityTrailResponse{AssignmentID: assignmentID, Items: items, ServerTime: now}
	if limit > 0 && len(entries) == limit {
		response.NextBeforeID = entries[len(entries)-1].ID
	}
	return response
}
