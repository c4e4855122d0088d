package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

const defaultTrailLimit = 50

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	Actor        Actor
	AssignmentID *uint
	Action       string
	EntityType   string
	EntityID     *uint
	Metadata     map[string]interface{}
}

// ActivityRecorder writes and reads the per-assignment audit trail.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (models.ActivityLog, error)
	Trail(ctx context.Context, assignmentID uint, beforeID uint, limit int) ([]models.ActivityLog, error)
}

type activityRecorder struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityRecorder constructs the activity recorder.
func NewActivityRecorder(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityRecorder {
	return &activityRecorder{
		repo:   repo,
		logger: logger.With().Str("component", "activity_recorder").Logger(),
	}
}

func (s *activityRecorder) Record(ctx context.Context, entry ActivityEntry) (models.ActivityLog, error) {
	action := strings.ToLower(strings.TrimSpace(entry.Action))
	entityType := strings.ToLower(strings.TrimSpace(entry.EntityType))
	if action == "" {
		return models.ActivityLog{}, fmt.Errorf("action is required")
	}
	if entityType == "" {
		return models.ActivityLog{}, fmt.Errorf("entity type is required")
	}

	model := models.ActivityLog{
		AssignmentID: entry.AssignmentID,
		ActorID:      entry.Actor.ID,
		ActorRole:    actorRoleOrSystem(entry.Actor),
		Action:       action,
		EntityType:   entityType,
		EntityID:     entry.EntityID,
		Metadata:     redactMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to persist activity log")
		return models.ActivityLog{}, err
	}

	return model, nil
}

func (s *activityRecorder) Trail(ctx context.Context, assignmentID uint, beforeID uint, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	return s.repo.List(ctx, repository.ActivityLogFilter{
		AssignmentID: &assignmentID,
		BeforeID:     beforeID,
		Limit:        limit,
	})
}

// redactMetadata masks contact details and credentials before they reach the audit table.
func redactMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	redacted := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			redacted[key] = "***"
			continue
		}
		redacted[key] = value
	}
	return redacted
}

// actorRoleOrSystem labels background work, such as the sweeper, as "system".
func actorRoleOrSystem(actor Actor) string {
	if role := actor.NormalizedRole(); role != "" {
		return role
	}
	return "system"
}
