package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// AutoCloseConfig tunes the background sweeper.
type AutoCloseConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
	LockKey  string
}

// AutoCloseService closes drafts whose window expired without an upload.
type AutoCloseService interface {
	AutoClose(ctx context.Context, assignmentID uint, actor Actor) (dto.AutoCloseResponse, error)
	Sweep(ctx context.Context) (dto.AutoCloseResponse, error)
	Run(ctx context.Context)
}

type autoCloseService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	access      accessGuard
	activity    ActivityRecorder
	publisher   events.Publisher
	redis       *redis.Client
	clock       clock.Clock
	config      AutoCloseConfig
	logger      zerolog.Logger
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewAutoCloseService constructs the auto-close service. The Redis client is
// optional; without it sweeps are not coordinated across replicas.
func NewAutoCloseService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, roster repository.RosterRepository, activity ActivityRecorder, publisher events.Publisher, redisClient *redis.Client, clk clock.Clock, cfg AutoCloseConfig, logger zerolog.Logger) AutoCloseService {
	if clk == nil {
		clk = clock.System()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "classroom:autoclose:lock"
	}

	return &autoCloseService{
		assignments: assignments,
		submissions: submissions,
		access:      accessGuard{roster: roster},
		activity:    activity,
		publisher:   publisher,
		redis:       redisClient,
		clock:       clk,
		config:      cfg,
		logger:      logger.With().Str("component", "autoclose_service").Logger(),
	}
}

func (s *autoCloseService) AutoClose(ctx context.Context, assignmentID uint, actor Actor) (dto.AutoCloseResponse, error) {
	if !actor.IsStaff() {
		return dto.AutoCloseResponse{}, ErrForbidden
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AutoCloseResponse{}, ErrAssignmentNotFound
		}
		return dto.AutoCloseResponse{}, err
	}
	if err := s.access.canManageClass(ctx, actor, assignment.ClassID); err != nil {
		return dto.AutoCloseResponse{}, err
	}

	drafts, err := s.submissions.ListOpenDrafts(ctx, &assignmentID)
	if err != nil {
		return dto.AutoCloseResponse{}, err
	}
	for i := range drafts {
		drafts[i].Assignment = assignment
	}

	result, err := s.closeDrafts(ctx, drafts, actor)
	result.AssignmentID = &assignmentID
	if err != nil {
		return result, err
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			Actor:        actor,
			AssignmentID: &assignmentID,
			Action:       "assignment.auto_closed",
			EntityType:   "assignment",
			EntityID:     &assignmentID,
			Metadata: map[string]interface{}{
				"scanned": result.Scanned,
				"closed":  result.Closed,
				"skipped": result.Skipped,
			},
		})
	}

	return result, nil
}

func (s *autoCloseService) Sweep(ctx context.Context) (dto.AutoCloseResponse, error) {
	start := time.Now()
	defer func() {
		observability.SweepDuration().Observe(time.Since(start).Seconds())
	}()

	token, acquired, err := s.acquireLock(ctx)
	if err != nil {
		return dto.AutoCloseResponse{}, err
	}
	if !acquired {
		return dto.AutoCloseResponse{Locked: true, ServerTime: s.clock.Now()}, nil
	}
	defer s.releaseLock(token)

	drafts, err := s.submissions.ListOpenDrafts(ctx, nil)
	if err != nil {
		return dto.AutoCloseResponse{}, err
	}

	return s.closeDrafts(ctx, drafts, Actor{Role: "system"})
}

func (s *autoCloseService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("auto-close sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("auto-close sweeper stopped")
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Error().Err(err).Msg("auto-close sweep failed")
				continue
			}
			if result.Locked {
				s.logger.Debug().Msg("auto-close sweep held by another replica")
				continue
			}
			if result.Closed > 0 || result.Skipped > 0 {
				s.logger.Info().
					Int("scanned", result.Scanned).
					Int("closed", result.Closed).
					Int("skipped", result.Skipped).
					Msg("auto-close sweep finished")
			}
		}
	}
}

// closeDrafts applies the auto-close transition to every expired draft. A draft
// that changed since it was listed is skipped; the concurrent write wins.
func (s *autoCloseService) closeDrafts(ctx context.Context, drafts []models.Submission, actor Actor) (dto.AutoCloseResponse, error) {
	now := s.clock.Now()
	result := dto.AutoCloseResponse{Scanned: len(drafts), ServerTime: now}

	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !window.ShouldAutoClose(draft.Assignment, draft, now) {
			continue
		}

		closed, err := s.submissions.AutoClose(ctx, draft.ID, draft.Version)
		if err != nil {
			observability.SubmissionTransitions().WithLabelValues("auto_close", "error").Inc()
			return result, err
		}
		if !closed {
			result.Skipped++
			observability.SubmissionTransitions().WithLabelValues("auto_close", "conflict").Inc()
			continue
		}

		result.Closed++
		observability.AutoClosed().Inc()
		observability.SubmissionTransitions().WithLabelValues("auto_close", "ok").Inc()

		if err := s.publisher.Publish(ctx, events.Event{
			Type:         events.SubmissionAutoClosed,
			AssignmentID: draft.AssignmentID,
			SubmissionID: draft.ID,
			StudentID:    draft.StudentID,
			ActorID:      actor.ID,
			Status:       string(models.SubmissionStatusAutoClosed),
			OccurredAt:   now,
		}); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", draft.ID).Msg("failed to publish auto-close event")
		}
	}

	return result, nil
}

func (s *autoCloseService) acquireLock(ctx context.Context) (string, bool, error) {
	if s.redis == nil {
		return "", true, nil
	}

	token := uuid.NewString()
	acquired, err := s.redis.SetNX(ctx, s.config.LockKey, token, s.config.LockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

func (s *autoCloseService) releaseLock(token string) {
	if s.redis == nil || token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLockScript.Run(ctx, s.redis, []string{s.config.LockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("failed to release auto-close lock")
	}
}
