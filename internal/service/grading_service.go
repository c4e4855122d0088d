package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// GradingService encapsulates the teacher side of the submission lifecycle.
type GradingService interface {
	ListSubmissions(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionListResponse, error)
	Grade(ctx context.Context, assignmentID, submissionID uint, payload dto.GradeSubmissionRequest, actor Actor) (dto.SubmissionResponse, error)
	Activity(ctx context.Context, assignmentID uint, req dto.ActivityTrailRequest, actor Actor) (dto.ActivityTrailResponse, error)
}

type gradingService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	access      accessGuard
	validator   *validator.Validate
	activity    ActivityRecorder
	publisher   events.Publisher
	policy      *bluemonday.Policy
	clock       clock.Clock
	logger      zerolog.Logger
}

// NewGradingService constructs the grading service.
func NewGradingService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, roster repository.RosterRepository, validate *validator.Validate, activity ActivityRecorder, publisher events.Publisher, clk clock.Clock, logger zerolog.Logger) GradingService {
	if clk == nil {
		clk = clock.System()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &gradingService{
		assignments: assignments,
		submissions: submissions,
		access:      accessGuard{roster: roster},
		validator:   validate,
		activity:    activity,
		publisher:   publisher,
		policy:      bluemonday.StrictPolicy(),
		clock:       clk,
		logger:      logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) ListSubmissions(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionListResponse, error) {
	assignment, err := s.loadForStaff(ctx, assignmentID, actor)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.NewSubmissionListResponse(assignment, submissions, s.clock.Now()), nil
}

func (s *gradingService) Grade(ctx context.Context, assignmentID, submissionID uint, payload dto.GradeSubmissionRequest, actor Actor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	fail := func(err error, status string) (dto.SubmissionResponse, error) {
		observability.SubmissionTransitions().WithLabelValues("grade", transitionOutcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.SubmissionResponse{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail(err, "validation_failed")
	}

	assignment, err := s.loadForStaff(ctx, assignmentID, actor)
	if err != nil {
		return fail(err, "assignment_lookup_failed")
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(ErrSubmissionNotFound, "submission_not_found")
		}
		return fail(err, "submission_lookup_failed")
	}
	if submission.AssignmentID != assignment.ID {
		return fail(ErrSubmissionNotFound, "submission_not_found")
	}

	grade := *payload.Grade
	if grade < 0 || grade > assignment.GradeCeiling()+1e-9 {
		return fail(ErrGradeOutOfRange, "grade_out_of_range")
	}

	feedback := strings.TrimSpace(s.policy.Sanitize(payload.Feedback))

	isIdempotent := submission.IsGraded() &&
		submission.Grade != nil && math.Abs(*submission.Grade-grade) < 1e-6 &&
		strings.TrimSpace(submission.Feedback) == feedback &&
		submission.GradedBy != nil && *submission.GradedBy == actor.ID
	if isIdempotent {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(assignment, submission, s.clock.Now()), nil
	}

	previousStatus := submission.Status
	now := s.clock.Now()
	graded, err := s.submissions.Grade(ctx, submission.ID, repository.GradeWrite{
		Grade:    grade,
		Feedback: feedback,
		GradedBy: actor.ID,
		GradedAt: now,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(ErrSubmissionNotFound, "submission_not_found")
		}
		return fail(err, "submission_update_failed")
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			Actor:        actor,
			AssignmentID: &graded.AssignmentID,
			Action:       "submission.graded",
			EntityType:   "submission",
			EntityID:     &graded.ID,
			Metadata: map[string]interface{}{
				"assignment_id":   graded.AssignmentID,
				"student_id":      graded.StudentID,
				"grade":           grade,
				"previous_status": string(previousStatus),
			},
		})
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:         events.SubmissionGraded,
		AssignmentID: graded.AssignmentID,
		SubmissionID: graded.ID,
		StudentID:    graded.StudentID,
		ActorID:      actor.ID,
		Status:       string(graded.Status),
		IsLate:       graded.IsLate,
		OccurredAt:   now,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", graded.ID).Msg("failed to publish grading event")
	}

	observability.SubmissionTransitions().WithLabelValues("grade", "ok").Inc()
	span.SetAttributes(
		attribute.Float64("grading.grade", grade),
		attribute.String("grading.previous_status", string(previousStatus)),
	)
	span.SetStatus(codes.Ok, "graded")
	s.logger.Info().
		Uint("submission_id", graded.ID).
		Uint("graded_by", actor.ID).
		Float64("grade", grade).
		Msg("submission graded")

	return dto.NewSubmissionResponse(assignment, graded, now), nil
}

// Activity returns the assignment's audit trail, newest first.
func (s *gradingService) Activity(ctx context.Context, assignmentID uint, req dto.ActivityTrailRequest, actor Actor) (dto.ActivityTrailResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityTrailResponse{}, err
	}
	if _, err := s.loadForStaff(ctx, assignmentID, actor); err != nil {
		return dto.ActivityTrailResponse{}, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultTrailLimit
	}
	if s.activity == nil {
		return dto.NewActivityTrailResponse(assignmentID, nil, limit, s.clock.Now()), nil
	}
	entries, err := s.activity.Trail(ctx, assignmentID, req.BeforeID, limit)
	if err != nil {
		return dto.ActivityTrailResponse{}, err
	}

	return dto.NewActivityTrailResponse(assignmentID, entries, limit, s.clock.Now()), nil
}

func (s *gradingService) loadForStaff(ctx context.Context, assignmentID uint, actor Actor) (models.Assignment, error) {
	if !actor.IsStaff() {
		return models.Assignment{}, ErrForbidden
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if err := s.access.canManageClass(ctx, actor, assignment.ClassID); err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}
