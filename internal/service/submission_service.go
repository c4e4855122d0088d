package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// SubmissionConfig tunes the student-facing submission workflow.
type SubmissionConfig struct {
	// DefaultMaxFileSizeMB applies when an assignment does not set its own ceiling.
	DefaultMaxFileSizeMB int
}

// SubmissionService drives the student side of the submission lifecycle.
type SubmissionService interface {
	Start(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error)
	Mine(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, assignmentID uint, file *multipart.FileHeader, actor Actor) (dto.SubmissionResponse, error)
	Unsubmit(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error)
}

type submissionService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	access      accessGuard
	uploader    FileUploader
	publisher   events.Publisher
	clock       clock.Clock
	config      SubmissionConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, roster repository.RosterRepository, uploader FileUploader, publisher events.Publisher, clk clock.Clock, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	if clk == nil {
		clk = clock.System()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.DefaultMaxFileSizeMB <= 0 {
		cfg.DefaultMaxFileSizeMB = 10
	}

	return &submissionService{
		assignments: assignments,
		submissions: submissions,
		access:      accessGuard{roster: roster},
		uploader:    uploader,
		publisher:   publisher,
		clock:       clk,
		config:      cfg,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/submission"),
	}
}

func (s *submissionService) Start(ctx context.Context, assignmentID uint, actor Actor) (resp dto.SubmissionResponse, err error) {
	ctx, span := s.startSpan(ctx, "submission.start", assignmentID, actor)
	defer func() { s.finish(span, "start", err) }()

	assignment, err := s.loadForStudent(ctx, assignmentID, actor)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.clock.Now()
	if err := checkStart(assignment, existing, now); err != nil {
		return dto.SubmissionResponse{}, err
	}

	personalDue := window.PersonalDeadline(assignment, now).Ptr()
	submission, err := s.submissions.StartExam(ctx, assignmentID, actor.ID, now, personalDue)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyStarted) {
			return dto.SubmissionResponse{}, ErrAlreadyStarted
		}
		return dto.SubmissionResponse{}, err
	}

	s.publish(ctx, events.SubmissionStarted, submission, actor)
	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("student_id", actor.ID).
		Time("started_at", now).
		Msg("exam started")

	return dto.NewSubmissionResponse(assignment, submission, now), nil
}

func (s *submissionService) Mine(ctx context.Context, assignmentID uint, actor Actor) (dto.SubmissionResponse, error) {
	assignment, err := s.loadForStudent(ctx, assignmentID, actor)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.clock.Now()
	if !window.IsOpenForRead(assignment, now) {
		return dto.SubmissionResponse{}, ErrAssignmentLocked
	}

	submission, err := s.submissions.EnsureDraft(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(assignment, submission, now), nil
}

func (s *submissionService) Submit(ctx context.Context, assignmentID uint, file *multipart.FileHeader, actor Actor) (resp dto.SubmissionResponse, err error) {
	ctx, span := s.startSpan(ctx, "submission.submit", assignmentID, actor)
	defer func() { s.finish(span, "submit", err) }()

	if file == nil {
		return dto.SubmissionResponse{}, ErrFileRequired
	}
	span.SetAttributes(
		attribute.String("submission.file_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("submission.request_size", file.Size),
	)

	assignment, err := s.loadForStudent(ctx, assignmentID, actor)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if _, err := checkSubmit(assignment, existing, s.clock.Now()); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := checkFile(assignment, file.Filename, file.Size, s.config.DefaultMaxFileSizeMB); err != nil {
		observability.UploadRejected().WithLabelValues(rejectReason(err)).Inc()
		return dto.SubmissionResponse{}, err
	}

	content, err := readUpload(file, assignment.FileSizeLimit(s.config.DefaultMaxFileSizeMB))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			observability.UploadRejected().WithLabelValues(rejectReason(err)).Inc()
		}
		return dto.SubmissionResponse{}, err
	}

	detected := mimetype.Detect(content)
	span.SetAttributes(attribute.String("submission.detected_mime", detected.String()))
	if err := checkContent(file.Filename, detected); err != nil {
		observability.UploadRejected().WithLabelValues(rejectReason(err)).Inc()
		return dto.SubmissionResponse{}, err
	}

	sum := sha256.Sum256(content)
	checksum := hex.EncodeToString(sum[:])
	if isDuplicateUpload(existing, checksum) {
		span.SetAttributes(attribute.Bool("submission.idempotent", true))
		return dto.NewSubmissionResponse(assignment, *existing, s.clock.Now()), nil
	}

	if s.uploader == nil {
		return dto.SubmissionResponse{}, fmt.Errorf("file uploads are not configured")
	}
	storageName := fmt.Sprintf("a%d-s%d-%s", assignmentID, actor.ID, sanitizeFileName(file.Filename))
	url, err := s.uploader.Upload(ctx, storageName, bytes.NewReader(content))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		return dto.SubmissionResponse{}, fmt.Errorf("failed to upload file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			discardUpload(ctx, s.uploader, url, s.logger)
		}
	}()

	var submission models.Submission
	if existing != nil {
		submission = *existing
	} else {
		submission, err = s.submissions.EnsureDraft(ctx, assignmentID, actor.ID)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}
	}

	// The upload may have taken a while; decide against the write-time clock.
	now := s.clock.Now()
	if _, err := checkSubmit(assignment, &submission, now); err != nil {
		return dto.SubmissionResponse{}, err
	}

	applySubmit(assignment, &submission, storedFile{
		URL:         url,
		Name:        filepath.Base(strings.TrimSpace(file.Filename)),
		Size:        int64(len(content)),
		ContentType: detected.String(),
		Checksum:    checksum,
	}, now)

	if err := s.submissions.SaveState(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.SubmissionResponse{}, ErrConflict
		}
		return dto.SubmissionResponse{}, err
	}
	committed = true

	span.SetAttributes(
		attribute.String("submission.status", string(submission.Status)),
		attribute.Bool("submission.late", submission.IsLate),
	)
	s.publish(ctx, events.SubmissionSubmitted, submission, actor)
	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("submission_id", submission.ID).
		Str("status", string(submission.Status)).
		Msg("submission uploaded")

	return dto.NewSubmissionResponse(assignment, submission, now), nil
}

func (s *submissionService) Unsubmit(ctx context.Context, assignmentID uint, actor Actor) (resp dto.SubmissionResponse, err error) {
	ctx, span := s.startSpan(ctx, "submission.unsubmit", assignmentID, actor)
	defer func() { s.finish(span, "unsubmit", err) }()

	assignment, err := s.loadForStudent(ctx, assignmentID, actor)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if existing == nil {
		return dto.SubmissionResponse{}, ErrNotSubmitted
	}
	submission := *existing

	now := s.clock.Now()
	if err := checkUnsubmit(assignment, submission, now); err != nil {
		return dto.SubmissionResponse{}, err
	}

	applyUnsubmit(&submission)
	if err := s.submissions.SaveState(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.SubmissionResponse{}, ErrConflict
		}
		return dto.SubmissionResponse{}, err
	}

	s.publish(ctx, events.SubmissionUnsubmitted, submission, actor)
	s.logger.Info().Uint("assignment_id", assignmentID).Uint("submission_id", submission.ID).Msg("submission withdrawn")

	return dto.NewSubmissionResponse(assignment, submission, now), nil
}

// loadForStudent returns a published assignment of a class the student attends.
func (s *submissionService) loadForStudent(ctx context.Context, assignmentID uint, actor Actor) (models.Assignment, error) {
	if !actor.IsStudent() {
		return models.Assignment{}, ErrForbidden
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if err := s.access.canAttendClass(ctx, actor, assignment.ClassID); err != nil {
		return models.Assignment{}, err
	}
	if !assignment.IsPublished {
		return models.Assignment{}, ErrAssignmentNotFound
	}

	return assignment, nil
}

func (s *submissionService) findExisting(ctx context.Context, assignmentID, studentID uint) (*models.Submission, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

func (s *submissionService) publish(ctx context.Context, eventType events.Type, submission models.Submission, actor Actor) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:         eventType,
		AssignmentID: submission.AssignmentID,
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		ActorID:      actor.ID,
		Status:       string(submission.Status),
		IsLate:       submission.IsLate,
		OccurredAt:   s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Uint("submission_id", submission.ID).Msg("failed to publish event")
	}
}

func (s *submissionService) startSpan(ctx context.Context, name string, assignmentID uint, actor Actor) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
	)
	return ctx, span
}

func (s *submissionService) finish(span trace.Span, transition string, err error) {
	defer span.End()

	outcome := transitionOutcome(err)
	observability.SubmissionTransitions().WithLabelValues(transition, outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return
	}
	span.SetStatus(codes.Ok, transition)
}

// readUpload reads the whole file, failing once more than limit bytes arrive.
func readUpload(file *multipart.FileHeader, limit int64) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	var reader io.Reader = src
	if limit > 0 {
		reader = io.LimitReader(src, limit+1)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, ErrFileTooLarge
	}
	return content, nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "upload"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFileType):
		return "type"
	case errors.Is(err, ErrFileTooLarge):
		return "size"
	default:
		return "other"
	}
}

var transitionOutcomes = []struct {
	err   error
	label string
}{
	{ErrAssignmentLocked, "locked"},
	{ErrDeadlinePassed, "deadline_passed"},
	{ErrAlreadyStarted, "already_started"},
	{ErrNotAnExam, "not_an_exam"},
	{ErrExamNotStarted, "exam_not_started"},
	{ErrInvalidFileType, "invalid_file_type"},
	{ErrFileTooLarge, "file_too_large"},
	{ErrCannotUnsubmitGraded, "graded"},
	{ErrSubmissionGraded, "graded"},
	{ErrNotSubmitted, "not_submitted"},
	{ErrConflict, "conflict"},
	{ErrForbidden, "forbidden"},
	{ErrAssignmentNotFound, "not_found"},
	{ErrSubmissionNotFound, "not_found"},
	{ErrGradeOutOfRange, "out_of_range"},
}

func transitionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, candidate := range transitionOutcomes {
		if errors.Is(err, candidate.err) {
			return candidate.label
		}
	}
	return "error"
}
