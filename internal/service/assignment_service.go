package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

const discardTimeout = 10 * time.Second

// discardUpload removes a stored file that no row ended up referencing.
func discardUpload(ctx context.Context, uploader FileUploader, url string, logger zerolog.Logger) {
	if uploader == nil || url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()

	if err := uploader.Delete(ctx, url); err != nil {
		logger.Warn().Err(err).Str("file_url", url).Msg("failed to discard orphaned upload")
	}
}

// AssignmentService exposes assignment and exam definition use cases.
type AssignmentService interface {
	List(ctx context.Context, classID uint, req dto.AssignmentListRequest, actor Actor) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error)
	Create(ctx context.Context, classID uint, payload dto.AssignmentCreateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint, actor Actor) error
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	access    accessGuard
	validator *validator.Validate
	uploader  FileUploader
	activity  ActivityRecorder
	policy    *bluemonday.Policy
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, roster repository.RosterRepository, validate *validator.Validate, uploader FileUploader, activity ActivityRecorder, clk clock.Clock, logger zerolog.Logger) AssignmentService {
	if clk == nil {
		clk = clock.System()
	}
	return &assignmentService{
		repo:      repo,
		access:    accessGuard{roster: roster},
		validator: validate,
		uploader:  uploader,
		activity:  activity,
		policy:    bluemonday.UGCPolicy(),
		clock:     clk,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) List(ctx context.Context, classID uint, req dto.AssignmentListRequest, actor Actor) (dto.AssignmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentListResponse{}, err
	}
	if err := s.access.canViewClass(ctx, actor, classID); err != nil {
		return dto.AssignmentListResponse{}, err
	}

	filter := repository.AssignmentFilter{
		ClassID:       classID,
		PublishedOnly: actor.IsStudent(),
		Search:        strings.TrimSpace(req.Search),
		Sort:          req.Sort,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	now := s.clock.Now()
	items := dto.NewAssignmentResponseSlice(assignments, now)
	if actor.IsStudent() {
		for i := range items {
			if !items[i].OpenForRead {
				hideContent(&items[i])
			}
		}
	}

	return dto.AssignmentListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
		ServerTime: now,
	}, nil
}

func (s *assignmentService) Get(ctx context.Context, id uint, actor Actor) (dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.access.canViewClass(ctx, actor, assignment.ClassID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	now := s.clock.Now()
	if actor.IsStudent() {
		if !assignment.IsPublished {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		if !window.IsOpenForRead(assignment, now) {
			return dto.AssignmentResponse{}, ErrAssignmentLocked
		}
	}

	return dto.NewAssignmentResponse(assignment, now), nil
}

func (s *assignmentService) Create(ctx context.Context, classID uint, payload dto.AssignmentCreateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := s.access.canManageClass(ctx, actor, classID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		ClassID:          classID,
		Type:             models.AssignmentType(payload.Type),
		Title:            strings.TrimSpace(payload.Title),
		Description:      s.policy.Sanitize(strings.TrimSpace(payload.Description)),
		TimeLimitMinutes: payload.TimeLimitMinutes,
		IsPublished:      payload.IsPublished,
		AllowedFileTypes: normalizeFileTypes(payload.AllowedFileTypes),
		MaxFileSizeMB:    payload.MaxFileSizeMB,
		MaxGrade:         models.DefaultMaxGrade,
		AllowLate:        payload.AllowLate,
		CreatedBy:        actor.ID,
	}
	if payload.MaxGrade != nil {
		assignment.MaxGrade = *payload.MaxGrade
	}

	var err error
	if assignment.ReleaseAt, _, err = parseInstant("release_at", payload.ReleaseAt); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if assignment.DueAt, _, err = parseInstant("due_at", payload.DueAt); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if assignment.LateCutoffAt, _, err = parseInstant("late_cutoff_at", payload.LateCutoffAt); err != nil {
		return dto.AssignmentResponse{}, err
	}

	now := s.clock.Now()
	if assignment.DueAt != nil && !assignment.DueAt.After(now) {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: due_at must be in the future", ErrInvalidWindow)
	}
	if err := validateWindow(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if file != nil {
		url, err := s.uploadFile(ctx, file)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.AttachmentURL = url
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		discardUpload(ctx, s.uploader, assignment.AttachmentURL, s.logger)
		return dto.AssignmentResponse{}, err
	}

	s.record(ctx, actor, "assignment.created", assignment)
	s.logger.Info().Uint("assignment_id", assignment.ID).Uint("class_id", classID).Str("type", string(assignment.Type)).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment, now), nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := s.access.canManageClass(ctx, actor, assignment.ClassID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.TouchesWindow() {
		count, err := s.repo.CountSubmissions(ctx, id)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		if count > 0 {
			return dto.AssignmentResponse{}, ErrWindowFrozen
		}
	}

	if payload.Type != nil {
		assignment.Type = models.AssignmentType(*payload.Type)
	}
	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		assignment.Description = s.policy.Sanitize(strings.TrimSpace(*payload.Description))
	}
	if payload.TimeLimitMinutes != nil {
		if *payload.TimeLimitMinutes == 0 {
			assignment.TimeLimitMinutes = nil
		} else {
			limit := *payload.TimeLimitMinutes
			assignment.TimeLimitMinutes = &limit
		}
	}
	if payload.IsPublished != nil {
		assignment.IsPublished = *payload.IsPublished
	}
	if payload.AllowedFileTypes != nil {
		assignment.AllowedFileTypes = normalizeFileTypes(*payload.AllowedFileTypes)
	}
	if payload.MaxFileSizeMB != nil {
		assignment.MaxFileSizeMB = *payload.MaxFileSizeMB
	}
	if payload.MaxGrade != nil {
		assignment.MaxGrade = *payload.MaxGrade
	}
	if payload.AllowLate != nil {
		assignment.AllowLate = *payload.AllowLate
	}

	if err := applyInstant("release_at", payload.ReleaseAt, &assignment.ReleaseAt); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := applyInstant("due_at", payload.DueAt, &assignment.DueAt); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := applyInstant("late_cutoff_at", payload.LateCutoffAt, &assignment.LateCutoffAt); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := validateWindow(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	var uploaded string
	if file != nil {
		url, err := s.uploadFile(ctx, file)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		uploaded = url
		assignment.AttachmentURL = url
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		discardUpload(ctx, s.uploader, uploaded, s.logger)
		return dto.AssignmentResponse{}, err
	}

	s.record(ctx, actor, "assignment.updated", assignment)
	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment, s.clock.Now()), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint, actor Actor) error {
	assignment, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.canManageClass(ctx, actor, assignment.ClassID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.record(ctx, actor, "assignment.deleted", assignment)
	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")
	return nil
}

func (s *assignmentService) load(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) record(ctx context.Context, actor Actor, action string, assignment models.Assignment) {
	if s.activity == nil {
		return
	}
	id := assignment.ID
	_, _ = s.activity.Record(ctx, ActivityEntry{
		Actor:        actor,
		AssignmentID: &id,
		Action:       action,
		EntityType:   "assignment",
		EntityID:     &id,
		Metadata: map[string]interface{}{
			"class_id": assignment.ClassID,
			"type":     string(assignment.Type),
			"title":    assignment.Title,
		},
	})
}

func (s *assignmentService) uploadFile(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("file uploads are not configured")
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	url, err := s.uploader.Upload(ctx, file.Filename, src)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return url, nil
}

// validateWindow enforces the timing invariants of an assignment definition.
func validateWindow(a models.Assignment) error {
	if a.TimeLimitMinutes != nil && !a.IsExam() {
		return fmt.Errorf("%w: time_limit_minutes is only valid for exams", ErrInvalidWindow)
	}
	if a.ReleaseAt != nil && a.DueAt != nil && !a.ReleaseAt.Before(*a.DueAt) {
		return fmt.Errorf("%w: release_at must be before due_at", ErrInvalidWindow)
	}
	if a.AllowLate && a.IsExam() {
		return fmt.Errorf("%w: exams do not accept late submissions", ErrInvalidWindow)
	}
	if a.LateCutoffAt != nil {
		if !a.AllowLate {
			return fmt.Errorf("%w: late_cutoff_at requires allow_late", ErrInvalidWindow)
		}
		if a.DueAt == nil || !a.LateCutoffAt.After(*a.DueAt) {
			return fmt.Errorf("%w: late_cutoff_at must be after due_at", ErrInvalidWindow)
		}
	}
	return nil
}

// parseInstant parses an optional RFC3339 instant. An empty string yields nil with cleared set.
func parseInstant(field string, value *string) (*time.Time, bool, error) {
	if value == nil {
		return nil, false, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, true, nil
	}

	parsed, err := time.Parse(dto.IsoLayout, trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("%w: invalid %s: %v", ErrInvalidWindow, field, err)
	}
	parsed = parsed.UTC()
	return &parsed, false, nil
}

func applyInstant(field string, value *string, target **time.Time) error {
	parsed, cleared, err := parseInstant(field, value)
	if err != nil {
		return err
	}
	if parsed != nil || cleared {
		*target = parsed
	}
	return nil
}

func normalizeFileTypes(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			ext := models.NormalizeExtension(part)
			if ext == "" {
				continue
			}
			if _, ok := seen[ext]; ok {
				continue
			}
			seen[ext] = struct{}{}
			normalized = append(normalized, ext)
		}
	}
	return normalized
}

func hideContent(item *dto.AssignmentResponse) {
	item.Description = ""
	item.AttachmentURL = ""
}
