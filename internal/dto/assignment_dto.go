package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// IsoLayout is the timestamp layout accepted in request payloads.
const IsoLayout = time.RFC3339

// MaxFileSizeCeilingMB is the largest max_file_size_mb an assignment may set.
// Keep it in sync with the lte tags below.
const MaxFileSizeCeilingMB = 100

// AssignmentCreateRequest describes the payload for creating an assignment or exam.
type AssignmentCreateRequest struct {
	Type             string   `form:"type" json:"type" validate:"required,oneof=assignment exam"`
	Title            string   `form:"title" json:"title" validate:"required,min=3,max=255"`
	Description      string   `form:"description" json:"description" validate:"omitempty,max=20000"`
	ReleaseAt        *string  `form:"release_at" json:"release_at" validate:"omitempty,max=64"`
	DueAt            *string  `form:"due_at" json:"due_at" validate:"omitempty,max=64"`
	TimeLimitMinutes *int     `form:"time_limit_minutes" json:"time_limit_minutes" validate:"omitempty,gt=0,lte=1440"`
	IsPublished      bool     `form:"is_published" json:"is_published"`
	AllowedFileTypes []string `form:"allowed_file_types" json:"allowed_file_types" validate:"omitempty,max=20,dive,required,max=16"`
	MaxFileSizeMB    int      `form:"max_file_size_mb" json:"max_file_size_mb" validate:"gte=0,lte=100"`
	MaxGrade         *float64 `form:"max_grade" json:"max_grade" validate:"omitempty,gt=0,lte=1000"`
	AllowLate        bool     `form:"allow_late" json:"allow_late"`
	LateCutoffAt     *string  `form:"late_cutoff_at" json:"late_cutoff_at" validate:"omitempty,max=64"`
}

// AssignmentUpdateRequest describes a partial update. An empty string clears an optional instant.
type AssignmentUpdateRequest struct {
	Type             *string   `form:"type" json:"type" validate:"omitempty,oneof=assignment exam"`
	Title            *string   `form:"title" json:"title" validate:"omitempty,min=3,max=255"`
	Description      *string   `form:"description" json:"description" validate:"omitempty,max=20000"`
	ReleaseAt        *string   `form:"release_at" json:"release_at" validate:"omitempty,max=64"`
	DueAt            *string   `form:"due_at" json:"due_at" validate:"omitempty,max=64"`
	TimeLimitMinutes *int      `form:"time_limit_minutes" json:"time_limit_minutes" validate:"omitempty,gte=0,lte=1440"`
	IsPublished      *bool     `form:"is_published" json:"is_published"`
	AllowedFileTypes *[]string `form:"allowed_file_types" json:"allowed_file_types" validate:"omitempty,max=20,dive,required,max=16"`
	MaxFileSizeMB    *int      `form:"max_file_size_mb" json:"max_file_size_mb" validate:"omitempty,gte=0,lte=100"`
	MaxGrade         *float64  `form:"max_grade" json:"max_grade" validate:"omitempty,gt=0,lte=1000"`
	AllowLate        *bool     `form:"allow_late" json:"allow_late"`
	LateCutoffAt     *string   `form:"late_cutoff_at" json:"late_cutoff_at" validate:"omitempty,max=64"`
}

// TouchesWindow reports whether the update changes any timing field.
func (r AssignmentUpdateRequest) TouchesWindow() bool {
	return r.Type != nil || r.ReleaseAt != nil || r.DueAt != nil || r.TimeLimitMinutes != nil ||
		r.AllowLate != nil || r.LateCutoffAt != nil
}

// AssignmentListRequest captures query parameters for listing a class's assignments.
type AssignmentListRequest struct {
	Search   string `query:"search" validate:"omitempty,max=100"`
	Sort     string `query:"sort" validate:"omitempty,max=32"`
	Page     int    `query:"page" validate:"gte=0"`
	PageSize int    `query:"page_size" validate:"gte=0,lte=100"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID               uint       `json:"id"`
	ClassID          uint       `json:"class_id"`
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	AttachmentURL    string     `json:"attachment_url"`
	ReleaseAt        *time.Time `json:"release_at"`
	DueAt            *time.Time `json:"due_at"`
	TimeLimitMinutes *int       `json:"time_limit_minutes"`
	IsPublished      bool       `json:"is_published"`
	AllowedFileTypes []string   `json:"allowed_file_types"`
	MaxFileSizeMB    int        `json:"max_file_size_mb"`
	MaxGrade         float64    `json:"max_grade"`
	AllowLate        bool       `json:"allow_late"`
	LateCutoffAt     *time.Time `json:"late_cutoff_at"`
	OpenForRead      bool       `json:"open_for_read"`
	ServerTime       time.Time  `json:"server_time"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AssignmentListResponse wraps a page of assignments.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
	ServerTime time.Time            `json:"server_time"`
}

// NewAssignmentResponse converts a model into a DTO evaluated at now.
func NewAssignmentResponse(model models.Assignment, now time.Time) AssignmentResponse {
	fileTypes := []string(model.AllowedFileTypes)
	if fileTypes == nil {
		fileTypes = []string{}
	}

	return AssignmentResponse{
		ID:               model.ID,
		ClassID:          model.ClassID,
		Type:             string(model.Type),
		Title:            model.Title,
		Description:      model.Description,
		AttachmentURL:    model.AttachmentURL,
		ReleaseAt:        model.ReleaseAt,
		DueAt:            model.DueAt,
		TimeLimitMinutes: model.TimeLimitMinutes,
		IsPublished:      model.IsPublished,
		AllowedFileTypes: fileTypes,
		MaxFileSizeMB:    model.MaxFileSizeMB,
		MaxGrade:         model.GradeCeiling(),
		AllowLate:        model.AllowLate,
		LateCutoffAt:     model.LateCutoffAt,
		OpenForRead:      window.IsOpenForRead(model, now),
		ServerTime:       now,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, now time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, now))
	}

	return responses
}
