package dto

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// GradeSubmissionRequest is the teacher payload for grading one submission.
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"omitempty,max=5000"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                uint                             `json:"id"`
	AssignmentID      uint                             `json:"assignment_id"`
	StudentID         uint                             `json:"student_id"`
	Status            string                           `json:"status"`
	StartedAt         *time.Time                       `json:"started_at"`
	PersonalDueAt     *time.Time                       `json:"personal_due_at"`
	EffectiveDeadline *time.Time                       `json:"effective_deadline"`
	OpenForWrite      bool                             `json:"open_for_write"`
	UploadedAt        *time.Time                       `json:"uploaded_at"`
	FileURL           string                           `json:"file_url"`
	FileName          string                           `json:"file_name"`
	FileSize          int64                            `json:"file_size"`
	ContentType       string                           `json:"content_type"`
	IsLate            bool                             `json:"is_late"`
	Grade             *float64                         `json:"grade"`
	Feedback          string                           `json:"feedback"`
	GradedBy          *uint                            `json:"graded_by"`
	GradedAt          *time.Time                       `json:"graded_at"`
	History           []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	Assignment        AssignmentLite                   `json:"assignment"`
	Student           *StudentLite                     `json:"student,omitempty"`
	ServerTime        time.Time                        `json:"server_time"`
	CreatedAt         time.Time                        `json:"created_at"`
	UpdatedAt         time.Time                        `json:"updated_at"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID    uint       `json:"id"`
	Type  string     `json:"type"`
	Title string     `json:"title"`
	DueAt *time.Time `json:"due_at"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Grade    float64   `json:"grade"`
	Feedback string    `json:"feedback"`
	GradedBy uint      `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID            uint   `json:"id"`
	StudentNumber string `json:"student_number,omitempty"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

// SubmissionListResponse is the teacher's batch view of one assignment.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Summary    map[string]int       `json:"summary"`
	ServerTime time.Time            `json:"server_time"`
}

// personalDueAt is the stored exam deadline, or the due date for plain assignments.
func personalDueAt(assignment models.Assignment, model models.Submission) *time.Time {
	if assignment.IsExam() {
		return model.PersonalDueAt
	}
	return assignment.DueAt
}

// NewSubmissionResponse projects a submission evaluated against its assignment at now.
func NewSubmissionResponse(assignment models.Assignment, model models.Submission, now time.Time) SubmissionResponse {
	response := SubmissionResponse{
		ID:                model.ID,
		AssignmentID:      model.AssignmentID,
		StudentID:         model.StudentID,
		Status:            string(model.Status),
		StartedAt:         model.StartedAt,
		PersonalDueAt:     personalDueAt(assignment, model),
		EffectiveDeadline: window.EffectiveDeadline(assignment, &model).Ptr(),
		OpenForWrite:      window.IsOpenForWrite(assignment, &model, now),
		UploadedAt:        model.UploadedAt,
		FileURL:           model.FileURL,
		FileName:          model.FileName,
		FileSize:          model.FileSize,
		ContentType:       model.ContentType,
		IsLate:            model.IsLate,
		Grade:             model.Grade,
		Feedback:          model.Feedback,
		GradedBy:          model.GradedBy,
		GradedAt:          model.GradedAt,
		Assignment: AssignmentLite{
			ID:    assignment.ID,
			Type:  string(assignment.Type),
			Title: assignment.Title,
			DueAt: assignment.DueAt,
		},
		ServerTime: now,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}

	if model.Student.ID != 0 {
		response.Student = &StudentLite{
			ID:            model.Student.ID,
			StudentNumber: model.Student.StudentNumber,
			Name:          model.Student.Name,
			Email:         model.Student.Email,
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Grade:    entry.Grade,
				Feedback: entry.Feedback,
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionListResponse converts the submissions of one assignment and counts them by status.
func NewSubmissionListResponse(assignment models.Assignment, submissions []models.Submission, now time.Time) SubmissionListResponse {
	items := make([]SubmissionResponse, 0, len(submissions))
	summary := map[string]int{
		string(models.SubmissionStatusDraft):      0,
		string(models.SubmissionStatusSubmitted):  0,
		string(models.SubmissionStatusLate):       0,
		string(models.SubmissionStatusGraded):     0,
		string(models.SubmissionStatusAutoClosed): 0,
	}

	for _, submission := range submissions {
		items = append(items, NewSubmissionResponse(assignment, submission, now))
		summary[string(submission.Status)]++
	}

	return SubmissionListResponse{Items: items, Summary: summary, ServerTime: now}
}

// AutoCloseResponse reports the outcome of an auto-close pass.
type AutoCloseResponse struct {
	AssignmentID *uint     `json:"assignment_id,omitempty"`
	Scanned      int       `json:"scanned"`
	Closed       int       `json:"closed"`
	Skipped      int       `json:"skipped"`
	Locked       bool      `json:"locked"`
	ServerTime   time.Time `json:"server_time"`
}
