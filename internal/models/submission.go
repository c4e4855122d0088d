package models

import "time"

// SubmissionStatus enumerates the lifecycle states of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusDraft indicates no file is currently handed in.
	SubmissionStatusDraft SubmissionStatus = "draft"
	// SubmissionStatusSubmitted indicates the file was uploaded on time.
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	// SubmissionStatusLate indicates the file was uploaded after the effective deadline.
	SubmissionStatusLate SubmissionStatus = "late"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded SubmissionStatus = "graded"
	// SubmissionStatusAutoClosed indicates the window expired without an upload.
	SubmissionStatusAutoClosed SubmissionStatus = "auto_closed"
)

// Submission is the single record a student holds against an assignment.
type Submission struct {
	ID            uint                     `gorm:"primaryKey" json:"id"`
	AssignmentID  uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID     uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student;index" json:"student_id"`
	Status        SubmissionStatus         `gorm:"size:32;not null;index" json:"status"`
	StartedAt     *time.Time               `json:"started_at"`
	PersonalDueAt *time.Time               `json:"personal_due_at"`
	UploadedAt    *time.Time               `json:"uploaded_at"`
	FileURL       string                   `gorm:"size:512" json:"file_url"`
	FileName      string                   `gorm:"size:255" json:"file_name"`
	FileSize      int64                    `json:"file_size"`
	ContentType   string                   `gorm:"size:128" json:"content_type"`
	FileChecksum  string                   `gorm:"size:64" json:"-"`
	IsLate        bool                     `gorm:"not null" json:"is_late"`
	Grade         *float64                 `json:"grade"`
	Feedback      string                   `gorm:"type:text" json:"feedback"`
	GradedBy      *uint                    `json:"graded_by"`
	GradedAt      *time.Time               `json:"graded_at"`
	Version       int64                    `gorm:"not null" json:"version"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	Assignment    Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student       Student                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	History       []SubmissionGradeHistory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"history,omitempty"`
}

// SubmissionGradeHistory keeps every grade written to a submission.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Grade        float64   `gorm:"not null" json:"grade"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     uint      `gorm:"not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// HasUpload reports whether a file is currently handed in.
func (s Submission) HasUpload() bool {
	return s.Status == SubmissionStatusSubmitted || s.Status == SubmissionStatusLate
}

// ClearUpload removes every file-related field.
func (s *Submission) ClearUpload() {
	s.UploadedAt = nil
	s.FileURL = ""
	s.FileName = ""
	s.FileSize = 0
	s.ContentType = ""
	s.FileChecksum = ""
	s.IsLate = false
}
