package models

import (
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AssignmentType distinguishes plain homework from timed exams.
type AssignmentType string

const (
	// AssignmentTypeAssignment is a plain assignment governed by its due date only.
	AssignmentTypeAssignment AssignmentType = "assignment"
	// AssignmentTypeExam is an exam that may carry a per-student time limit.
	AssignmentTypeExam AssignmentType = "exam"
)

// DefaultMaxGrade is the grading ceiling used when an assignment does not set one.
const DefaultMaxGrade = 10.0

// Assignment represents an assignment or exam definition owned by a class.
type Assignment struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	ClassID          uint                        `gorm:"not null;index" json:"class_id"`
	Type             AssignmentType              `gorm:"size:16;not null" json:"type"`
	Title            string                      `gorm:"size:255;not null" json:"title"`
	Description      string                      `gorm:"type:text" json:"description"`
	AttachmentURL    string                      `gorm:"size:512" json:"attachment_url"`
	ReleaseAt        *time.Time                  `json:"release_at"`
	DueAt            *time.Time                  `gorm:"index" json:"due_at"`
	TimeLimitMinutes *int                        `json:"time_limit_minutes"`
	IsPublished      bool                        `gorm:"not null" json:"is_published"`
	AllowedFileTypes datatypes.JSONSlice[string] `json:"allowed_file_types"`
	MaxFileSizeMB    int                         `json:"max_file_size_mb"`
	MaxGrade         float64                     `gorm:"not null" json:"max_grade"`
	AllowLate        bool                        `gorm:"not null" json:"allow_late"`
	LateCutoffAt     *time.Time                  `json:"late_cutoff_at"`
	CreatedBy        uint                        `json:"created_by"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	Submissions      []Submission                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsExam reports whether the assignment is a timed exam.
func (a Assignment) IsExam() bool {
	return a.Type == AssignmentTypeExam
}

// TimeLimit returns the exam time limit, or zero when none is configured.
func (a Assignment) TimeLimit() time.Duration {
	if !a.IsExam() || a.TimeLimitMinutes == nil || *a.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute
}

// GradeCeiling returns the highest grade a submission may receive.
func (a Assignment) GradeCeiling() float64 {
	if a.MaxGrade <= 0 {
		return DefaultMaxGrade
	}
	return a.MaxGrade
}

// AcceptsLate reports whether uploads after the effective deadline are accepted as late work.
// Exams never accept late work.
func (a Assignment) AcceptsLate() bool {
	return a.AllowLate && !a.IsExam()
}

// AllowsFileName reports whether the file extension is in the allowed set.
// An empty set accepts any extension.
func (a Assignment) AllowsFileName(name string) bool {
	if len(a.AllowedFileTypes) == 0 {
		return true
	}

	ext := NormalizeExtension(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range a.AllowedFileTypes {
		if NormalizeExtension(allowed) == ext {
			return true
		}
	}
	return false
}

// FileSizeLimit returns the upload ceiling in bytes, falling back to defaultMB.
func (a Assignment) FileSizeLimit(defaultMB int) int64 {
	mb := a.MaxFileSizeMB
	if mb <= 0 {
		mb = defaultMB
	}
	if mb <= 0 {
		return 0
	}
	return int64(mb) * 1024 * 1024
}

// NormalizeExtension lower-cases an extension and strips the leading dot.
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}
