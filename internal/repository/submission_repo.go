package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// GradeWrite carries the fields written when a teacher grades a submission.
type GradeWrite struct {
	Grade    float64
	Feedback string
	GradedBy uint
	GradedAt time.Time
}

// SubmissionRepository defines data operations for submissions.
//
// Student-side writes go through SaveState, which only succeeds when the stored
// version still matches the caller's copy. Grade is last-write-wins but still
// bumps the version so that concurrent student writes fail.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	ListOpenDrafts(ctx context.Context, assignmentID *uint) ([]models.Submission, error)
	EnsureDraft(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	StartExam(ctx context.Context, assignmentID, studentID uint, startedAt time.Time, personalDueAt *time.Time) (models.Submission, error)
	SaveState(ctx context.Context, submission *models.Submission) error
	AutoClose(ctx context.Context, id uint, version int64) (bool, error)
	Grade(ctx context.Context, id uint, write GradeWrite) (models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

var submissionKey = []clause.Column{{Name: "assignment_id"}, {Name: "student_id"}}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Preload("History", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("graded_at DESC").Order("id DESC")
		}).
		First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("assignment_id = ?", assignmentID).
		Order("student_id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// ListOpenDrafts returns drafts that never received an upload, with their assignment loaded.
func (r *submissionRepository) ListOpenDrafts(ctx context.Context, assignmentID *uint) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).
		Preload("Assignment").
		Where("status = ? AND uploaded_at IS NULL", models.SubmissionStatusDraft)

	if assignmentID != nil {
		query = query.Where("assignment_id = ?", *assignmentID)
	}

	var submissions []models.Submission
	if err := query.Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// EnsureDraft creates the student's draft if none exists and returns the stored row.
func (r *submissionRepository) EnsureDraft(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	draft := models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       models.SubmissionStatusDraft,
	}

	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: submissionKey, DoNothing: true}).
		Create(&draft).Error; err != nil {
		return models.Submission{}, err
	}

	return r.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
}

// StartExam stamps started_at exactly once: the row is created if absent and only
// updated while started_at is still NULL.
func (r *submissionRepository) StartExam(ctx context.Context, assignmentID, studentID uint, startedAt time.Time, personalDueAt *time.Time) (models.Submission, error) {
	var started models.Submission

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft := models.Submission{
			AssignmentID: assignmentID,
			StudentID:    studentID,
			Status:       models.SubmissionStatusDraft,
		}
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: submissionKey, DoNothing: true}).
			Create(&draft).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Submission{}).
			Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
			Where("started_at IS NULL AND status = ?", models.SubmissionStatusDraft).
			Updates(map[string]interface{}{
				"started_at":      startedAt,
				"personal_due_at": personalDueAt,
				"version":         gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyStarted
		}

		return tx.Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).First(&started).Error
	})
	if err != nil {
		return models.Submission{}, err
	}

	return started, nil
}

// SaveState persists the lifecycle and upload fields guarded by the submission version.
func (r *submissionRepository) SaveState(ctx context.Context, submission *models.Submission) error {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND version = ?", submission.ID, submission.Version).
		Updates(map[string]interface{}{
			"status":          submission.Status,
			"started_at":      submission.StartedAt,
			"personal_due_at": submission.PersonalDueAt,
			"uploaded_at":     submission.UploadedAt,
			"file_url":        submission.FileURL,
			"file_name":       submission.FileName,
			"file_size":       submission.FileSize,
			"content_type":    submission.ContentType,
			"file_checksum":   submission.FileChecksum,
			"is_late":         submission.IsLate,
			"version":         submission.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	submission.Version++
	return nil
}

// AutoClose moves a draft to auto_closed if nothing changed it since it was read.
func (r *submissionRepository) AutoClose(ctx context.Context, id uint, version int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND version = ?", id, version).
		Where("status = ? AND uploaded_at IS NULL", models.SubmissionStatusDraft).
		Updates(map[string]interface{}{
			"status":  models.SubmissionStatusAutoClosed,
			"version": version + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// Grade writes the grade fields, appends a history entry and returns the reloaded row.
func (r *submissionRepository) Grade(ctx context.Context, id uint, write GradeWrite) (models.Submission, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grade := write.Grade
		gradedBy := write.GradedBy
		gradedAt := write.GradedAt

		result := tx.Model(&models.Submission{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"grade":     &grade,
				"feedback":  write.Feedback,
				"status":    models.SubmissionStatusGraded,
				"graded_by": &gradedBy,
				"graded_at": &gradedAt,
				"version":   gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		history := models.SubmissionGradeHistory{
			SubmissionID: id,
			Grade:        write.Grade,
			Feedback:     write.Feedback,
			GradedBy:     write.GradedBy,
			GradedAt:     write.GradedAt,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return models.Submission{}, err
	}

	return r.GetByID(ctx, id)
}
