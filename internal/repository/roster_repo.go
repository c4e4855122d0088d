package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// RosterRepository answers class ownership and enrolment questions.
type RosterRepository interface {
	GetClass(ctx context.Context, classID uint) (models.Class, error)
	IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error)
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository builds a roster repository over the classes and enrollments tables.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) GetClass(ctx context.Context, classID uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *rosterRepository) IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
