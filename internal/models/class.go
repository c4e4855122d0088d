package models

import "time"

// Class groups students under a homeroom or subject teacher.
type Class struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	TeacherID uint      `gorm:"not null;index" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Enrollment links a student to a class roster.
type Enrollment struct {
	ClassID   uint      `gorm:"primaryKey;autoIncrement:false" json:"class_id"`
	StudentID uint      `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Student{},
		&Class{},
		&Enrollment{},
		&Assignment{},
		&Submission{},
		&SubmissionGradeHistory{},
		&ActivityLog{},
	}
}
