package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// Roles understood by the service.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	ID   uint
	Role string
}

// NormalizedRole returns the lower-cased role.
func (a Actor) NormalizedRole() string {
	return strings.ToLower(strings.TrimSpace(a.Role))
}

// IsStaff reports whether the actor is a teacher or admin.
func (a Actor) IsStaff() bool {
	role := a.NormalizedRole()
	return role == RoleAdmin || role == RoleTeacher
}

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool {
	return a.NormalizedRole() == RoleStudent
}

type accessGuard struct {
	roster repository.RosterRepository
}

// canManageClass allows admins and the class teacher.
func (g accessGuard) canManageClass(ctx context.Context, actor Actor, classID uint) error {
	class, err := g.roster.GetClass(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	switch actor.NormalizedRole() {
	case RoleAdmin:
		return nil
	case RoleTeacher:
		if actor.ID != 0 && class.TeacherID == actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

// canAttendClass allows students enrolled in the class.
func (g accessGuard) canAttendClass(ctx context.Context, actor Actor, classID uint) error {
	if !actor.IsStudent() || actor.ID == 0 {
		return ErrForbidden
	}

	enrolled, err := g.roster.IsEnrolled(ctx, classID, actor.ID)
	if err != nil {
		return err
	}
	if !enrolled {
		return ErrForbidden
	}
	return nil
}

// canViewClass allows managers and enrolled students.
func (g accessGuard) canViewClass(ctx context.Context, actor Actor, classID uint) error {
	if actor.IsStudent() {
		return g.canAttendClass(ctx, actor, classID)
	}
	return g.canManageClass(ctx, actor, classID)
}
