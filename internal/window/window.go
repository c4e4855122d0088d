// Package window evaluates assignment release windows and per-student deadlines.
//
// Every time-based decision in the service goes through this package so the
// rules live in one place. All boundaries are inclusive: an instant equal to a
// release time or a deadline is inside the window.
package window

import (
	"time"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

// Deadline is an instant that may be unbounded.
type Deadline struct {
	At      time.Time
	Bounded bool
}

// Unbounded is the deadline of an assignment without a due date.
var Unbounded = Deadline{}

// At builds a bounded deadline.
func At(t time.Time) Deadline {
	return Deadline{At: t, Bounded: true}
}

// FromPtr converts an optional instant into a deadline.
func FromPtr(t *time.Time) Deadline {
	if t == nil {
		return Unbounded
	}
	return At(*t)
}

// Ptr returns the deadline as an optional instant, nil when unbounded.
func (d Deadline) Ptr() *time.Time {
	if !d.Bounded {
		return nil
	}
	at := d.At
	return &at
}

// Allows reports whether now is at or before the deadline.
func (d Deadline) Allows(now time.Time) bool {
	return !d.Bounded || !now.After(d.At)
}

// Passed reports whether now is strictly after the deadline.
func (d Deadline) Passed(now time.Time) bool {
	return !d.Allows(now)
}

// Earliest returns the earlier of two deadlines, treating unbounded as infinitely late.
func Earliest(a, b Deadline) Deadline {
	switch {
	case !a.Bounded:
		return b
	case !b.Bounded:
		return a
	case b.At.Before(a.At):
		return b
	default:
		return a
	}
}

// IsReleased reports whether the release time has been reached.
func IsReleased(a models.Assignment, now time.Time) bool {
	return a.ReleaseAt == nil || !now.Before(*a.ReleaseAt)
}

// IsOpenForRead reports whether students may see the assignment.
func IsOpenForRead(a models.Assignment, now time.Time) bool {
	return a.IsPublished && IsReleased(a, now)
}

// IsOpenForWrite reports whether the student may still hand in or withdraw work on time.
// A nil submission is treated as a fresh draft.
func IsOpenForWrite(a models.Assignment, s *models.Submission, now time.Time) bool {
	if !IsOpenForRead(a, now) {
		return false
	}
	if s != nil && (s.Status == models.SubmissionStatusGraded || s.Status == models.SubmissionStatusAutoClosed) {
		return false
	}
	return EffectiveDeadline(a, s).Allows(now)
}

// EffectiveDeadline returns the per-student cutoff. It is defined for every input:
// plain assignments and exams not yet started use the due date; started exams use
// the earlier of the due date and start plus time limit.
func EffectiveDeadline(a models.Assignment, s *models.Submission) Deadline {
	due := FromPtr(a.DueAt)
	if !a.IsExam() || s == nil || s.StartedAt == nil {
		return due
	}

	limit := a.TimeLimit()
	if limit <= 0 {
		return due
	}

	return Earliest(due, At(s.StartedAt.Add(limit)))
}

// PersonalDeadline is the effective deadline for an exam started at startedAt.
func PersonalDeadline(a models.Assignment, startedAt time.Time) Deadline {
	return EffectiveDeadline(a, &models.Submission{StartedAt: &startedAt})
}

// Cutoff returns the last instant an upload is accepted at all. For assignments
// accepting late work this is the late cutoff, otherwise the effective deadline.
func Cutoff(a models.Assignment, s *models.Submission) Deadline {
	if a.AcceptsLate() {
		return FromPtr(a.LateCutoffAt)
	}
	return EffectiveDeadline(a, s)
}

// IsLate reports whether an upload at the given instant misses the effective deadline.
func IsLate(a models.Assignment, s *models.Submission, at time.Time) bool {
	return EffectiveDeadline(a, s).Passed(at)
}

// Verdict classifies an upload attempt.
type Verdict int

const (
	// Rejected means no upload is possible at this instant.
	Rejected Verdict = iota
	// OnTime means the upload meets the effective deadline.
	OnTime
	// Late means the upload misses the effective deadline but is still accepted.
	Late
)

// AcceptsUpload classifies an upload attempt at now. Lock and status checks are
// the caller's responsibility; this only answers the timing question.
func AcceptsUpload(a models.Assignment, s *models.Submission, now time.Time) Verdict {
	if EffectiveDeadline(a, s).Allows(now) {
		return OnTime
	}
	if a.AcceptsLate() && Cutoff(a, s).Allows(now) {
		return Late
	}
	return Rejected
}

// ShouldAutoClose reports whether a draft without upload has outlived every
// chance to be handed in.
func ShouldAutoClose(a models.Assignment, s models.Submission, now time.Time) bool {
	if s.Status != models.SubmissionStatusDraft || s.UploadedAt != nil {
		return false
	}
	cutoff := Cutoff(a, &s)
	return cutoff.Bounded && cutoff.Passed(now)
}
