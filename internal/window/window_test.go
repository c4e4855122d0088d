package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/models"
)

var base = time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func intPtr(v int) *int {
	return &v
}

func plainAssignment(due *time.Time) models.Assignment {
	return models.Assignment{
		ID:          1,
		Type:        models.AssignmentTypeAssignment,
		IsPublished: true,
		DueAt:       due,
	}
}

func exam(due *time.Time, limit int) models.Assignment {
	return models.Assignment{
		ID:               2,
		Type:             models.AssignmentTypeExam,
		IsPublished:      true,
		DueAt:            due,
		TimeLimitMinutes: intPtr(limit),
	}
}

func TestIsOpenForRead(t *testing.T) {
	cases := []struct {
		name       string
		assignment models.Assignment
		now        time.Time
		want       bool
	}{
		{"unpublished", models.Assignment{IsPublished: false}, base, false},
		{"published without release", models.Assignment{IsPublished: true}, base, true},
		{"before release", models.Assignment{IsPublished: true, ReleaseAt: timePtr(base)}, base.Add(-time.Second), false},
		{"at release", models.Assignment{IsPublished: true, ReleaseAt: timePtr(base)}, base, true},
		{"after release", models.Assignment{IsPublished: true, ReleaseAt: timePtr(base)}, base.Add(time.Second), true},
		{"unpublished after release", models.Assignment{IsPublished: false, ReleaseAt: timePtr(base)}, base.Add(time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsOpenForRead(tc.assignment, tc.now))
		})
	}
}

func TestEffectiveDeadlinePlainAssignment(t *testing.T) {
	a := plainAssignment(timePtr(base))
	require.Equal(t, At(base), EffectiveDeadline(a, nil))
	require.Equal(t, At(base), EffectiveDeadline(a, &models.Submission{StartedAt: timePtr(base.Add(-time.Hour))}))

	require.Equal(t, Unbounded, EffectiveDeadline(plainAssignment(nil), nil))
}

func TestEffectiveDeadlineExam(t *testing.T) {
	due := base

	t.Run("not started uses due date", func(t *testing.T) {
		a := exam(timePtr(due), 60)
		require.Equal(t, At(due), EffectiveDeadline(a, nil))
		require.Equal(t, At(due), EffectiveDeadline(a, &models.Submission{}))
	})

	t.Run("started close to due date is capped by due date", func(t *testing.T) {
		a := exam(timePtr(due), 60)
		started := due.Add(-10 * time.Minute)
		require.Equal(t, At(due), EffectiveDeadline(a, &models.Submission{StartedAt: &started}))
	})

	t.Run("started early is capped by time limit", func(t *testing.T) {
		a := exam(timePtr(due), 60)
		started := due.Add(-120 * time.Minute)
		deadline := EffectiveDeadline(a, &models.Submission{StartedAt: &started})
		require.Equal(t, At(started.Add(60*time.Minute)), deadline)
		require.True(t, deadline.At.Before(due))
	})

	t.Run("no due date uses time limit", func(t *testing.T) {
		a := exam(nil, 45)
		started := base
		require.Equal(t, At(base.Add(45*time.Minute)), EffectiveDeadline(a, &models.Submission{StartedAt: &started}))
	})

	t.Run("no due date and not started is unbounded", func(t *testing.T) {
		require.Equal(t, Unbounded, EffectiveDeadline(exam(nil, 45), nil))
	})

	t.Run("no time limit uses due date", func(t *testing.T) {
		a := exam(timePtr(due), 0)
		a.TimeLimitMinutes = nil
		started := due.Add(-3 * time.Hour)
		require.Equal(t, At(due), EffectiveDeadline(a, &models.Submission{StartedAt: &started}))
	})
}

func TestIsOpenForWriteBoundaries(t *testing.T) {
	a := plainAssignment(timePtr(base))
	a.ReleaseAt = timePtr(base.Add(-24 * time.Hour))

	require.False(t, IsOpenForWrite(a, nil, base.Add(-24*time.Hour).Add(-time.Nanosecond)), "strictly before release")
	require.True(t, IsOpenForWrite(a, nil, base.Add(-24*time.Hour)), "at release")
	require.True(t, IsOpenForWrite(a, nil, base.Add(-time.Second)))
	require.True(t, IsOpenForWrite(a, nil, base), "deadline itself is inclusive")
	require.False(t, IsOpenForWrite(a, nil, base.Add(time.Nanosecond)), "strictly after deadline")
}

func TestIsOpenForWriteClosedStatuses(t *testing.T) {
	a := plainAssignment(timePtr(base))
	now := base.Add(-time.Hour)

	require.True(t, IsOpenForWrite(a, &models.Submission{Status: models.SubmissionStatusDraft}, now))
	require.True(t, IsOpenForWrite(a, &models.Submission{Status: models.SubmissionStatusSubmitted}, now))
	require.False(t, IsOpenForWrite(a, &models.Submission{Status: models.SubmissionStatusGraded}, now))
	require.False(t, IsOpenForWrite(a, &models.Submission{Status: models.SubmissionStatusAutoClosed}, now))
}

func TestIsOpenForWriteNeverAfterDeadlineOrBeforeRelease(t *testing.T) {
	release := base.Add(-48 * time.Hour)
	due := base
	assignments := []models.Assignment{
		plainAssignment(timePtr(due)),
		exam(timePtr(due), 30),
		exam(timePtr(due), 600),
	}
	started := due.Add(-time.Hour)
	submissions := []*models.Submission{nil, {Status: models.SubmissionStatusDraft}, {Status: models.SubmissionStatusDraft, StartedAt: &started}}

	for _, a := range assignments {
		a.ReleaseAt = timePtr(release)
		for _, s := range submissions {
			deadline := EffectiveDeadline(a, s)
			for offset := time.Duration(1); offset < 72*time.Hour; offset *= 3 {
				require.False(t, IsOpenForWrite(a, s, deadline.At.Add(offset)))
				require.False(t, IsOpenForWrite(a, s, release.Add(-offset)))
			}
		}
	}
}

func TestAcceptsUpload(t *testing.T) {
	t.Run("scenario A on time", func(t *testing.T) {
		a := plainAssignment(timePtr(base))
		require.Equal(t, OnTime, AcceptsUpload(a, nil, base.Add(-time.Second)))
		require.False(t, IsLate(a, nil, base.Add(-time.Second)))
	})

	t.Run("scenario B late when late work allowed", func(t *testing.T) {
		a := plainAssignment(timePtr(base))
		a.AllowLate = true
		require.Equal(t, Late, AcceptsUpload(a, nil, base.Add(time.Second)))
		require.True(t, IsLate(a, nil, base.Add(time.Second)))
	})

	t.Run("strict assignment rejects after deadline", func(t *testing.T) {
		a := plainAssignment(timePtr(base))
		require.Equal(t, Rejected, AcceptsUpload(a, nil, base.Add(time.Second)))
	})

	t.Run("late cutoff is inclusive", func(t *testing.T) {
		a := plainAssignment(timePtr(base))
		a.AllowLate = true
		a.LateCutoffAt = timePtr(base.Add(time.Hour))
		require.Equal(t, Late, AcceptsUpload(a, nil, base.Add(time.Hour)))
		require.Equal(t, Rejected, AcceptsUpload(a, nil, base.Add(time.Hour+time.Second)))
	})

	t.Run("exams ignore late policy", func(t *testing.T) {
		a := exam(timePtr(base), 30)
		a.AllowLate = true
		require.Equal(t, Rejected, AcceptsUpload(a, nil, base.Add(time.Second)))
	})
}

func TestShouldAutoClose(t *testing.T) {
	a := plainAssignment(timePtr(base))
	draft := models.Submission{Status: models.SubmissionStatusDraft}

	require.False(t, ShouldAutoClose(a, draft, base))
	require.True(t, ShouldAutoClose(a, draft, base.Add(time.Second)))

	uploaded := base.Add(-time.Minute)
	require.False(t, ShouldAutoClose(a, models.Submission{Status: models.SubmissionStatusSubmitted, UploadedAt: &uploaded}, base.Add(time.Hour)))

	t.Run("late work without cutoff never closes", func(t *testing.T) {
		lateAllowed := a
		lateAllowed.AllowLate = true
		require.False(t, ShouldAutoClose(lateAllowed, draft, base.Add(365*24*time.Hour)))
	})

	t.Run("started exam closes at personal deadline", func(t *testing.T) {
		e := exam(timePtr(base), 30)
		started := base.Add(-2 * time.Hour)
		s := models.Submission{Status: models.SubmissionStatusDraft, StartedAt: &started}
		require.False(t, ShouldAutoClose(e, s, started.Add(30*time.Minute)))
		require.True(t, ShouldAutoClose(e, s, started.Add(31*time.Minute)))
	})

	t.Run("unbounded never closes", func(t *testing.T) {
		require.False(t, ShouldAutoClose(plainAssignment(nil), draft, base.Add(1000*time.Hour)))
	})
}

func TestDeadlineHelpers(t *testing.T) {
	require.Nil(t, Unbounded.Ptr())
	require.Equal(t, base, *At(base).Ptr())
	require.Equal(t, At(base), Earliest(Unbounded, At(base)))
	require.Equal(t, At(base), Earliest(At(base), Unbounded))
	require.Equal(t, At(base), Earliest(At(base.Add(time.Hour)), At(base)))
	require.True(t, Unbounded.Allows(base.Add(1e6*time.Hour)))
}
