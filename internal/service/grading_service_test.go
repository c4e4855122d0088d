package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
)

func gradeRequest(grade float64, feedback string) dto.GradeSubmissionRequest {
	return dto.GradeSubmissionRequest{Grade: floatPtr(grade), Feedback: feedback}
}

func TestGradeFromEveryOpenState(t *testing.T) {
	states := []models.SubmissionStatus{
		models.SubmissionStatusDraft,
		models.SubmissionStatusSubmitted,
		models.SubmissionStatusLate,
		models.SubmissionStatusAutoClosed,
	}

	for _, status := range states {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			assignment := f.createAssignment(t, nil)
			submission := models.Submission{
				AssignmentID: assignment.ID,
				StudentID:    f.student.ID,
				Status:       status,
			}
			require.NoError(t, f.db.Create(&submission).Error)

			resp, err := f.gradingService().Grade(context.Background(), assignment.ID, submission.ID, gradeRequest(7.5, "cukup"), f.teacher)
			require.NoError(t, err)
			require.Equal(t, string(models.SubmissionStatusGraded), resp.Status)
			require.NotNil(t, resp.Grade)
			require.InDelta(t, 7.5, *resp.Grade, 1e-9)
			require.Equal(t, testTeacherID, *resp.GradedBy)
			require.Len(t, resp.History, 1)
		})
	}
}

func TestRegradeOverwritesAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	sub, err := f.submissionService().Submit(context.Background(), assignment.ID, pdfFile(t, "a.pdf", "x"), f.student)
	require.NoError(t, err)
	svc := f.gradingService()

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(6, "revisi"), f.teacher)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	resp, err := svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(8, "sudah baik"), f.admin)
	require.NoError(t, err)
	require.Equal(t, string(models.SubmissionStatusGraded), resp.Status)
	require.InDelta(t, 8, *resp.Grade, 1e-9)
	require.Equal(t, "sudah baik", resp.Feedback)
	require.Len(t, resp.History, 2)
	require.InDelta(t, 8, resp.History[0].Grade, 1e-9)

	require.Len(t, f.activity.entries, 2)
	require.Equal(t, "submission.graded", f.activity.entries[1].Action)
	require.Contains(t, f.publisher.types(), events.SubmissionGraded)
}

func TestGradeSameValuesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	sub, err := f.submissionService().Submit(context.Background(), assignment.ID, pdfFile(t, "a.pdf", "x"), f.student)
	require.NoError(t, err)
	svc := f.gradingService()

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(9, "mantap"), f.teacher)
	require.NoError(t, err)
	resp, err := svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(9, "mantap"), f.teacher)
	require.NoError(t, err)
	require.Len(t, resp.History, 1)
	require.Len(t, f.activity.entries, 1)
}

func TestGradeValidation(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, func(a *models.Assignment) {
		a.MaxGrade = 100
	})
	other := f.createAssignment(t, nil)
	sub, err := f.submissions.EnsureDraft(context.Background(), assignment.ID, f.student.ID)
	require.NoError(t, err)
	svc := f.gradingService()

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(100.5, ""), f.teacher)
	require.ErrorIs(t, err, ErrGradeOutOfRange)

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(-1, ""), f.teacher)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, dto.GradeSubmissionRequest{}, f.teacher)
	require.ErrorAs(t, err, &validationErrs)

	_, err = svc.Grade(context.Background(), other.ID, sub.ID, gradeRequest(5, ""), f.teacher)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = svc.Grade(context.Background(), assignment.ID, 9999, gradeRequest(5, ""), f.teacher)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	resp, err := svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(100, ""), f.teacher)
	require.NoError(t, err)
	require.InDelta(t, 100, *resp.Grade, 1e-9)
}

func TestGradeDefaultCeilingIsTen(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, func(a *models.Assignment) {
		a.MaxGrade = 0
	})
	sub, err := f.submissions.EnsureDraft(context.Background(), assignment.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.gradingService().Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(10.5, ""), f.teacher)
	require.ErrorIs(t, err, ErrGradeOutOfRange)
}

func TestGradeSanitizesFeedback(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	sub, err := f.submissions.EnsureDraft(context.Background(), assignment.ID, f.student.ID)
	require.NoError(t, err)

	resp, err := f.gradingService().Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(5, "<script>alert(1)</script>Perbaiki <b>bab 2</b>"), f.teacher)
	require.NoError(t, err)
	require.Equal(t, "Perbaiki bab 2", resp.Feedback)
}

func TestGradingRequiresClassTeacher(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	sub, err := f.submissions.EnsureDraft(context.Background(), assignment.ID, f.student.ID)
	require.NoError(t, err)
	svc := f.gradingService()

	stranger := Actor{ID: 555, Role: RoleTeacher}
	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(5, ""), stranger)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(5, ""), f.student)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ListSubmissions(context.Background(), assignment.ID, f.student)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListSubmissionsSummarisesStatuses(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	submissions := f.submissionService()

	_, err := submissions.Submit(context.Background(), assignment.ID, pdfFile(t, "a.pdf", "x"), f.student)
	require.NoError(t, err)
	_, err = submissions.Mine(context.Background(), assignment.ID, f.other)
	require.NoError(t, err)

	resp, err := f.gradingService().ListSubmissions(context.Background(), assignment.ID, f.teacher)
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	require.Equal(t, 1, resp.Summary[string(models.SubmissionStatusSubmitted)])
	require.Equal(t, 1, resp.Summary[string(models.SubmissionStatusDraft)])
	require.Equal(t, "Siti", resp.Items[0].Student.Name)
	require.Equal(t, f.clock.Now(), resp.ServerTime)
}

func TestActivityTrailForAssignment(t *testing.T) {
	f := newFixture(t)
	assignment := f.createAssignment(t, nil)
	other := f.createAssignment(t, nil)
	sub, err := f.submissionService().Submit(context.Background(), assignment.ID, pdfFile(t, "a.pdf", "x"), f.student)
	require.NoError(t, err)
	svc := f.gradingService()

	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(6, "revisi"), f.teacher)
	require.NoError(t, err)
	_, err = svc.Grade(context.Background(), assignment.ID, sub.ID, gradeRequest(7, "lebih baik"), f.teacher)
	require.NoError(t, err)
	_, err = f.recorder().Record(context.Background(), ActivityEntry{Actor: f.teacher, AssignmentID: &other.ID, Action: "assignment.updated", EntityType: "assignment"})
	require.NoError(t, err)

	trail, err := svc.Activity(context.Background(), assignment.ID, dto.ActivityTrailRequest{Limit: 1}, f.teacher)
	require.NoError(t, err)
	require.Len(t, trail.Items, 1)
	require.Equal(t, "submission.graded", trail.Items[0].Action)
	require.InDelta(t, 7, trail.Items[0].Metadata["grade"], 1e-9)
	require.NotZero(t, trail.NextBeforeID)

	trail, err = svc.Activity(context.Background(), assignment.ID, dto.ActivityTrailRequest{BeforeID: trail.NextBeforeID, Limit: 5}, f.teacher)
	require.NoError(t, err)
	require.Len(t, trail.Items, 1)
	require.Zero(t, trail.NextBeforeID)

	_, err = svc.Activity(context.Background(), assignment.ID, dto.ActivityTrailRequest{}, f.student)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Activity(context.Background(), assignment.ID, dto.ActivityTrailRequest{Limit: 500}, f.teacher)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}
