package service

import "errors"

// Lifecycle and access errors. All of them are recoverable by the caller; only
// storage failures surface as unexpected errors.
var (
	// ErrAssignmentNotFound indicates the requested assignment does not exist or is invisible to the caller.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrClassNotFound indicates the class does not exist.
	ErrClassNotFound = errors.New("class not found")
	// ErrForbidden indicates a role or ownership mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrAssignmentLocked indicates the assignment has not been released yet.
	ErrAssignmentLocked = errors.New("assignment is not open yet")
	// ErrDeadlinePassed indicates the effective deadline (or late cutoff) has passed.
	ErrDeadlinePassed = errors.New("deadline has passed")
	// ErrAlreadyStarted indicates the exam clock is already running for this student.
	ErrAlreadyStarted = errors.New("exam already started")
	// ErrNotAnExam indicates start was called on a plain assignment.
	ErrNotAnExam = errors.New("assignment is not an exam")
	// ErrExamNotStarted indicates an exam submission arrived before start.
	ErrExamNotStarted = errors.New("exam has not been started")
	// ErrInvalidFileType indicates the file extension is not allowed.
	ErrInvalidFileType = errors.New("file type is not allowed")
	// ErrFileTooLarge indicates the file exceeds the size ceiling.
	ErrFileTooLarge = errors.New("file is too large")
	// ErrCannotUnsubmitGraded indicates a graded submission cannot be withdrawn.
	ErrCannotUnsubmitGraded = errors.New("graded submissions cannot be withdrawn")
	// ErrFileRequired indicates a submit request without a file.
	ErrFileRequired = errors.New("file is required")
	// ErrNotSubmitted indicates there is no handed-in file to withdraw.
	ErrNotSubmitted = errors.New("nothing has been submitted")
	// ErrSubmissionGraded indicates the submission is already graded and closed to the student.
	ErrSubmissionGraded = errors.New("submission already graded")

	// ErrInvalidWindow indicates inconsistent timing configuration on an assignment.
	ErrInvalidWindow = errors.New("invalid assignment window")
	// ErrWindowFrozen indicates timing fields cannot change once submissions exist.
	ErrWindowFrozen = errors.New("assignment window cannot change after submissions exist")
	// ErrGradeOutOfRange indicates a grade above the assignment ceiling.
	ErrGradeOutOfRange = errors.New("grade exceeds assignment maximum")

	// ErrConflict indicates a concurrent write won the race; the request may be retried.
	ErrConflict = errors.New("submission was modified concurrently")
)
