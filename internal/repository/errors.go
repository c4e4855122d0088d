package repository

import "errors"

var (
	// ErrVersionConflict signals that a guarded write lost a race with another writer.
	ErrVersionConflict = errors.New("submission was modified concurrently")
	// ErrAlreadyStarted signals that the exam clock for the submission is already running.
	ErrAlreadyStarted = errors.New("exam already started")
)
