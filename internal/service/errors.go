package service

import (
	"errors"
	"fmt"

	"entropy-planner/internal/model"
)

// Sentinel errors callers branch on. Store failures are returned wrapped and
// match none of these.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrNotTomorrowTask = errors.New("task is not scheduled for tomorrow")
	ErrInactive        = errors.New("template is inactive")
	ErrSweepRunning    = errors.New("sweep is already running")
)

// DuplicateError reports that an active task with the same title and category
// already occupies the target bucket. It carries the conflicting task so the
// caller can show it and decide whether to force the action.
type DuplicateError struct {
	Existing model.Task
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate task %q already exists in the target bucket", e.Existing.Title)
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
